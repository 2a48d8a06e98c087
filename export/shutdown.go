package export

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
)

// 停机导出文件名。
const (
	TradesFile          = "trades.csv"
	PnLFile             = "pnl.csv"
	PnLHistoryIndexFile = "pnl_history_index.csv"
	SpreadsFile         = "spreads.csv"
)

// Source 停机导出所需的只读状态，由 sim.Runner 提供。
type Source interface {
	Summary() inventory.Summary
	Fills() []inventory.Fill
	PnLHistory() []float64
	SpreadSizes() []float64
	SpreadHistory(full bool) []market.SpreadRow
	MarketMakingMetrics() inventory.MarketMakingMetrics
}

// TradeRecords trades.csv：timestamp, side, price, size, trade_id。
// 数值使用可无损回读的最短十进制，离线重算与实时账本看到相同的数量。
func TradeRecords(fills []inventory.Fill) [][]string {
	out := [][]string{{"timestamp", "side", "price", "size", "trade_id"}}
	for _, f := range fills {
		out = append(out, []string{
			f.Ts.Format(time.RFC3339Nano),
			string(f.Side),
			plain(f.Price),
			plain(f.Size),
			f.ID,
		})
	}
	return out
}

// PnLRecords pnl.csv 当前快照。
func PnLRecords(s inventory.Summary) [][]string {
	return [][]string{
		{"cash", "position_q", "nav", "total_pnl", "total_trades", "inventory_utilization_pct", "max_inventory", "avg_entry_price"},
		{
			fixed(s.Cash, 2),
			fixed(s.Position, 8),
			fixed(s.NAV, 2),
			fixed(s.TotalPnL, 2),
			strconv.FormatInt(s.TotalTrades, 10),
			fixed(s.UtilizationPct, 1),
			plain(s.MaxInventory),
			fixed(s.AvgEntryPrice, 2),
		},
	}
}

// PnLHistoryRecords index, pnl。
func PnLHistoryRecords(hist []float64) [][]string {
	out := [][]string{{"index", "pnl"}}
	for i, v := range hist {
		out = append(out, []string{strconv.Itoa(i), fixed(v, 2)})
	}
	return out
}

// SpreadRecords timestamp 加每个规模一列；空值表示该时刻缺失。
func SpreadRecords(sizes []float64, rows []market.SpreadRow) [][]string {
	header := []string{"timestamp"}
	for _, s := range sizes {
		header = append(header, plain(s))
	}
	out := [][]string{header}
	for _, r := range rows {
		rec := []string{epochSeconds(r.Ts)}
		for i := range sizes {
			if i < len(r.Spreads) {
				rec = append(rec, plain(r.Spreads[i]))
			} else {
				rec = append(rec, "")
			}
		}
		out = append(out, rec)
	}
	return out
}

// ReportRecords 组合报告：概览指标与最近成交。
func ReportRecords(stamp string, s inventory.Summary, mm inventory.MarketMakingMetrics) [][]string {
	out := [][]string{
		{"Portfolio Report", stamp},
		{},
		{"Metric", "Value"},
	}
	metric := func(name string, v float64) {
		out = append(out, []string{name, plain(v)})
	}
	metric("btc_balance", s.Position)
	metric("usd_balance", s.USDBalance)
	metric("avg_entry_price", s.AvgEntryPrice)
	metric("realized_pnl", s.RealizedPnL)
	metric("unrealized_pnl", s.UnrealizedPnL)
	metric("total_pnl", s.TotalPnL)
	out = append(out, []string{"total_trades", strconv.FormatInt(s.TotalTrades, 10)})
	metric("total_btc_bought", s.VolumeBought)
	metric("total_btc_sold", s.VolumeSold)
	metric("total_usd_spent", s.CashSpent)
	metric("total_usd_received", s.CashReceived)
	metric("notional_exposure", s.NotionalExposure)
	metric("cash", s.Cash)
	metric("nav", s.NAV)
	out = append(out, []string{"inventory_limits", fmt.Sprintf("[%.1f, %.1f]", mm.MinInventory, mm.MaxInventory)})
	metric("inventory_utilization_pct", s.UtilizationPct)
	out = append(out, []string{"pnl_history_length", strconv.Itoa(mm.PnLHistoryLen)})
	metric("max_pnl", mm.MaxPnL)
	metric("min_pnl", mm.MinPnL)

	out = append(out, []string{}, []string{"Recent Fills"}, []string{"Timestamp", "Side", "Price", "Size", "Trade ID"})
	for _, f := range s.RecentFills {
		out = append(out, []string{f.Ts.Format(datetimeSecond), string(f.Side), plain(f.Price), plain(f.Size), f.ID})
	}
	return out
}

// WriteShutdown 停机时写出成交、盈亏快照、盈亏历史、完整价差历史与组合报告，返回已写文件。
// 单个文件失败不影响其余文件。
func WriteShutdown(dir string, src Source, now time.Time) ([]string, error) {
	summary := src.Summary()
	stamp := now.Format("20060102_150405")
	files := []struct {
		name    string
		records [][]string
	}{
		{TradesFile, TradeRecords(src.Fills())},
		{PnLFile, PnLRecords(summary)},
		{PnLHistoryIndexFile, PnLHistoryRecords(src.PnLHistory())},
		{SpreadsFile, SpreadRecords(src.SpreadSizes(), src.SpreadHistory(true))},
		{"portfolio_report_" + stamp + ".csv", ReportRecords(stamp, summary, src.MarketMakingMetrics())},
	}

	var (
		written []string
		errs    error
	)
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeAll(path, f.records); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		written = append(written, path)
	}
	return written, errs
}
