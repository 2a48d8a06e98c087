package posttrade

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"market-maker-sim/market"
)

const dustQty = 1e-15

// Options 离线重算参数。
type Options struct {
	MarkColumn   string  // 为空时按成交价盯市
	MaxInventory float64 // <= 0 表示不裁剪
}

// PnLRow 每个输入成交对应一行。
type PnLRow struct {
	Timestamp     string
	Side          string
	Price         float64
	Size          float64 // 裁剪后的实际变动
	Position      float64
	AvgEntryPrice float64
	Cash          float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	MarkPrice     float64
	TradeID       string
}

// PnLColumns 输出列。
var PnLColumns = []string{
	"timestamp", "side", "price", "size", "position", "avg_entry_price", "cash",
	"realized_pnl", "unrealized_pnl", "total_pnl", "mark_price", "trade_id",
}

type keyedRecord struct {
	rec Record
	ts  time.Time
	ok  bool
}

// sortByTime 稳定排序；无法解析的时间排在最后并保持原顺序。
func sortByTime(rows []Record, col string) []Record {
	keyed := make([]keyedRecord, len(rows))
	for i, r := range rows {
		ts, ok := ParseTime(r[col])
		keyed[i] = keyedRecord{rec: r, ts: ts, ok: ok}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i], keyed[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.ts.Before(b.ts)
	})
	out := make([]Record, len(keyed))
	for i, k := range keyed {
		out[i] = k.rec
	}
	return out
}

// position 经典平仓优先的均价持仓：先平掉反向敞口并结转已实现盈亏，余量按加权均价开仓。
type position struct {
	q, ac, cash, realized float64
}

func (p *position) apply(dq, price float64) {
	p.cash -= dq * price
	if dq > 0 {
		if p.q < 0 {
			closed := math.Min(-p.q, dq)
			p.realized += (p.ac - price) * closed
			p.q += closed
			dq -= closed
			if p.q == 0 {
				p.ac = 0
			}
		}
		if dq > 0 {
			next := p.q + dq
			p.ac = (p.q*p.ac + dq*price) / next
			p.q = next
		}
		return
	}
	sellQty := -dq
	if p.q > 0 {
		closed := math.Min(p.q, sellQty)
		p.realized += (price - p.ac) * closed
		p.q -= closed
		sellQty -= closed
		if p.q == 0 {
			p.ac = 0
		}
	}
	if sellQty > 0 {
		short := -p.q + sellQty
		p.ac = (-p.q*p.ac + sellQty*price) / short
		p.q -= sellQty
	}
}

// Reconstruct 按时间稳定排序后逐笔重算盈亏，与实时账本互不共享状态。
// 价格或数量无法解析的行被跳过，其余每笔输入对应一行输出。
func Reconstruct(t Table, opts Options) []PnLRow {
	if len(t.Rows) == 0 {
		return nil
	}
	tcol := t.TimeColumn()
	if tcol == "" {
		tcol = "timestamp"
	}
	capped := opts.MaxInventory > 0 && !math.IsInf(opts.MaxInventory, 0)

	var (
		pos position
		out []PnLRow
	)
	for _, r := range sortByTime(t.Rows, tcol) {
		price, okp := parseNumber(r["price"])
		size, oks := parseNumber(r["size"])
		if !okp || !oks {
			continue
		}
		size = math.Abs(size)

		sign := -1.0
		if market.ParseSide(r["side"]) == market.SideBuy {
			sign = 1.0
		}
		desired := pos.q + sign*size
		if capped {
			desired = math.Max(-opts.MaxInventory, math.Min(desired, opts.MaxInventory))
		}
		dq := desired - pos.q
		executed := 0.0
		if math.Abs(dq) >= dustQty {
			pos.apply(dq, price)
			executed = math.Abs(dq)
		}

		mark := resolveMark(r, opts.MarkColumn, price)
		unrealized := (mark - pos.ac) * pos.q
		out = append(out, PnLRow{
			Timestamp:     r[tcol],
			Side:          r["side"],
			Price:         price,
			Size:          executed,
			Position:      pos.q,
			AvgEntryPrice: pos.ac,
			Cash:          pos.cash,
			RealizedPnL:   pos.realized,
			UnrealizedPnL: unrealized,
			TotalPnL:      pos.realized + unrealized,
			MarkPrice:     mark,
			TradeID:       r["trade_id"],
		})
	}
	return out
}

// resolveMark 优先使用非空且可解析的盯市列，否则用成交价。
func resolveMark(r Record, col string, price float64) float64 {
	if col == "" {
		return price
	}
	if v, ok := parseNumber(r[col]); ok {
		return v
	}
	return price
}

// WritePnLRows 以 PnLColumns 为表头写出。
func WritePnLRows(w io.Writer, rows []PnLRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PnLColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Timestamp, r.Side,
			formatNumber(r.Price), formatNumber(r.Size), formatNumber(r.Position),
			formatNumber(r.AvgEntryPrice), formatNumber(r.Cash), formatNumber(r.RealizedPnL),
			formatNumber(r.UnrealizedPnL), formatNumber(r.TotalPnL), formatNumber(r.MarkPrice),
			r.TradeID,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePnLFile 写出到文件。
func WritePnLFile(path string, rows []PnLRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePnLRows(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// TradeSummary 成交日志概览。
type TradeSummary struct {
	Count      int
	Buys       int
	Sells      int
	VolumeBuy  float64
	VolumeSell float64
	First      string
	Last       string
}

// Summarize 统计买卖笔数与成交量（输入顺序的首尾时间）。
func Summarize(t Table) TradeSummary {
	s := TradeSummary{Count: len(t.Rows)}
	if len(t.Rows) == 0 {
		return s
	}
	for _, r := range t.Rows {
		side := strings.ToLower(strings.TrimSpace(r["side"]))
		size, ok := parseNumber(r["size"])
		switch {
		case strings.HasPrefix(side, "b"):
			s.Buys++
			if ok {
				s.VolumeBuy += math.Abs(size)
			}
		case strings.HasPrefix(side, "s"):
			s.Sells++
			if ok {
				s.VolumeSell += math.Abs(size)
			}
		}
	}
	tcol := t.TimeColumn()
	if tcol == "" {
		tcol = "timestamp"
	}
	s.First = t.Rows[0][tcol]
	s.Last = t.Rows[len(t.Rows)-1][tcol]
	return s
}
