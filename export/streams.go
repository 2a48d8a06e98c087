package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
)

// 追加流文件名。
const (
	TradeLogFile      = "trade_logs.csv"
	PnLHistoryFile    = "pnl_history.csv"
	SpreadHistoryFile = "spread_history.csv"
)

var (
	tradeLogHeader = []string{
		"timestamp", "datetime", "side", "price", "size",
		"trade_id", "realized_pnl", "btc_balance", "usd_balance",
	}
	pnlHistoryHeader = []string{
		"timestamp", "datetime", "btc_balance", "avg_entry_price",
		"realized_pnl", "unrealized_pnl", "total_pnl", "current_btc_price",
		"notional_exposure", "total_trades",
	}
	spreadHistoryHeader = []string{
		"timestamp", "datetime", "best_bid", "best_ask", "spread_dollars",
		"spread_bps", "mid_price", "bid_size", "ask_size",
	}
)

// Streams 三个只追加的 CSV 流，表头只在文件不存在时写入一次。
type Streams struct {
	dir string
	mu  sync.Mutex
}

// NewStreams 创建目录并初始化表头。
func NewStreams(dir string) (*Streams, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	s := &Streams{dir: dir}
	for name, header := range map[string][]string{
		TradeLogFile:      tradeLogHeader,
		PnLHistoryFile:    pnlHistoryHeader,
		SpreadHistoryFile: spreadHistoryHeader,
	} {
		if err := ensureHeader(s.path(name), header); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Streams) Dir() string { return s.dir }

func (s *Streams) path(name string) string { return filepath.Join(s.dir, name) }

// AppendTrade 记录一笔成交及成交后的组合状态。
func (s *Streams) AppendTrade(f inventory.Fill, sum inventory.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRow(s.path(TradeLogFile), []string{
		epochSeconds(f.Ts),
		f.Ts.Format(datetimeMillis),
		string(f.Side),
		plain(f.Price),
		plain(f.Size),
		f.ID,
		plain(sum.RealizedPnL),
		plain(sum.Position),
		plain(sum.USDBalance),
	})
}

// AppendPnL 记录盈亏快照。
func (s *Streams) AppendPnL(ts time.Time, sum inventory.Summary, fair float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRow(s.path(PnLHistoryFile), []string{
		epochSeconds(ts),
		ts.Format(datetimeSecond),
		plain(sum.Position),
		plain(sum.AvgEntryPrice),
		plain(sum.RealizedPnL),
		plain(sum.UnrealizedPnL),
		plain(sum.TotalPnL),
		plain(fair),
		plain(sum.NotionalExposure),
		fmt.Sprint(sum.TotalTrades),
	})
}

// AppendSpread 记录最优档价差；时间取快照时间。
func (s *Streams) AppendSpread(snap market.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRow(s.path(SpreadHistoryFile), []string{
		epochSeconds(snap.Timestamp),
		snap.Timestamp.Format(datetimeMillis),
		plain(snap.BestBid),
		plain(snap.BestAsk),
		plain(snap.Spread),
		plain(snap.SpreadBps),
		plain(snap.Mid),
		plain(snap.BidSize),
		plain(snap.AskSize),
	})
}

// StreamSummary 各流的数据行数与目录下的 CSV 文件。
type StreamSummary struct {
	Trades  int
	PnL     int
	Spreads int
	Files   []string
}

func (s *Streams) Summary() (StreamSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out StreamSummary
	var err error
	if out.Trades, err = countRows(s.path(TradeLogFile)); err != nil {
		return out, err
	}
	if out.PnL, err = countRows(s.path(PnLHistoryFile)); err != nil {
		return out, err
	}
	if out.Spreads, err = countRows(s.path(SpreadHistoryFile)); err != nil {
		return out, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			out.Files = append(out.Files, e.Name())
		}
	}
	return out, nil
}

// countRows 行数减去表头。
func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if n > 0 {
		n--
	}
	return n, nil
}
