package inventory

import (
	"errors"
	"math"
	"sync"
	"time"

	"market-maker-sim/internal/buffer"
	"market-maker-sim/market"
)

const (
	DefaultInitialCash  = 1_000_000.0
	DefaultMaxInventory = 5.0

	recentFillsCap   = 10
	fillHistoryCap   = 1000
	pnlHistoryCap    = 1000
	riskReferenceUSD = 1_000_000.0 // MaxExposurePct / LossPct 的分母
)

// Fill 模拟成交，创建后只读。
type Fill struct {
	ID    string
	Ts    time.Time
	Side  market.Side
	Price float64
	Size  float64
}

// Config 账本参数。
type Config struct {
	InitialCash  float64 // 仅用于展示 USD 余额
	MaxInventory float64 // 库存上限，下限为其相反数
}

func DefaultConfig() Config {
	return Config{InitialCash: DefaultInitialCash, MaxInventory: DefaultMaxInventory}
}

// Ledger 做市视角的组合账本：cash 为成交现金流，nav = q·fair，pnl = cash + nav。
// 均价为当前方向的单一加权均价，穿越零点时重置为成交价。
type Ledger struct {
	mu  sync.RWMutex
	cfg Config

	q        float64
	cash     float64
	avgEntry float64
	nav      float64
	pnl      float64
	mark     float64

	totalTrades  int64
	buyCount     int64
	sellCount    int64
	volBought    float64
	volSold      float64
	cashSpent    float64
	cashReceived float64

	recent  *buffer.Ring[Fill]
	history *buffer.Ring[Fill]
	pnlHist *buffer.Ring[float64]
}

func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.MaxInventory <= 0 || math.IsNaN(cfg.MaxInventory) {
		return nil, errors.New("maxInventory must be > 0")
	}
	return &Ledger{
		cfg:     cfg,
		recent:  buffer.NewRing[Fill](recentFillsCap),
		history: buffer.NewRing[Fill](fillHistoryCap),
		pnlHist: buffer.NewRing[float64](pnlHistoryCap),
	}, nil
}

// Bounds 返回库存上下限。
func (l *Ledger) Bounds() (min, max float64) {
	return -l.cfg.MaxInventory, l.cfg.MaxInventory
}

func (l *Ledger) Position() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.q
}

func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

func (l *Ledger) AvgEntryPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.avgEntry
}

// TotalPnL 最近一次 Mark 的总盈亏。
func (l *Ledger) TotalPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pnl
}

// Process 按库存上限重新裁剪后入账，返回实际成交量；0 表示未入账。
func (l *Ledger) Process(f Fill) float64 {
	if f.Size <= 0 || math.IsNaN(f.Size) {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lo, hi := l.Bounds()
	before := l.q
	var after float64
	if f.Side == market.SideBuy {
		after = math.Min(before+f.Size, hi)
	} else {
		after = math.Max(before-f.Size, lo)
	}
	executed := math.Abs(after - before)
	if executed <= 0 {
		return 0
	}

	notional := executed * f.Price
	if f.Side == market.SideBuy {
		l.cash -= notional
		l.volBought += executed
		l.cashSpent += notional
		l.buyCount++
	} else {
		l.cash += notional
		l.volSold += executed
		l.cashReceived += notional
		l.sellCount++
	}
	l.q = after
	l.updateAvgEntry(f.Side, f.Price, executed, before, after)

	l.totalTrades++
	l.recent.Append(f)
	l.history.Append(f)
	return executed
}

func (l *Ledger) updateAvgEntry(side market.Side, price, executed, before, after float64) {
	reinforcing := (side == market.SideBuy && before >= 0) || (side == market.SideSell && before <= 0)
	if reinforcing {
		base := math.Abs(before)
		l.avgEntry = (l.avgEntry*base + price*executed) / (base + executed)
		return
	}
	switch {
	case after == 0:
		l.avgEntry = 0
	case (before > 0) == (after > 0):
		// 减仓未穿越零点，均价不变
	default:
		l.avgEntry = price
	}
}

// RecentFills 最近 10 笔成交（旧 -> 新）。
func (l *Ledger) RecentFills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.recent.Values()
}

// Fills 最近 1000 笔成交（旧 -> 新）。
func (l *Ledger) Fills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.history.Values()
}

// PnLHistory 最近 1000 次 Mark 的总盈亏。
func (l *Ledger) PnLHistory() []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pnlHist.Values()
}

func (l *Ledger) utilization() float64 {
	if l.cfg.MaxInventory <= 0 {
		return 0
	}
	return math.Abs(l.q) / l.cfg.MaxInventory * 100
}
