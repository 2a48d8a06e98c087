package sim

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/inventory"
	"market-maker-sim/market"
	"market-maker-sim/risk"
	"market-maker-sim/strategy"
)

// DefaultBookDepth 展示与报价使用的档位数。
const DefaultBookDepth = 10

// Hooks 状态变化回调，在释放锁之后按发生顺序调用。
type Hooks struct {
	OnFill       func(f inventory.Fill, s inventory.Summary)
	OnQuotes     func(bid, ask *strategy.Quote)
	OnMark       func(ts time.Time, fair float64, m inventory.MarkResult)
	OnRiskChange func(suspended bool, err error)
}

// SpreadStat 某个规模的价差统计。
type SpreadStat struct {
	Size float64
	market.SpreadMetrics
}

// Imbalance 盘口不平衡度。
type Imbalance struct {
	Levels1 float64
	Levels5 float64
	Volume1 float64
}

// Snapshot 渲染/导出使用的只读快照。
type Snapshot struct {
	Ts        time.Time
	Book      market.BookView
	Top       market.Snapshot
	HasTop    bool
	Fair      float64
	FairOK    bool
	Strategy  strategy.Status
	Portfolio inventory.Summary
	Spreads   []SpreadStat
	Imbalance Imbalance
	Trades    int64
	LastTrade market.Trade
}

// Runner 持有全部策略与组合状态，盘口、成交与刷新都在同一把锁内串行处理。
type Runner struct {
	Symbol string

	mu      sync.Mutex
	book    *market.OrderBook
	view    market.BookView
	spreads *market.SpreadAnalyzer
	engine  *strategy.QuoteEngine
	ledger  *inventory.Ledger
	fills   *FillSimulator
	clock   risk.Clock
	depth   int

	trades    int64
	lastTrade market.Trade

	log     *logger.Logger
	hooks   Hooks
	pending []func()
}

// SetHooks 注册回调，需在接入行情前调用。
func (r *Runner) SetHooks(h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = h
}

func (r *Runner) Start() {
	r.mu.Lock()
	r.engine.Start()
	r.log.Info("strategy started", zap.String("symbol", r.Symbol))
	r.mu.Unlock()
}

// Stop 停止报价，清空挂单。
func (r *Runner) Stop() {
	r.mu.Lock()
	r.engine.Stop()
	r.log.Info("strategy stopped", zap.String("symbol", r.Symbol))
	r.mu.Unlock()
}

func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Active()
}

// SetStrategyConfig 热更新报价参数。
func (r *Runner) SetStrategyConfig(cfg strategy.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.SetConfig(cfg)
}

// OnBook 接收完整盘口快照：更新价差统计，按中间价盯市，再尝试刷新报价。
func (r *Runner) OnBook(bids, asks []market.Level, ts time.Time) error {
	r.mu.Lock()
	r.book.Replace(bids, asks)
	full := r.book.View(0)
	if err := full.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	full.Ts = ts
	r.view = full.Top(r.depth)
	r.spreads.Update(full)
	r.refreshLocked(ts)
	r.unlockAndDispatch()
	return nil
}

// OnTrade 策略运行时用当前挂单撮合市场成交。
func (r *Runner) OnTrade(tr market.Trade) (inventory.Fill, bool) {
	r.mu.Lock()
	r.trades++
	r.lastTrade = tr
	if !r.engine.Active() {
		r.mu.Unlock()
		return inventory.Fill{}, false
	}
	bid, ask := r.engine.CurrentQuotes()
	f, ok := r.fills.Simulate(tr, bid, ask)
	if ok {
		r.log.LogFill(f.ID, string(f.Side), f.Price, f.Size, r.ledger.Position())
		if r.hooks.OnFill != nil {
			fn, summary := r.hooks.OnFill, r.ledger.Summary()
			r.pending = append(r.pending, func() { fn(f, summary) })
		}
	}
	r.unlockAndDispatch()
	return f, ok
}

// Refresh 无新盘口时由轮询循环调用，按当前视图盯市并检查报价刷新。
func (r *Runner) Refresh() {
	r.mu.Lock()
	r.refreshLocked(r.clock.Now())
	r.unlockAndDispatch()
}

func (r *Runner) refreshLocked(ts time.Time) {
	if fair, ok := strategy.FairPrice(r.view); ok {
		m := r.ledger.Mark(fair)
		if r.hooks.OnMark != nil {
			fn := r.hooks.OnMark
			r.pending = append(r.pending, func() { fn(ts, fair, m) })
		}
	}
	bid, ask, changed := r.engine.UpdateQuotes(r.view, r.ledger.Position(), r.ledger.TotalPnL())
	if !changed {
		return
	}
	var bidPx, askPx, size float64
	if bid != nil {
		bidPx, size = bid.Price, bid.Size
	}
	if ask != nil {
		askPx, size = ask.Price, ask.Size
	}
	r.log.LogQuote(bidPx, askPx, size)
	if r.hooks.OnQuotes != nil {
		fn := r.hooks.OnQuotes
		r.pending = append(r.pending, func() { fn(bid, ask) })
	}
}

func (r *Runner) onRiskChange(suspended bool, err error) {
	if suspended {
		r.log.LogRisk("quoting_suspended", zap.Error(err))
	} else {
		r.log.LogRisk("quoting_resumed")
	}
	if r.hooks.OnRiskChange != nil {
		fn := r.hooks.OnRiskChange
		r.pending = append(r.pending, func() { fn(suspended, err) })
	}
}

func (r *Runner) unlockAndDispatch() {
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Snapshot 在锁内复制当前状态。
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Ts:        r.clock.Now(),
		Book:      r.view.Top(r.depth),
		Strategy:  r.engine.Status(),
		Portfolio: r.ledger.Summary(),
		Trades:    r.trades,
		LastTrade: r.lastTrade,
		Imbalance: Imbalance{
			Levels1: market.ImbalanceByLevels(r.view, 1),
			Levels5: market.ImbalanceByLevels(r.view, 5),
			Volume1: market.ImbalanceByVolume(r.view, 1),
		},
	}
	snap.Top, snap.HasTop = market.NewSnapshot(r.view, r.view.Ts)
	snap.Fair, snap.FairOK = strategy.FairPrice(r.view)
	metrics := r.spreads.AllMetrics()
	for i, size := range r.spreads.Sizes() {
		snap.Spreads = append(snap.Spreads, SpreadStat{Size: size, SpreadMetrics: metrics[i]})
	}
	return snap
}

// SpreadSizes 价差统计的规模列表。
func (r *Runner) SpreadSizes() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spreads.Sizes()
}

// SpreadHistory full 为 true 时返回完整历史，否则返回滚动窗口。
func (r *Runner) SpreadHistory(full bool) []market.SpreadRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spreads.History(full)
}

// Summary 组合概览。
func (r *Runner) Summary() inventory.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Summary()
}

// Fills 最近 1000 笔成交。
func (r *Runner) Fills() []inventory.Fill {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Fills()
}

// PnLHistory 最近 1000 次盯市的总盈亏。
func (r *Runner) PnLHistory() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.PnLHistory()
}

// HealthCheck 以当前公允价评估组合健康；盘口不可用时沿用最近一次盯市价。
func (r *Runner) HealthCheck() inventory.HealthReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	fair, ok := strategy.FairPrice(r.view)
	if !ok {
		fair = r.ledger.Summary().MarkPrice
	}
	return r.ledger.HealthCheck(fair)
}

// RiskMetrics 以最近一次盯市价计算风险视图；盯市价与指标在同一把锁内读取。
func (r *Runner) RiskMetrics() inventory.RiskMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.RiskMetrics(r.ledger.Summary().MarkPrice)
}

func (r *Runner) MarketMakingMetrics() inventory.MarketMakingMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.MarketMakingMetrics()
}
