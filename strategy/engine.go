package strategy

import (
	"fmt"
	"math"
	"time"

	"market-maker-sim/market"
	"market-maker-sim/risk"
)

// QuoteSide 报价方向。
type QuoteSide string

const (
	QuoteBid QuoteSide = "bid"
	QuoteAsk QuoteSide = "ask"
)

// Quote 当前挂单（模拟），整体替换，不做局部修改。
type Quote struct {
	Side  QuoteSide
	Price float64
	Size  float64
	Ts    time.Time
}

// quoteChangeThreshold 价格或数量变化超过该值才视为显著。
const quoteChangeThreshold = 0.01

// State 引擎状态
type State int

const (
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Status 引擎状态快照。
type Status struct {
	State          State
	Bid            *Quote
	Ask            *Quote
	LastUpdate     time.Time
	QuotesPosted   int64
	QuotesUpdated  int64
	RiskSuspended  bool
	RiskReason     string
	RiskSuspension int64
}

// QuoteEngine 计算公允价、执行风控闸门、按库存倾斜生成报价并节流刷新。
// 非并发安全，由持有者加锁。
type QuoteEngine struct {
	cfg   Config
	tiers SkewTable
	gate  *risk.Gate
	clock risk.Clock

	state      State
	bid, ask   *Quote
	lastUpdate time.Time

	quotesPosted  int64
	quotesUpdated int64

	onRiskChange func(suspended bool, err error)
}

func NewQuoteEngine(cfg Config, clock risk.Clock) (*QuoteEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if clock == nil {
		clock = risk.NowUTC
	}
	return &QuoteEngine{
		cfg:   cfg,
		tiers: NewSkewTable(cfg.SkewDeadband),
		gate:  &risk.Gate{Guard: risk.BuildGuards(cfg.MaxNotional, cfg.MaxLoss)},
		clock: clock,
		state: StateInactive,
	}, nil
}

// SetConfig 热更新参数；当前报价保留到下一次刷新。
func (e *QuoteEngine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	e.cfg = cfg
	e.tiers = NewSkewTable(cfg.SkewDeadband)
	e.gate.Guard = risk.BuildGuards(cfg.MaxNotional, cfg.MaxLoss)
	return nil
}

func (e *QuoteEngine) Config() Config { return e.cfg }

// SetRiskListener 风控闸门在暂停/恢复之间切换时回调。
func (e *QuoteEngine) SetRiskListener(fn func(suspended bool, err error)) {
	e.onRiskChange = fn
}

func (e *QuoteEngine) Start() {
	e.state = StateActive
	e.quotesPosted = 0
	e.quotesUpdated = 0
}

// Stop 停止报价并清空当前挂单。
func (e *QuoteEngine) Stop() {
	e.state = StateInactive
	e.bid = nil
	e.ask = nil
}

func (e *QuoteEngine) State() State { return e.state }

func (e *QuoteEngine) Active() bool { return e.state == StateActive }

// CurrentQuotes 返回当前挂单副本。
func (e *QuoteEngine) CurrentQuotes() (bid, ask *Quote) {
	return cloneQuote(e.bid), cloneQuote(e.ask)
}

// FairPrice 返回中间价；空盘口或交叉盘口不可用。
func (e *QuoteEngine) FairPrice(v market.BookView) (float64, bool) {
	return FairPrice(v)
}

// FairPrice 返回中间价；空盘口或交叉盘口不可用。
func FairPrice(v market.BookView) (float64, bool) {
	bid, okb := v.BestBid()
	ask, oka := v.BestAsk()
	if !okb || !oka || ask.Price <= bid.Price {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// RiskGate 返回非 nil 表示本周期暂停报价。每次重新评估，不锁存。
func (e *QuoteEngine) RiskGate(position, totalPnL, fair float64) error {
	changed, err := e.gate.Evaluate(risk.Exposure{Position: position, PnL: totalPnL, FairPrice: fair})
	if changed && e.onRiskChange != nil {
		e.onRiskChange(err != nil, err)
	}
	return err
}

// OrderSize 每边固定数量。
func (e *QuoteEngine) OrderSize() float64 {
	return math.Max(MinOrderSize, math.Min(e.cfg.BaseOrderSize, e.cfg.MaxOrderSize))
}

// Exposure 带符号的名义敞口比例 q·fair/maxNotional。
func (e *QuoteEngine) Exposure(position, fair float64) float64 {
	if e.cfg.MaxNotional <= 0 {
		return 0
	}
	return position * fair / e.cfg.MaxNotional
}

// GenerateQuotes 以盘口最优价为起点，多头只收紧卖价，空头只收紧买价。
func (e *QuoteEngine) GenerateQuotes(v market.BookView, position, totalPnL float64) (bid, ask *Quote) {
	fair, ok := FairPrice(v)
	if !ok {
		return nil, nil
	}
	if err := e.RiskGate(position, totalPnL, fair); err != nil {
		return nil, nil
	}

	bestBid := v.Bids[0].Price
	bestAsk := v.Asks[0].Price
	bidPx, askPx := bestBid, bestAsk

	expo := e.Exposure(position, fair)
	if tier := e.tiers.Multiplier(math.Abs(expo)); tier > 0 {
		offset := fair * tier * e.cfg.SkewStepBps / 10000
		switch {
		case expo > 0:
			askPx = math.Max(bestBid+e.cfg.TickSize, bestAsk-offset)
		case expo < 0:
			bidPx = math.Min(bestAsk-e.cfg.TickSize, bestBid+offset)
		}
	}

	size := e.OrderSize()
	now := e.clock.Now()
	e.quotesPosted++
	return &Quote{Side: QuoteBid, Price: bidPx, Size: size, Ts: now},
		&Quote{Side: QuoteAsk, Price: askPx, Size: size, Ts: now}
}

// ShouldRefresh 距上次更新超过刷新间隔。
func (e *QuoteEngine) ShouldRefresh() bool {
	return e.clock.Now().Sub(e.lastUpdate) > e.cfg.RefreshInterval
}

// UpdateQuotes 到达刷新间隔时重新生成报价；任一侧显著变化则同时替换两侧并返回新报价。
func (e *QuoteEngine) UpdateQuotes(v market.BookView, position, totalPnL float64) (bid, ask *Quote, changed bool) {
	if e.state != StateActive || !e.ShouldRefresh() {
		return nil, nil, false
	}
	newBid, newAsk := e.GenerateQuotes(v, position, totalPnL)
	if !quoteChanged(e.bid, newBid) && !quoteChanged(e.ask, newAsk) {
		return nil, nil, false
	}
	e.bid, e.ask = newBid, newAsk
	e.lastUpdate = e.clock.Now()
	e.quotesUpdated++
	return cloneQuote(newBid), cloneQuote(newAsk), true
}

// Status 返回当前状态快照。
func (e *QuoteEngine) Status() Status {
	st := Status{
		State:          e.state,
		Bid:            cloneQuote(e.bid),
		Ask:            cloneQuote(e.ask),
		LastUpdate:     e.lastUpdate,
		QuotesPosted:   e.quotesPosted,
		QuotesUpdated:  e.quotesUpdated,
		RiskSuspended:  e.gate.Suspended(),
		RiskSuspension: e.gate.Suspensions(),
	}
	if err := e.gate.LastError(); err != nil {
		st.RiskReason = err.Error()
	}
	return st
}

func quoteChanged(old, next *Quote) bool {
	if old == nil && next == nil {
		return false
	}
	if old == nil || next == nil {
		return true
	}
	return math.Abs(old.Price-next.Price) > quoteChangeThreshold ||
		math.Abs(old.Size-next.Size) > quoteChangeThreshold
}

func cloneQuote(q *Quote) *Quote {
	if q == nil {
		return nil
	}
	c := *q
	return &c
}
