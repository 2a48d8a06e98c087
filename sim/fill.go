package sim

import (
	"math"
	"time"

	"github.com/google/uuid"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
	"market-maker-sim/strategy"
)

// Ledger 成交入账接口，由 inventory.Ledger 实现。
type Ledger interface {
	Position() float64
	Bounds() (min, max float64)
	Process(f inventory.Fill) float64
}

// FillSimulator 用市场成交撮合自身挂单：卖方主动成交价不高于买价时买单成交，
// 买方主动成交价不低于卖价时卖单成交，数量按库存上下限裁剪。
type FillSimulator struct {
	ledger Ledger
	newID  func() string
	now    func() time.Time
}

func NewFillSimulator(ledger Ledger) *FillSimulator {
	return &FillSimulator{
		ledger: ledger,
		newID:  func() string { return uuid.NewString() },
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Simulate 命中时先同步入账，再返回成交。
func (s *FillSimulator) Simulate(tr market.Trade, bid, ask *strategy.Quote) (inventory.Fill, bool) {
	var (
		side  market.Side
		quote *strategy.Quote
	)
	switch {
	case bid != nil && bid.Size > 0 && tr.Side == market.SideSell && tr.Price <= bid.Price:
		side, quote = market.SideBuy, bid
	case ask != nil && ask.Size > 0 && tr.Side == market.SideBuy && tr.Price >= ask.Price:
		side, quote = market.SideSell, ask
	default:
		return inventory.Fill{}, false
	}

	size := math.Min(quote.Size, tr.Size)
	q := s.ledger.Position()
	lo, hi := s.ledger.Bounds()
	if side == market.SideBuy {
		size = math.Min(size, hi-q)
	} else {
		size = math.Min(size, q-lo)
	}
	if !(size > 0) {
		return inventory.Fill{}, false
	}

	ts := tr.Ts
	if ts.IsZero() {
		ts = s.now()
	}
	f := inventory.Fill{
		ID:    s.newID(),
		Ts:    ts,
		Side:  side,
		Price: quote.Price,
		Size:  size,
	}
	s.ledger.Process(f)
	return f, true
}
