package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-maker-sim/market"
	"market-maker-sim/risk"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T, mutate func(*Config)) (*QuoteEngine, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, err := NewQuoteEngine(cfg, clk)
	require.NoError(t, err)
	return e, clk
}

func book(bid, ask float64) market.BookView {
	return market.NewBookView([]market.Level{{Price: bid, Size: 1}}, []market.Level{{Price: ask, Size: 1}})
}

func TestNewQuoteEngine_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNotional = 0
	_, err := NewQuoteEngine(cfg, nil)
	require.Error(t, err)
}

func TestFairPrice(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	fair, ok := e.FairPrice(book(100, 101))
	require.True(t, ok)
	assert.Equal(t, 100.5, fair)

	_, ok = e.FairPrice(market.BookView{})
	assert.False(t, ok, "empty book")

	_, ok = e.FairPrice(market.NewBookView([]market.Level{{Price: 100, Size: 1}}, nil))
	assert.False(t, ok, "one-sided book")

	_, ok = e.FairPrice(book(101, 100))
	assert.False(t, ok, "crossed book")

	_, ok = e.FairPrice(book(100, 100))
	assert.False(t, ok, "locked book")
}

func TestGenerateQuotes_EmptyBook(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	bid, ask := e.GenerateQuotes(market.BookView{}, 0, 0)
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}

func TestGenerateQuotes_TopOfBookWhenFlat(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	bid, ask := e.GenerateQuotes(book(100, 101), 0, 0)
	require.NotNil(t, bid)
	require.NotNil(t, ask)
	assert.Equal(t, QuoteBid, bid.Side)
	assert.Equal(t, QuoteAsk, ask.Side)
	assert.Equal(t, 100.0, bid.Price)
	assert.Equal(t, 101.0, ask.Price)
	assert.Equal(t, 0.05, bid.Size)
	assert.Equal(t, 0.05, ask.Size)
	assert.Equal(t, clk.now, bid.Ts)
}

func TestGenerateQuotes_SkewTiers(t *testing.T) {
	// fair 100.5, maxNotional 1000 => expo = q * 0.1005
	tests := []struct {
		name     string
		position float64
		wantBid  float64
		wantAsk  float64
	}{
		{"inside deadband", 1.9, 100, 101},
		{"long tier 1", 3, 100, 101 - 100.5*2/10000},
		{"long tier 2", 5, 100, 101 - 100.5*4/10000},
		{"long tier 3", 8, 100, 101 - 100.5*6/10000},
		{"short tier 1", -3, 100 + 100.5*2/10000, 101},
		{"short tier 3", -9, 100 + 100.5*6/10000, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, func(c *Config) { c.MaxNotional = 1000 })
			bid, ask := e.GenerateQuotes(book(100, 101), tt.position, 0)
			require.NotNil(t, bid)
			require.NotNil(t, ask)
			assert.InDelta(t, tt.wantBid, bid.Price, 1e-9)
			assert.InDelta(t, tt.wantAsk, ask.Price, 1e-9)
		})
	}
}

func TestGenerateQuotes_SkewNeverCrossesBook(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.MaxNotional = 1000
		c.SkewStepBps = 500
	})
	_, ask := e.GenerateQuotes(book(100, 101), 5, 0)
	require.NotNil(t, ask)
	assert.InDelta(t, 100.01, ask.Price, 1e-9)

	bid, _ := e.GenerateQuotes(book(100, 101), -5, 0)
	require.NotNil(t, bid)
	assert.InDelta(t, 100.99, bid.Price, 1e-9)
}

func TestGenerateQuotes_RiskGate(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.MaxNotional = 1000
		c.MaxLoss = 500
	})
	var transitions []bool
	e.SetRiskListener(func(suspended bool, err error) {
		transitions = append(transitions, suspended)
	})

	bid, ask := e.GenerateQuotes(book(100, 101), 20, 0)
	assert.Nil(t, bid)
	assert.Nil(t, ask)
	assert.True(t, errors.Is(e.RiskGate(20, 0, 100.5), risk.ErrNotionalExceed))

	bid, ask = e.GenerateQuotes(book(100, 101), 0, -501)
	assert.Nil(t, bid)
	assert.Nil(t, ask)

	// 指标恢复后自动解除
	bid, ask = e.GenerateQuotes(book(100, 101), 0, -499)
	assert.NotNil(t, bid)
	assert.NotNil(t, ask)

	assert.Equal(t, []bool{true, false}, transitions)
	assert.Equal(t, int64(1), e.Status().RiskSuspension)
}

func TestOrderSizeClamp(t *testing.T) {
	tests := []struct {
		base, max, want float64
	}{
		{0.05, 1, 0.05},
		{0.001, 1, 0.01},
		{5, 1, 1},
	}
	for _, tt := range tests {
		e, _ := newTestEngine(t, func(c *Config) {
			c.BaseOrderSize = tt.base
			c.MaxOrderSize = tt.max
		})
		assert.Equal(t, tt.want, e.OrderSize())
	}
}

func TestUpdateQuotes_InactiveIsNoop(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, _, changed := e.UpdateQuotes(book(100, 101), 0, 0)
	assert.False(t, changed)
	bid, ask := e.CurrentQuotes()
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}

func TestUpdateQuotes_ThrottledWithinInterval(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	e.Start()

	bid, ask, changed := e.UpdateQuotes(book(100, 101), 0, 0)
	require.True(t, changed)
	assert.Equal(t, 100.0, bid.Price)
	assert.Equal(t, 101.0, ask.Price)

	clk.Advance(50 * time.Millisecond)
	_, _, changed = e.UpdateQuotes(book(100, 101), 0, 0)
	assert.False(t, changed, "second call inside refresh interval")
	assert.False(t, e.ShouldRefresh())

	clk.Advance(100 * time.Millisecond)
	assert.True(t, e.ShouldRefresh())
	_, _, changed = e.UpdateQuotes(book(100, 101), 0, 0)
	assert.False(t, changed, "unchanged book after interval")

	_, _, changed = e.UpdateQuotes(book(100.005, 101), 0, 0)
	assert.False(t, changed, "move below significance threshold")

	assert.Equal(t, int64(1), e.Status().QuotesUpdated)
}

func TestUpdateQuotes_ReplacesBothSides(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	e.Start()
	_, _, changed := e.UpdateQuotes(book(100, 101), 0, 0)
	require.True(t, changed)
	first := clk.now

	clk.Advance(time.Second)
	bid, ask, changed := e.UpdateQuotes(book(100, 102), 0, 0)
	require.True(t, changed)
	assert.Equal(t, 100.0, bid.Price)
	assert.Equal(t, 102.0, ask.Price)

	curBid, curAsk := e.CurrentQuotes()
	assert.Equal(t, clk.now, curBid.Ts, "unchanged side is replaced as well")
	assert.Equal(t, clk.now, curAsk.Ts)
	assert.True(t, curBid.Ts.After(first))
	assert.Equal(t, clk.now, e.Status().LastUpdate)
}

func TestUpdateQuotes_ClearsOnRiskBreach(t *testing.T) {
	e, clk := newTestEngine(t, func(c *Config) { c.MaxNotional = 1000 })
	e.Start()
	_, _, changed := e.UpdateQuotes(book(100, 101), 0, 0)
	require.True(t, changed)

	clk.Advance(time.Second)
	bid, ask, changed := e.UpdateQuotes(book(100, 101), 50, 0)
	require.True(t, changed)
	assert.Nil(t, bid)
	assert.Nil(t, ask)
	st := e.Status()
	assert.True(t, st.RiskSuspended)
	assert.NotEmpty(t, st.RiskReason)
}

func TestStopClearsQuotes(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Start()
	_, _, changed := e.UpdateQuotes(book(100, 101), 0, 0)
	require.True(t, changed)
	assert.Equal(t, StateActive, e.State())

	e.Stop()
	assert.Equal(t, StateInactive, e.State())
	assert.Equal(t, "INACTIVE", e.State().String())
	bid, ask := e.CurrentQuotes()
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}

func TestSetConfig(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	cfg := e.Config()
	cfg.BaseOrderSize = 0.2
	require.NoError(t, e.SetConfig(cfg))
	assert.Equal(t, 0.2, e.OrderSize())

	cfg.TickSize = 0
	require.Error(t, e.SetConfig(cfg))
	assert.Equal(t, 0.2, e.Config().BaseOrderSize)
}
