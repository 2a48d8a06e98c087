package posttrade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAnalyzer_OnFill(t *testing.T) {
	a := NewAnalyzer()
	a.OnFill(inventory.Fill{ID: "f1", Ts: t0, Side: market.SideBuy, Price: 99.5, Size: 1})
	stats := a.Stats()
	assert.Equal(t, 1, stats.TotalFills)
	assert.Equal(t, 0, stats.AnalyzedFills)
}

func TestAnalyzer_MarkoutsFromMarks(t *testing.T) {
	a := NewAnalyzer()
	a.OnFill(inventory.Fill{ID: "buy", Ts: t0, Side: market.SideBuy, Price: 100, Size: 1})
	a.OnFill(inventory.Fill{ID: "sell", Ts: t0, Side: market.SideSell, Price: 100, Size: 1})

	a.OnMark(t0.Add(500*time.Millisecond), 150) // 未到 1s
	a.OnMark(t0.Add(time.Second), 99)
	a.OnMark(t0.Add(3*time.Second), 1)
	assert.Equal(t, 0, a.Stats().AnalyzedFills)

	a.OnMark(t0.Add(5*time.Second), 102)
	a.OnMark(t0.Add(6*time.Second), 500) // 已采样，不覆盖

	stats := a.Stats()
	require.Equal(t, 2, stats.AnalyzedFills)
	// buy: 1s -1%，5s +2%；sell: 1s +1%，5s -2%
	assert.InDelta(t, 0.5, stats.AdverseSelectionRate, 1e-12)
	assert.InDelta(t, 0.0, stats.AvgMarkout1s, 1e-12)
	assert.InDelta(t, 0.0, stats.AvgMarkout5s, 1e-12)
}

func TestAnalyzer_IgnoresInvalidMid(t *testing.T) {
	a := NewAnalyzer()
	a.OnFill(inventory.Fill{ID: "buy", Ts: t0, Side: market.SideBuy, Price: 100})
	a.OnMark(t0.Add(10*time.Second), 0)
	assert.Equal(t, 0, a.Stats().AnalyzedFills)
}

func TestAnalyzer_CleanOldRecords(t *testing.T) {
	a := NewAnalyzer()
	a.OnFill(inventory.Fill{ID: "old", Ts: t0, Side: market.SideBuy, Price: 100})
	a.OnFill(inventory.Fill{ID: "new", Ts: t0.Add(time.Minute), Side: market.SideSell, Price: 100})
	removed := a.CleanOldRecords(t0.Add(90*time.Second), time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, a.Stats().TotalFills)
}
