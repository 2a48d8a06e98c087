package posttrade

import (
	"sync"
	"time"

	"market-maker-sim/inventory"
	"market-maker-sim/market"
)

// Markout horizons.
const (
	Horizon1s = time.Second
	Horizon5s = 5 * time.Second
)

// FillRecord represents a fill and the mid observed after it.
type FillRecord struct {
	ID        string
	Side      market.Side
	FillPrice float64
	FillTime  time.Time

	MidAfter1s float64
	MidAfter5s float64
	Has1s      bool
	Has5s      bool
}

// markout 相对收益：买单为 (mid-fill)/fill，卖单取反；负值表示被逆向选择。
func (r *FillRecord) markout(mid float64) float64 {
	if r.FillPrice == 0 {
		return 0
	}
	if r.Side == market.SideBuy {
		return (mid - r.FillPrice) / r.FillPrice
	}
	return (r.FillPrice - mid) / r.FillPrice
}

// Stats contains statistics computed by the analyzer
type Stats struct {
	AdverseSelectionRate float64
	AvgMarkout1s         float64
	AvgMarkout5s         float64
	TotalFills           int
	AnalyzedFills        int
}

// Analyzer measures post-fill markouts from mark events; it never sleeps or spawns goroutines.
type Analyzer struct {
	mu    sync.RWMutex
	fills map[string]*FillRecord
}

// NewAnalyzer creates a new post-trade analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{fills: make(map[string]*FillRecord)}
}

// OnFill records a fill.
func (a *Analyzer) OnFill(f inventory.Fill) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fills[f.ID] = &FillRecord{
		ID:        f.ID,
		Side:      f.Side,
		FillPrice: f.Price,
		FillTime:  f.Ts,
	}
}

// OnMark samples the mid for every fill whose horizon has elapsed.
func (a *Analyzer) OnMark(ts time.Time, mid float64) {
	if mid <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.fills {
		age := ts.Sub(r.FillTime)
		if !r.Has1s && age >= Horizon1s {
			r.MidAfter1s, r.Has1s = mid, true
		}
		if !r.Has5s && age >= Horizon5s {
			r.MidAfter5s, r.Has5s = mid, true
		}
	}
}

// Stats computes and returns statistics
func (a *Analyzer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{TotalFills: len(a.fills)}
	var adverse int
	var sum1s, sum5s float64
	for _, r := range a.fills {
		if !r.Has1s || !r.Has5s {
			continue
		}
		stats.AnalyzedFills++
		m1 := r.markout(r.MidAfter1s)
		sum1s += m1
		sum5s += r.markout(r.MidAfter5s)
		if m1 < 0 {
			adverse++
		}
	}
	if n := float64(stats.AnalyzedFills); n > 0 {
		stats.AdverseSelectionRate = float64(adverse) / n
		stats.AvgMarkout1s = sum1s / n
		stats.AvgMarkout5s = sum5s / n
	}
	return stats
}

// CleanOldRecords removes records older than maxAge relative to now.
func (a *Analyzer) CleanOldRecords(now time.Time, maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for id, r := range a.fills {
		if now.Sub(r.FillTime) > maxAge {
			delete(a.fills, id)
			removed++
		}
	}
	return removed
}
