package market

import (
	"slices"
	"time"

	"market-maker-sim/internal/buffer"
)

// DefaultSpreadSizes 默认统计的下单规模。
var DefaultSpreadSizes = []float64{0.1, 1, 5, 10}

// DefaultSpreadWindow 默认滚动窗口长度。
const DefaultSpreadWindow = 100

// SpreadMetrics 某个规模在滚动窗口内的统计。
type SpreadMetrics struct {
	Avg    float64
	Median float64
	Min    float64
	Max    float64
	Count  int
}

// SpreadRow 一次 Update 的所有规模取值，顺序与 Sizes() 一致。
type SpreadRow struct {
	Ts      time.Time
	Spreads []float64
}

type spreadSeries struct {
	rolling *buffer.Ring[float64]
	full    *buffer.Log[float64]
}

func (s *spreadSeries) append(v float64) {
	for _, sink := range []buffer.Appender[float64]{s.rolling, s.full} {
		sink.Append(v)
	}
}

// SpreadAnalyzer 计算深度加权价差并维护滚动窗口与完整历史。
// 非并发安全，由调用方持锁。
type SpreadAnalyzer struct {
	sizes  []float64
	series map[float64]*spreadSeries

	tsRolling *buffer.Ring[time.Time]
	tsFull    *buffer.Log[time.Time]

	now func() time.Time
}

// NewSpreadAnalyzer sizes 为空时使用默认规模，window <= 0 时使用默认窗口。
func NewSpreadAnalyzer(window int, sizes []float64) *SpreadAnalyzer {
	if window <= 0 {
		window = DefaultSpreadWindow
	}
	if len(sizes) == 0 {
		sizes = DefaultSpreadSizes
	}
	sorted := make([]float64, 0, len(sizes))
	for _, s := range sizes {
		if s > 0 && !slices.Contains(sorted, s) {
			sorted = append(sorted, s)
		}
	}
	slices.Sort(sorted)

	a := &SpreadAnalyzer{
		sizes:     sorted,
		series:    make(map[float64]*spreadSeries, len(sorted)),
		tsRolling: buffer.NewRing[time.Time](window),
		tsFull:    buffer.NewLog[time.Time](),
		now:       time.Now,
	}
	for _, s := range sorted {
		a.series[s] = &spreadSeries{
			rolling: buffer.NewRing[float64](window),
			full:    buffer.NewLog[float64](),
		}
	}
	return a
}

// Sizes 返回升序的统计规模。
func (a *SpreadAnalyzer) Sizes() []float64 {
	return slices.Clone(a.sizes)
}

// SetClock 替换时间源（测试用）。
func (a *SpreadAnalyzer) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// VWAP 从最优档开始吃单直到 size，不足部分按最差档价格补齐。
func VWAP(levels []Level, size float64) float64 {
	if size <= 0 || len(levels) == 0 {
		return 0
	}
	remaining := size
	cost := 0.0
	for _, l := range levels {
		if remaining <= 0 {
			break
		}
		take := min(remaining, l.Size)
		cost += take * l.Price
		remaining -= take
	}
	if remaining > 0 {
		cost += remaining * levels[len(levels)-1].Price
	}
	return cost / size
}

// SpreadForSize 返回成交 size 所需的加权卖价与加权买价之差。
func SpreadForSize(v BookView, size float64) float64 {
	if size <= 0 || v.Empty() {
		return 0
	}
	return VWAP(v.Asks, size) - VWAP(v.Bids, size)
}

// Update 为每个规模计算价差并写入滚动窗口与完整历史。
func (a *SpreadAnalyzer) Update(v BookView) {
	ts := a.now()
	a.tsRolling.Append(ts)
	a.tsFull.Append(ts)
	for _, size := range a.sizes {
		a.series[size].append(SpreadForSize(v, size))
	}
}

// Metrics 返回滚动窗口统计；无数据或未配置的规模返回零值。
func (a *SpreadAnalyzer) Metrics(size float64) SpreadMetrics {
	s, ok := a.series[size]
	if !ok {
		return SpreadMetrics{}
	}
	vals := s.rolling.Values()
	if len(vals) == 0 {
		return SpreadMetrics{}
	}
	slices.Sort(vals)
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	n := len(vals)
	median := vals[n/2]
	if n%2 == 0 {
		median = (vals[n/2-1] + vals[n/2]) / 2
	}
	return SpreadMetrics{
		Avg:    sum / float64(n),
		Median: median,
		Min:    vals[0],
		Max:    vals[n-1],
		Count:  n,
	}
}

// AllMetrics 按 Sizes() 顺序返回各规模统计。
func (a *SpreadAnalyzer) AllMetrics() []SpreadMetrics {
	out := make([]SpreadMetrics, len(a.sizes))
	for i, s := range a.sizes {
		out[i] = a.Metrics(s)
	}
	return out
}

// History 导出滚动窗口（full=false）或完整历史（full=true）。
func (a *SpreadAnalyzer) History(full bool) []SpreadRow {
	var stamps []time.Time
	cols := make([][]float64, len(a.sizes))
	if full {
		stamps = a.tsFull.Values()
		for i, s := range a.sizes {
			cols[i] = a.series[s].full.Values()
		}
	} else {
		stamps = a.tsRolling.Values()
		for i, s := range a.sizes {
			cols[i] = a.series[s].rolling.Values()
		}
	}
	rows := make([]SpreadRow, len(stamps))
	for i, ts := range stamps {
		row := SpreadRow{Ts: ts, Spreads: make([]float64, len(cols))}
		for j, col := range cols {
			if i < len(col) {
				row.Spreads[j] = col[i]
			}
		}
		rows[i] = row
	}
	return rows
}
