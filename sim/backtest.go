package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/inventory"
	"market-maker-sim/market"
	"market-maker-sim/risk"
)

// Bar 回放的一个时间点：中间价与该时刻的市场成交。
type Bar struct {
	Ts     time.Time
	Mid    float64
	Trades []market.Trade
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	Runner     RunnerConfig
	HalfSpread float64 // 合成盘口最优价到中间价的距离
	LevelStep  float64 // 相邻档位间距
	Levels     int
	LevelSize  float64
}

// DefaultBacktestConfig 以 BTCUSDT 量级构造 20 档合成盘口。
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		Runner:     DefaultRunnerConfig(),
		HalfSpread: 0.5,
		LevelStep:  0.5,
		Levels:     20,
		LevelSize:  1,
	}
}

// BacktestResult 回测结果
type BacktestResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Bars         int
	MarketTrades int
	Fills        int

	FinalEquity float64 // 初始资金 + 总盈亏
	TotalPnL    float64
	MaxDrawdown float64 // 相对权益峰值
	SharpeRatio float64 // 按 bar 收益计算，不年化

	EquityCurve []float64
	Portfolio   inventory.Summary
}

// SyntheticBook 围绕 mid 生成对称的多档盘口。
func SyntheticBook(mid, halfSpread, step float64, levels int, size float64) (bids, asks []market.Level) {
	if levels <= 0 {
		levels = 1
	}
	bids = make([]market.Level, 0, levels)
	asks = make([]market.Level, 0, levels)
	for i := 0; i < levels; i++ {
		off := halfSpread + float64(i)*step
		bids = append(bids, market.Level{Price: mid - off, Size: size})
		asks = append(asks, market.Level{Price: mid + off, Size: size})
	}
	return bids, asks
}

// RandomWalk 生成对数正态随机游走的中间价，并按概率生成偏离中间价的市场成交。
func RandomWalk(rng *rand.Rand, start time.Time, n int, step time.Duration, mid, vol, tradeProb, tradeSize float64) []Bar {
	bars := make([]Bar, 0, n)
	ts := start
	for i := 0; i < n; i++ {
		mid *= math.Exp(vol * rng.NormFloat64())
		bar := Bar{Ts: ts, Mid: mid}
		if rng.Float64() < tradeProb {
			off := math.Abs(rng.NormFloat64()) * vol * mid
			tr := market.Trade{Ts: ts.Add(step / 2), Size: tradeSize * (0.5 + rng.Float64())}
			if rng.Intn(2) == 0 {
				tr.Side, tr.Price = market.SideBuy, mid+off
			} else {
				tr.Side, tr.Price = market.SideSell, mid-off
			}
			bar.Trades = append(bar.Trades, tr)
		}
		bars = append(bars, bar)
		ts = ts.Add(step)
	}
	return bars
}

// RunBacktest 用虚拟时钟驱动一个新 Runner 回放 bars，返回 Runner 以便导出。
func RunBacktest(cfg BacktestConfig, bars []Bar, log *logger.Logger) (*Runner, BacktestResult, error) {
	if len(bars) == 0 {
		return nil, BacktestResult{}, fmt.Errorf("no bars provided")
	}
	var now time.Time
	rc := cfg.Runner
	rc.Clock = risk.ClockFunc(func() time.Time { return now })
	r, err := BuildRunner(rc, log)
	if err != nil {
		return nil, BacktestResult{}, err
	}

	res := BacktestResult{
		StartTime: bars[0].Ts,
		EndTime:   bars[len(bars)-1].Ts,
		Bars:      len(bars),
	}
	peak := math.Inf(-1)
	r.Start()
	for _, b := range bars {
		now = b.Ts
		bids, asks := SyntheticBook(b.Mid, cfg.HalfSpread, cfg.LevelStep, cfg.Levels, cfg.LevelSize)
		if err := r.OnBook(bids, asks, b.Ts); err != nil {
			continue
		}
		for _, tr := range b.Trades {
			if tr.Ts.After(now) {
				now = tr.Ts
			}
			res.MarketTrades++
			if _, ok := r.OnTrade(tr); ok {
				res.Fills++
			}
		}
		r.Refresh()

		eq := equity(r.Summary())
		res.EquityCurve = append(res.EquityCurve, eq)
		peak = math.Max(peak, eq)
		if peak > 0 {
			res.MaxDrawdown = math.Max(res.MaxDrawdown, (peak-eq)/peak)
		}
	}
	r.Stop()

	res.Portfolio = r.Summary()
	res.FinalEquity = equity(res.Portfolio)
	res.TotalPnL = res.Portfolio.TotalPnL
	res.SharpeRatio = sharpe(res.EquityCurve)
	return r, res, nil
}

// equity 账户权益：USD 余额加持仓按盯市价的价值。
func equity(s inventory.Summary) float64 {
	return s.USDBalance + s.NAV
}

func sharpe(equity []float64) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}
