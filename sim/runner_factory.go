package sim

import (
	"fmt"
	"time"

	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/inventory"
	"market-maker-sim/market"
	"market-maker-sim/risk"
	"market-maker-sim/strategy"
)

// RunnerConfig 描述 Runner 的全部参数。
type RunnerConfig struct {
	Symbol string

	BaseSpreadBps   float64
	MinSpreadBps    float64
	MaxSpreadBps    float64
	BaseOrderSize   float64
	MaxOrderSize    float64
	MaxNotional     float64
	MaxLoss         float64
	RefreshInterval time.Duration
	TickSize        float64
	SkewDeadband    float64
	SkewStepBps     float64

	InitialCash  float64
	MaxInventory float64

	SpreadWindow int
	SpreadSizes  []float64
	BookDepth    int

	Clock risk.Clock // 为空时使用 UTC 实时时钟
}

// DefaultRunnerConfig 默认参数。
func DefaultRunnerConfig() RunnerConfig {
	sc := strategy.DefaultConfig()
	lc := inventory.DefaultConfig()
	return RunnerConfig{
		Symbol:          "BTCUSDT",
		BaseSpreadBps:   sc.BaseSpreadBps,
		MinSpreadBps:    sc.MinSpreadBps,
		MaxSpreadBps:    sc.MaxSpreadBps,
		BaseOrderSize:   sc.BaseOrderSize,
		MaxOrderSize:    sc.MaxOrderSize,
		MaxNotional:     sc.MaxNotional,
		MaxLoss:         sc.MaxLoss,
		RefreshInterval: sc.RefreshInterval,
		TickSize:        sc.TickSize,
		SkewDeadband:    sc.SkewDeadband,
		SkewStepBps:     sc.SkewStepBps,
		InitialCash:     lc.InitialCash,
		MaxInventory:    lc.MaxInventory,
		SpreadWindow:    market.DefaultSpreadWindow,
		SpreadSizes:     append([]float64(nil), market.DefaultSpreadSizes...),
		BookDepth:       DefaultBookDepth,
	}
}

// StrategyConfig 报价引擎参数。
func (c RunnerConfig) StrategyConfig() strategy.Config {
	return strategy.Config{
		BaseSpreadBps:   c.BaseSpreadBps,
		MinSpreadBps:    c.MinSpreadBps,
		MaxSpreadBps:    c.MaxSpreadBps,
		BaseOrderSize:   c.BaseOrderSize,
		MaxOrderSize:    c.MaxOrderSize,
		MaxNotional:     c.MaxNotional,
		MaxLoss:         c.MaxLoss,
		RefreshInterval: c.RefreshInterval,
		TickSize:        c.TickSize,
		SkewDeadband:    c.SkewDeadband,
		SkewStepBps:     c.SkewStepBps,
	}
}

// BuildRunner 基于配置组装 Runner（全部为内存组件）。
func BuildRunner(cfg RunnerConfig, log *logger.Logger) (*Runner, error) {
	if log == nil {
		log = logger.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = risk.NowUTC
	}
	engine, err := strategy.NewQuoteEngine(cfg.StrategyConfig(), clock)
	if err != nil {
		return nil, err
	}
	ledger, err := inventory.NewLedger(inventory.Config{
		InitialCash:  cfg.InitialCash,
		MaxInventory: cfg.MaxInventory,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	spreads := market.NewSpreadAnalyzer(cfg.SpreadWindow, cfg.SpreadSizes)
	spreads.SetClock(clock.Now)

	depth := cfg.BookDepth
	if depth <= 0 {
		depth = DefaultBookDepth
	}

	fills := NewFillSimulator(ledger)
	fills.now = clock.Now

	r := &Runner{
		Symbol:  cfg.Symbol,
		book:    market.NewOrderBook(),
		spreads: spreads,
		engine:  engine,
		ledger:  ledger,
		fills:   fills,
		clock:   clock,
		depth:   depth,
		log:     log.WithFields(map[string]interface{}{"component": "sim", "symbol": cfg.Symbol}),
	}
	engine.SetRiskListener(r.onRiskChange)
	return r, nil
}
