package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/sim"
)

// EnvPrefix 环境变量覆盖的统一前缀。
const EnvPrefix = "MM_"

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Symbol    string          `yaml:"symbol" env:"SYMBOL"`
	Strategy  StrategyConfig  `yaml:"strategy" envPrefix:"STRATEGY_"`
	Risk      RiskConfig      `yaml:"risk" envPrefix:"RISK_"`
	Inventory InventoryConfig `yaml:"inventory" envPrefix:"INVENTORY_"`
	Spread    SpreadConfig    `yaml:"spread" envPrefix:"SPREAD_"`
	Feed      FeedConfig      `yaml:"feed" envPrefix:"FEED_"`
	Log       logger.Config   `yaml:"log" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Export    ExportConfig    `yaml:"export" envPrefix:"EXPORT_"`
	Engine    EngineConfig    `yaml:"engine" envPrefix:"ENGINE_"`
}

// StrategyConfig 报价参数，可热更新。
type StrategyConfig struct {
	BaseSpreadBps   float64       `yaml:"baseSpreadBps" env:"BASE_SPREAD_BPS"`
	MinSpreadBps    float64       `yaml:"minSpreadBps" env:"MIN_SPREAD_BPS"`
	MaxSpreadBps    float64       `yaml:"maxSpreadBps" env:"MAX_SPREAD_BPS"`
	BaseOrderSize   float64       `yaml:"baseOrderSize" env:"BASE_ORDER_SIZE"`
	MaxOrderSize    float64       `yaml:"maxOrderSize" env:"MAX_ORDER_SIZE"`
	RefreshInterval time.Duration `yaml:"refreshInterval" env:"REFRESH_INTERVAL"`
	TickSize        float64       `yaml:"tickSize" env:"TICK_SIZE"`
	SkewDeadband    float64       `yaml:"skewDeadband" env:"SKEW_DEADBAND"` // |expo| 不超过该值不偏移
	SkewStepBps     float64       `yaml:"skewStepBps" env:"SKEW_STEP_BPS"`  // 每档偏移的基点数
}

// RiskConfig 风控闸门阈值（美元）。
type RiskConfig struct {
	MaxNotional float64 `yaml:"maxNotional" env:"MAX_NOTIONAL"`
	MaxLoss     float64 `yaml:"maxLoss" env:"MAX_LOSS"`
}

type InventoryConfig struct {
	InitialCash  float64 `yaml:"initialCash" env:"INITIAL_CASH"`
	MaxInventory float64 `yaml:"maxInventory" env:"MAX_INVENTORY"`
}

// SpreadConfig 价差统计窗口与规模。
type SpreadConfig struct {
	Window    int       `yaml:"window" env:"WINDOW"`
	Sizes     []float64 `yaml:"sizes" env:"SIZES"`
	BookDepth int       `yaml:"bookDepth" env:"BOOK_DEPTH"`
}

// FeedConfig 行情 websocket。
// SnapshotURL 为空时不做 REST 深度快照预热。
type FeedConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	URL          string        `yaml:"url" env:"URL"`
	SnapshotURL  string        `yaml:"snapshotUrl" env:"SNAPSHOT_URL"`
	SnapshotRate float64       `yaml:"snapshotRate" env:"SNAPSHOT_RATE"` // 每秒请求数
	ReadTimeout  time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	ReconnectMin time.Duration `yaml:"reconnectMin" env:"RECONNECT_MIN"`
	ReconnectMax time.Duration `yaml:"reconnectMax" env:"RECONNECT_MAX"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// ExportConfig CSV 导出；间隔为 0 表示关闭对应的周期性追加。
type ExportConfig struct {
	Dir            string        `yaml:"dir" env:"DIR"`
	ShutdownDir    string        `yaml:"shutdownDir" env:"SHUTDOWN_DIR"`
	PnLInterval    time.Duration `yaml:"pnlInterval" env:"PNL_INTERVAL"`
	SpreadInterval time.Duration `yaml:"spreadInterval" env:"SPREAD_INTERVAL"`
}

// EngineConfig 轮询循环。
type EngineConfig struct {
	AutoStart      bool          `yaml:"autoStart" env:"AUTO_START"`
	PollInterval   time.Duration `yaml:"pollInterval" env:"POLL_INTERVAL"`
	StatusInterval time.Duration `yaml:"statusInterval" env:"STATUS_INTERVAL"`
	HealthInterval time.Duration `yaml:"healthInterval" env:"HEALTH_INTERVAL"`
	AlertThrottle  time.Duration `yaml:"alertThrottle" env:"ALERT_THROTTLE"`
	ReloadCooldown time.Duration `yaml:"reloadCooldown" env:"RELOAD_COOLDOWN"`
}

// DefaultFeedURL BTCUSDT 20 档深度与逐笔成交的组合流。
const DefaultFeedURL = "wss://stream.binance.com/stream?streams=btcusdt@depth20@100ms/btcusdt@trade"

// DefaultSnapshotURL 现货 REST 根地址。
const DefaultSnapshotURL = "https://api.binance.com"

// Default 返回全部默认值，YAML 只需覆盖需要修改的字段。
func Default() AppConfig {
	rc := sim.DefaultRunnerConfig()
	return AppConfig{
		Symbol: rc.Symbol,
		Strategy: StrategyConfig{
			BaseSpreadBps:   rc.BaseSpreadBps,
			MinSpreadBps:    rc.MinSpreadBps,
			MaxSpreadBps:    rc.MaxSpreadBps,
			BaseOrderSize:   rc.BaseOrderSize,
			MaxOrderSize:    rc.MaxOrderSize,
			RefreshInterval: rc.RefreshInterval,
			TickSize:        rc.TickSize,
			SkewDeadband:    rc.SkewDeadband,
			SkewStepBps:     rc.SkewStepBps,
		},
		Risk: RiskConfig{MaxNotional: rc.MaxNotional, MaxLoss: rc.MaxLoss},
		Inventory: InventoryConfig{
			InitialCash:  rc.InitialCash,
			MaxInventory: rc.MaxInventory,
		},
		Spread: SpreadConfig{
			Window:    rc.SpreadWindow,
			Sizes:     rc.SpreadSizes,
			BookDepth: rc.BookDepth,
		},
		Feed: FeedConfig{
			Enabled:      true,
			URL:          DefaultFeedURL,
			SnapshotURL:  DefaultSnapshotURL,
			SnapshotRate: 1,
			ReadTimeout:  30 * time.Second,
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
		},
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true, Addr: ":9100"},
		Export: ExportConfig{
			Dir:            "exports",
			ShutdownDir:    ".",
			PnLInterval:    10 * time.Second,
			SpreadInterval: time.Second,
		},
		Engine: EngineConfig{
			AutoStart:      true,
			PollInterval:   100 * time.Millisecond,
			StatusInterval: 5 * time.Second,
			HealthInterval: 30 * time.Second,
			AlertThrottle:  5 * time.Minute,
			ReloadCooldown: 2 * time.Second,
		},
	}
}

// RunnerConfig 转换为 sim.Runner 参数。
func (c AppConfig) RunnerConfig() sim.RunnerConfig {
	return sim.RunnerConfig{
		Symbol:          c.Symbol,
		BaseSpreadBps:   c.Strategy.BaseSpreadBps,
		MinSpreadBps:    c.Strategy.MinSpreadBps,
		MaxSpreadBps:    c.Strategy.MaxSpreadBps,
		BaseOrderSize:   c.Strategy.BaseOrderSize,
		MaxOrderSize:    c.Strategy.MaxOrderSize,
		MaxNotional:     c.Risk.MaxNotional,
		MaxLoss:         c.Risk.MaxLoss,
		RefreshInterval: c.Strategy.RefreshInterval,
		TickSize:        c.Strategy.TickSize,
		SkewDeadband:    c.Strategy.SkewDeadband,
		SkewStepBps:     c.Strategy.SkewStepBps,
		InitialCash:     c.Inventory.InitialCash,
		MaxInventory:    c.Inventory.MaxInventory,
		SpreadWindow:    c.Spread.Window,
		SpreadSizes:     append([]float64(nil), c.Spread.Sizes...),
		BookDepth:       c.Spread.BookDepth,
	}
}

// Load reads YAML config from path on top of Default and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config, then .env (if present), then MM_* variables.
// path 为空时只使用默认值与环境变量。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, Validate(cfg)
}
