package config

import (
	"fmt"
	"math"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and ranges are sane.
func Validate(cfg AppConfig) error {
	if cfg.Symbol == "" {
		return ErrInvalid("symbol is required")
	}
	if err := cfg.RunnerConfig().StrategyConfig().Validate(); err != nil {
		return ErrInvalid("strategy: " + err.Error())
	}
	if cfg.Inventory.MaxInventory <= 0 || math.IsInf(cfg.Inventory.MaxInventory, 0) {
		return ErrInvalid("inventory.maxInventory must be a finite value > 0")
	}
	if cfg.Inventory.InitialCash < 0 {
		return ErrInvalid("inventory.initialCash must be >= 0")
	}
	if cfg.Spread.Window <= 0 {
		return ErrInvalid("spread.window must be > 0")
	}
	if len(cfg.Spread.Sizes) == 0 {
		return ErrInvalid("spread.sizes must not be empty")
	}
	for _, s := range cfg.Spread.Sizes {
		if s <= 0 {
			return ErrInvalid(fmt.Sprintf("spread size %v must be > 0", s))
		}
	}
	if cfg.Spread.BookDepth < 0 {
		return ErrInvalid("spread.bookDepth must be >= 0")
	}
	if cfg.Feed.Enabled {
		if cfg.Feed.URL == "" {
			return ErrInvalid("feed.url is required when feed is enabled")
		}
		if cfg.Feed.ReconnectMin <= 0 || cfg.Feed.ReconnectMax < cfg.Feed.ReconnectMin {
			return ErrInvalid("feed reconnect backoff must satisfy 0 < min <= max")
		}
		if cfg.Feed.ReadTimeout < 0 || cfg.Feed.SnapshotRate < 0 {
			return ErrInvalid("feed.readTimeout and feed.snapshotRate must be >= 0")
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return ErrInvalid("metrics.addr is required when metrics is enabled")
	}
	if cfg.Export.Dir == "" {
		return ErrInvalid("export.dir is required")
	}
	if cfg.Export.PnLInterval < 0 || cfg.Export.SpreadInterval < 0 {
		return ErrInvalid("export intervals must be >= 0")
	}
	if cfg.Engine.PollInterval <= 0 {
		return ErrInvalid("engine.pollInterval must be > 0")
	}
	if cfg.Engine.StatusInterval < 0 || cfg.Engine.HealthInterval < 0 || cfg.Engine.AlertThrottle < 0 {
		return ErrInvalid("engine intervals must be >= 0")
	}
	return nil
}
