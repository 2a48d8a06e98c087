package strategy

import (
	"errors"
	"fmt"
	"time"
)

// MinOrderSize 单边报价数量下限。
const MinOrderSize = 0.01

// Config 报价引擎参数。
type Config struct {
	BaseSpreadBps float64 // 价差区间（bps），报价贴盘口，仅做校验与展示
	MinSpreadBps  float64
	MaxSpreadBps  float64

	BaseOrderSize float64 // 每边固定数量，夹在 [MinOrderSize, MaxOrderSize]
	MaxOrderSize  float64

	MaxNotional float64 // |q|·fair 上限（USD）
	MaxLoss     float64 // 允许的最大亏损（USD，正数）

	RefreshInterval time.Duration
	TickSize        float64

	SkewDeadband float64 // |expo| 不超过该值时不倾斜
	SkewStepBps  float64 // 每档倾斜幅度（bps）
}

// DefaultConfig 默认参数。
func DefaultConfig() Config {
	return Config{
		BaseSpreadBps:   10,
		MinSpreadBps:    5,
		MaxSpreadBps:    50,
		BaseOrderSize:   0.05,
		MaxOrderSize:    1.0,
		MaxNotional:     1_000_000,
		MaxLoss:         100_000,
		RefreshInterval: 100 * time.Millisecond,
		TickSize:        0.01,
		SkewDeadband:    0.20,
		SkewStepBps:     2.0,
	}
}

// Validate 校验参数取值。
func (c Config) Validate() error {
	if c.BaseOrderSize <= 0 {
		return errors.New("baseOrderSize must be > 0")
	}
	if c.MaxOrderSize < MinOrderSize {
		return fmt.Errorf("maxOrderSize must be >= %.2f", MinOrderSize)
	}
	if c.MaxNotional <= 0 {
		return errors.New("maxNotional must be > 0")
	}
	if c.MaxLoss < 0 {
		return errors.New("maxLoss must be >= 0")
	}
	if c.RefreshInterval < 0 {
		return errors.New("refreshInterval must be >= 0")
	}
	if c.TickSize <= 0 {
		return errors.New("tickSize must be > 0")
	}
	if c.SkewDeadband < 0 || c.SkewDeadband >= 1 {
		return errors.New("skewDeadband must be in [0, 1)")
	}
	if c.SkewStepBps < 0 {
		return errors.New("skewStepBps must be >= 0")
	}
	if c.MinSpreadBps < 0 || c.MinSpreadBps > c.MaxSpreadBps {
		return errors.New("spread bounds must satisfy 0 <= min <= max")
	}
	if c.BaseSpreadBps < c.MinSpreadBps || c.BaseSpreadBps > c.MaxSpreadBps {
		return errors.New("baseSpreadBps must be within [min, max]")
	}
	return nil
}
