package market

import (
	"strings"
	"time"
)

// Side 成交方向（主动方）。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide 以 "b" 开头（忽略大小写）视为买，其余为卖。
func ParseSide(s string) Side {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "b") {
		return SideBuy
	}
	return SideSell
}

// Trade represents a normalized trade tick.
type Trade struct {
	Ts    time.Time
	Price float64
	Size  float64
	Side  Side
}
