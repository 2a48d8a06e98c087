package risk

import (
	"errors"
	"fmt"
)

var (
	ErrNotionalExceed = errors.New("notional exposure exceed")
	ErrLossExceed     = errors.New("loss limit exceed")
)

// NotionalGuard |q|·fair 超过上限时暂停报价。
type NotionalGuard struct {
	MaxNotional float64
}

func (g NotionalGuard) Check(e Exposure) error {
	if n := e.Notional(); n > g.MaxNotional {
		return fmt.Errorf("%w: %.2f > %.2f", ErrNotionalExceed, n, g.MaxNotional)
	}
	return nil
}
