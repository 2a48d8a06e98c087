package risk

import "fmt"

// LossGuard 总盈亏低于 -MaxLoss 时暂停报价。
type LossGuard struct {
	MaxLoss float64 // 允许的最大亏损（正数）
}

func (g LossGuard) Check(e Exposure) error {
	if e.PnL < -g.MaxLoss {
		return fmt.Errorf("%w: pnl %.2f < -%.2f", ErrLossExceed, e.PnL, g.MaxLoss)
	}
	return nil
}
