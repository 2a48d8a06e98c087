package risk

import "math"

// Exposure 风控评估所需的组合快照。
type Exposure struct {
	Position  float64 // 带符号库存
	PnL       float64 // 总盈亏（cash + nav）
	FairPrice float64
}

// Notional 名义敞口 |q|·fair。
func (e Exposure) Notional() float64 {
	return math.Abs(e.Position) * e.FairPrice
}

// Guard 是通用接口，名义敞口、亏损上限等都可实现。
type Guard interface {
	Check(e Exposure) error
}

// MultiGuard 顺序执行多个 Guard，只要有一个返回错误则中止。
type MultiGuard struct {
	Guards []Guard
}

func (m MultiGuard) Check(e Exposure) error {
	for _, g := range m.Guards {
		if g == nil {
			continue
		}
		if err := g.Check(e); err != nil {
			return err
		}
	}
	return nil
}

// Gate 每个周期重新评估，不锁存；仅记录最近状态用于感知暂停/恢复切换。
type Gate struct {
	Guard Guard

	suspended   bool
	lastErr     error
	suspensions int64
}

// Evaluate 返回状态是否发生切换，以及本次评估错误。
func (g *Gate) Evaluate(e Exposure) (changed bool, err error) {
	if g.Guard != nil {
		err = g.Guard.Check(e)
	}
	suspended := err != nil
	changed = suspended != g.suspended
	if suspended && changed {
		g.suspensions++
	}
	g.suspended = suspended
	g.lastErr = err
	return changed, err
}

func (g *Gate) Suspended() bool { return g.suspended }

func (g *Gate) LastError() error { return g.lastErr }

// Suspensions 进入暂停状态的次数。
func (g *Gate) Suspensions() int64 { return g.suspensions }
