package inventory

import (
	"math"

	"market-maker-sim/market"
)

// RiskLevel 组合健康等级。
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// HealthAlert 单条健康告警。
type HealthAlert struct {
	Level   RiskLevel
	Message string
}

// HealthReport 健康检查结果，Score 取值 0-100。
type HealthReport struct {
	RiskLevel       RiskLevel
	Score           float64
	Alerts          []HealthAlert
	Recommendations []string
	UtilizationPct  float64
	PnL             float64
}

const biasWindow = 20

// HealthCheck 先以 fair 盯市，再评估库存占用、回撤与近期成交方向偏差。
func (l *Ledger) HealthCheck(fair float64) HealthReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(fair)

	util := l.utilization()
	rep := HealthReport{RiskLevel: RiskLow, Score: 100, UtilizationPct: util, PnL: l.pnl}

	switch {
	case util > 80:
		rep.Alerts = append(rep.Alerts, HealthAlert{RiskHigh, "High inventory utilization (>80%)"})
		rep.RiskLevel = RiskHigh
		rep.Score -= 30
	case util > 60:
		rep.Alerts = append(rep.Alerts, HealthAlert{RiskMedium, "Medium inventory utilization (>60%)"})
		rep.RiskLevel = RiskMedium
		rep.Score -= 15
	}

	switch {
	case l.pnl < -50_000:
		rep.Alerts = append(rep.Alerts, HealthAlert{RiskHigh, "Large loss (>$50k)"})
		rep.RiskLevel = RiskHigh
		rep.Score -= 25
	case l.pnl < -10_000:
		rep.Alerts = append(rep.Alerts, HealthAlert{RiskMedium, "Moderate loss (>$10k)"})
		if rep.RiskLevel == RiskLow {
			rep.RiskLevel = RiskMedium
		}
		rep.Score -= 10
	}
	if l.pnl > 0 {
		rep.Score += math.Min(10, l.pnl/10_000)
	}
	rep.Score = math.Max(0, math.Min(100, rep.Score))

	rep.Recommendations = l.recommendations(util)
	return rep
}

func (l *Ledger) recommendations(util float64) []string {
	var recs []string
	if util > 70 {
		recs = append(recs, "Reduce inventory exposure - adjust skew")
	}
	if math.Abs(l.q) > l.cfg.MaxInventory*0.8 {
		recs = append(recs, "Near inventory limits - consider position reduction")
	}
	if l.pnl < -20_000 {
		recs = append(recs, "Large drawdown - review strategy parameters")
	}
	if l.history.Len() > biasWindow {
		var buys, sells int
		for _, f := range l.history.Last(biasWindow) {
			if f.Side == market.SideBuy {
				buys++
			} else {
				sells++
			}
		}
		switch {
		case float64(buys) > float64(sells)*1.5:
			recs = append(recs, "Buying bias detected - consider tightening bid")
		case float64(sells) > float64(buys)*1.5:
			recs = append(recs, "Selling bias detected - consider tightening ask")
		}
	}
	return recs
}
