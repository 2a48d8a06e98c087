package inventory

import (
	"math"
	"slices"
)

// MarkResult 一次盯市的结果。
type MarkResult struct {
	FairPrice     float64
	Position      float64
	Cash          float64
	NAV           float64
	PnL           float64
	RealizedPnL   float64 // 做市口径：= cash
	UnrealizedPnL float64 // 做市口径：= nav
}

// Mark 以 fair 盯市：nav = q·fair，pnl = cash + nav，并记录盈亏历史。
func (l *Ledger) Mark(fair float64) MarkResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.markLocked(fair)
}

func (l *Ledger) markLocked(fair float64) MarkResult {
	l.mark = fair
	l.nav = l.q * fair
	l.pnl = l.cash + l.nav
	l.pnlHist.Append(l.pnl)
	return MarkResult{
		FairPrice:     fair,
		Position:      l.q,
		Cash:          l.cash,
		NAV:           l.nav,
		PnL:           l.pnl,
		RealizedPnL:   l.cash,
		UnrealizedPnL: l.nav,
	}
}

// Summary 组合概览，数值取自最近一次 Mark。
type Summary struct {
	Position         float64
	USDBalance       float64
	AvgEntryPrice    float64
	Cash             float64
	NAV              float64
	MarkPrice        float64
	RealizedPnL      float64
	UnrealizedPnL    float64
	TotalPnL         float64
	NotionalExposure float64
	MaxInventory     float64
	UtilizationPct   float64

	TotalTrades  int64
	BuyCount     int64
	SellCount    int64
	VolumeBought float64
	VolumeSold   float64
	CashSpent    float64
	CashReceived float64
	RecentFills  []Fill
}

func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summary{
		Position:         l.q,
		USDBalance:       l.cfg.InitialCash + l.cash,
		AvgEntryPrice:    l.avgEntry,
		Cash:             l.cash,
		NAV:              l.nav,
		MarkPrice:        l.mark,
		RealizedPnL:      l.cash,
		UnrealizedPnL:    l.nav,
		TotalPnL:         l.pnl,
		NotionalExposure: math.Abs(l.nav),
		MaxInventory:     l.cfg.MaxInventory,
		UtilizationPct:   l.utilization(),
		TotalTrades:      l.totalTrades,
		BuyCount:         l.buyCount,
		SellCount:        l.sellCount,
		VolumeBought:     l.volBought,
		VolumeSold:       l.volSold,
		CashSpent:        l.cashSpent,
		CashReceived:     l.cashReceived,
		RecentFills:      l.recent.Values(),
	}
}

// RiskMetrics 风险视图。
type RiskMetrics struct {
	NotionalExposure float64
	TotalPnL         float64
	Position         float64
	AvgEntryPrice    float64
	MaxExposurePct   float64
	LossPct          float64 // 仅亏损时非零
	UtilizationPct   float64
	Cash             float64
	NAV              float64
}

// RiskMetrics 按给定价格计算名义敞口；盈亏取最近一次 Mark。
func (l *Ledger) RiskMetrics(price float64) RiskMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	notional := math.Abs(l.q) * price
	m := RiskMetrics{
		NotionalExposure: notional,
		TotalPnL:         l.pnl,
		Position:         l.q,
		AvgEntryPrice:    l.avgEntry,
		MaxExposurePct:   notional / riskReferenceUSD * 100,
		UtilizationPct:   l.utilization(),
		Cash:             l.cash,
		NAV:              l.nav,
	}
	if l.pnl < 0 {
		m.LossPct = l.pnl / riskReferenceUSD * 100
	}
	return m
}

// MarketMakingMetrics 做市视图。
type MarketMakingMetrics struct {
	Cash           float64
	Position       float64
	MinInventory   float64
	MaxInventory   float64
	UtilizationPct float64
	NAV            float64
	PnL            float64
	PnLHistoryLen  int
	MaxPnL         float64
	MinPnL         float64
}

func (l *Ledger) MarketMakingMetrics() MarketMakingMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lo, hi := l.Bounds()
	m := MarketMakingMetrics{
		Cash:           l.cash,
		Position:       l.q,
		MinInventory:   lo,
		MaxInventory:   hi,
		UtilizationPct: l.utilization(),
		NAV:            l.nav,
		PnL:            l.pnl,
		PnLHistoryLen:  l.pnlHist.Len(),
	}
	if hist := l.pnlHist.Values(); len(hist) > 0 {
		m.MaxPnL = slices.Max(hist)
		m.MinPnL = slices.Min(hist)
	}
	return m
}
