package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheckLow(t *testing.T) {
	l := newLedger(t, 5)
	rep := l.HealthCheck(100)
	assert.Equal(t, RiskLow, rep.RiskLevel)
	assert.Equal(t, 100.0, rep.Score)
	assert.Empty(t, rep.Alerts)
	assert.Empty(t, rep.Recommendations)
}

func TestHealthCheckLevels(t *testing.T) {
	tests := []struct {
		name      string
		position  float64
		entry     float64
		fair      float64
		wantLevel RiskLevel
		wantScore float64
		wantRecs  int
	}{
		{"medium utilization", 3.6, 100, 100, RiskMedium, 85, 1},
		{"high utilization", 4.5, 100, 100, RiskHigh, 70, 2},
		{"moderate loss", 1, 30_000, 15_000, RiskMedium, 90, 0},
		{"large loss", 1, 80_000, 15_000, RiskHigh, 75, 1},
		{"profit bonus", 1, 100, 50_100, RiskLow, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t, 5)
			l.Process(buy(tt.position, tt.entry))
			rep := l.HealthCheck(tt.fair)
			assert.Equal(t, tt.wantLevel, rep.RiskLevel)
			assert.InDelta(t, tt.wantScore, rep.Score, 1e-9)
			assert.Len(t, rep.Recommendations, tt.wantRecs)
		})
	}
}

func TestHealthCheckProfitBonusCapped(t *testing.T) {
	l := newLedger(t, 5)
	l.Process(buy(3.5, 100))
	rep := l.HealthCheck(20_100) // pnl 70k, util 70%
	assert.InDelta(t, 85+7, rep.Score, 1e-9)
}

func TestHealthCheckBias(t *testing.T) {
	l := newLedger(t, 1e6)
	for i := 0; i < 21; i++ {
		l.Process(buy(0.01, 100))
	}
	rep := l.HealthCheck(100)
	assert.Contains(t, rep.Recommendations, "Buying bias detected - consider tightening bid")

	for i := 0; i < 20; i++ {
		l.Process(sell(0.01, 100))
	}
	rep = l.HealthCheck(100)
	assert.Contains(t, rep.Recommendations, "Selling bias detected - consider tightening ask")
}
