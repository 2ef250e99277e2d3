package gate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
)

var gates = domain.Gates{MinTrades: 20, MinExpectancyR: 0.1, MaxDrawdownR: 5}

func TestEvaluate_AllPass(t *testing.T) {
	row := domain.ResultRow{Trades: 40, ExpectancyR: 0.3, MaxDrawdownR: 4}
	res := NewEvaluator(gates).Evaluate(row)

	assert.True(t, res.Pass)
	assert.Len(t, res.Criteria, 3)
	assert.Empty(t, res.Failed())
	assert.Equal(t, domain.ConfidenceMedium, res.Confidence)
	assert.InDelta(t, 0.3*math.Sqrt(40)/5, res.SurvivalScore, 1e-12)
}

func TestEvaluate_EachGateFails(t *testing.T) {
	tests := []struct {
		name string
		row  domain.ResultRow
		want string
	}{
		{"too few trades", domain.ResultRow{Trades: 19, ExpectancyR: 0.5, MaxDrawdownR: 1}, "min_trades"},
		{"low expectancy", domain.ResultRow{Trades: 30, ExpectancyR: 0.05, MaxDrawdownR: 1}, "min_expectancy_r"},
		{"deep drawdown", domain.ResultRow{Trades: 30, ExpectancyR: 0.5, MaxDrawdownR: 5.5}, "max_drawdown_r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewEvaluator(gates).Evaluate(tt.row)
			assert.False(t, res.Pass)
			assert.Equal(t, []string{tt.want}, res.Failed())
		})
	}
}

func TestEvaluate_BoundariesInclusive(t *testing.T) {
	row := domain.ResultRow{Trades: 20, ExpectancyR: 0.1, MaxDrawdownR: 5}
	assert.True(t, NewEvaluator(gates).Evaluate(row).Pass)
}

func TestEvaluate_NoTradesNeverPasses(t *testing.T) {
	res := NewEvaluator(domain.Gates{}).Evaluate(domain.ResultRow{})
	assert.False(t, res.Pass)
	assert.Equal(t, 0.0, res.SurvivalScore)
}

func TestConfidence(t *testing.T) {
	e := NewEvaluator(gates)
	assert.Equal(t, domain.ConfidenceLow, e.Confidence(domain.ResultRow{Trades: 39}))
	assert.Equal(t, domain.ConfidenceMedium, e.Confidence(domain.ResultRow{Trades: 40}))
	assert.Equal(t, domain.ConfidenceHigh, e.Confidence(domain.ResultRow{Trades: 80}))
}

func TestSurvivor(t *testing.T) {
	spec, err := domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: "MGC",
		ORBStart:   domain.MustTimeOfDay("09:00"),
		ORBMinutes: 15,
		EntryRule:  domain.EntryCloseBreak,
		StopMode:   domain.StopFull,
		RR:         1.5,
		Scan:       domain.Window{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("12:00")},
	})
	require.NoError(t, err)

	row := domain.ResultRow{SpecID: spec.SpecID(), Trades: 100, ExpectancyR: 0.2, MaxDrawdownR: 3}
	e := NewEvaluator(gates)
	res := e.Evaluate(row)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s := e.Survivor("run-1", spec, row, res, now)
	assert.Equal(t, spec.SpecID(), s.SpecID)
	assert.Equal(t, domain.ConfidenceHigh, s.Confidence)
	assert.Equal(t, res.SurvivalScore, s.SurvivalScore)
	assert.Equal(t, now, s.CreatedAt)
}
