// Package gate decides which candidates survive a run.
package gate

import (
	"fmt"
	"math"
	"time"

	"orb-lab/internal/domain"
)

// Evaluator applies the gate thresholds of a run.
type Evaluator struct {
	gates domain.Gates
}

// NewEvaluator creates an evaluator for the given thresholds.
func NewEvaluator(gates domain.Gates) *Evaluator {
	return &Evaluator{gates: gates}
}

// Evaluate checks a ResultRow against every gate.
// A candidate passes only when all gates pass.
func (e *Evaluator) Evaluate(row domain.ResultRow) *Result {
	criteria := []CriterionResult{
		{
			Name:      "min_trades",
			Threshold: fmt.Sprintf(">= %d", e.gates.MinTrades),
			Actual:    fmt.Sprintf("%d", row.Trades),
			Pass:      row.Trades >= e.gates.MinTrades,
		},
		{
			Name:      "min_expectancy_r",
			Threshold: fmt.Sprintf(">= %.4f", e.gates.MinExpectancyR),
			Actual:    fmt.Sprintf("%.4f", row.ExpectancyR),
			Pass:      row.Trades > 0 && row.ExpectancyR >= e.gates.MinExpectancyR,
		},
		{
			Name:      "max_drawdown_r",
			Threshold: fmt.Sprintf("<= %.4f", e.gates.MaxDrawdownR),
			Actual:    fmt.Sprintf("%.4f", row.MaxDrawdownR),
			Pass:      row.MaxDrawdownR <= e.gates.MaxDrawdownR,
		},
	}

	pass := true
	for _, c := range criteria {
		if !c.Pass {
			pass = false
			break
		}
	}

	return &Result{
		Pass:          pass,
		Criteria:      criteria,
		SurvivalScore: SurvivalScore(row),
		Confidence:    e.Confidence(row),
	}
}

// SurvivalScore ranks survivors: expectancy scaled by sqrt(trades) and
// discounted by drawdown.
func SurvivalScore(row domain.ResultRow) float64 {
	if row.Trades == 0 {
		return 0
	}
	return row.ExpectancyR * math.Sqrt(float64(row.Trades)) / (1 + row.MaxDrawdownR)
}

// Confidence grades a row by how far its trade count exceeds min_trades.
func (e *Evaluator) Confidence(row domain.ResultRow) domain.Confidence {
	minTrades := e.gates.MinTrades
	if minTrades < 1 {
		minTrades = 1
	}
	switch {
	case row.Trades >= 4*minTrades:
		return domain.ConfidenceHigh
	case row.Trades >= 2*minTrades:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Survivor builds the survivor record of a passing candidate.
func (e *Evaluator) Survivor(runID string, spec domain.CandidateSpec, row domain.ResultRow, res *Result, now time.Time) *domain.Survivor {
	return &domain.Survivor{
		RunID:         runID,
		SpecID:        spec.SpecID(),
		Spec:          spec,
		Metrics:       row,
		SurvivalScore: res.SurvivalScore,
		Confidence:    res.Confidence,
		CreatedAt:     now,
	}
}
