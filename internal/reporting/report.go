package reporting

import (
	"strconv"
	"time"

	"orb-lab/internal/domain"
)

// Report describes one research run.
type Report struct {
	GeneratedAt time.Time

	Run        *domain.Run
	Checkpoint *domain.CheckpointState // nil if the run never checkpointed

	// Candidate counts by status, from persisted rows
	Candidates CandidateSummary

	// Survivors ordered by survival_score DESC, spec_id ASC
	Survivors []SurvivorRow
}

// CandidateSummary counts persisted candidates.
type CandidateSummary struct {
	Total   int
	Tested  int
	Passed  int
	Invalid int
	Failed  int
}

// SurvivorRow is one flattened survivor line.
type SurvivorRow struct {
	Rank          int
	SpecID        string
	Instrument    string
	Kind          string
	ORB           string // "09:00/15m"
	RR            float64
	Scan          string
	Trades        int
	WinRate       float64
	ExpectancyR   float64
	TotalR        float64
	MaxDrawdownR  float64
	SurvivalScore float64
	Confidence    domain.Confidence
}

// NewSurvivorRows flattens survivors, keeping their order.
func NewSurvivorRows(survivors []*domain.Survivor) []SurvivorRow {
	rows := make([]SurvivorRow, 0, len(survivors))
	for i, s := range survivors {
		rows = append(rows, SurvivorRow{
			Rank:          i + 1,
			SpecID:        s.SpecID,
			Instrument:    s.Spec.Instrument,
			Kind:          s.Spec.Kind().String(),
			ORB:           s.Spec.ORBStart.String() + "/" + strconv.Itoa(s.Spec.ORBMinutes) + "m",
			RR:            s.Spec.RR,
			Scan:          s.Spec.Scan.String(),
			Trades:        s.Metrics.Trades,
			WinRate:       s.Metrics.WinRate,
			ExpectancyR:   s.Metrics.ExpectancyR,
			TotalR:        s.Metrics.TotalR,
			MaxDrawdownR:  s.Metrics.MaxDrawdownR,
			SurvivalScore: s.SurvivalScore,
			Confidence:    s.Confidence,
		})
	}
	return rows
}
