package memory

import (
	"testing"
	"time"

	"orb-lab/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func testSpec(t *testing.T, rr float64) domain.CandidateSpec {
	t.Helper()
	spec, err := domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: "MGC",
		ORBStart:   domain.MustTimeOfDay("09:00"),
		ORBMinutes: 15,
		EntryRule:  domain.EntryCloseBreak,
		StopMode:   domain.StopHalf,
		RR:         rr,
		Scan:       domain.Window{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("12:00")},
	})
	if err != nil {
		t.Fatalf("build spec: %v", err)
	}
	return spec
}

func testCandidate(t *testing.T, runID string, position uint64, rr float64) *domain.CandidateResult {
	t.Helper()
	spec := testSpec(t, rr)
	return &domain.CandidateResult{
		RunID:     runID,
		SpecID:    spec.SpecID(),
		Position:  position,
		Spec:      spec,
		Metrics:   &domain.ResultRow{SpecID: spec.SpecID(), Trades: 10, ExpectancyR: 0.2},
		Status:    domain.CandidateTested,
		CreatedAt: t0,
	}
}
