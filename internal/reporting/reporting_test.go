package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/checkpoint"
	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
	"orb-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 7, 6, 0, 0, 0, time.UTC)

type fakeCheckpoints struct {
	cp *domain.CheckpointState
}

func (f fakeCheckpoints) Load(context.Context, string) (*domain.CheckpointState, error) {
	if f.cp == nil {
		return nil, checkpoint.ErrNoCheckpoint
	}
	return f.cp, nil
}

func testRun() *domain.Run {
	return &domain.Run{
		RunID:     "run-1",
		StartedAt: t0,
		Status:    domain.RunStatusPaused,
		Config: domain.RunConfig{
			StartDate: domain.MustDate("2024-01-01"),
			EndDate:   domain.MustDate("2024-03-01"),
			Mode:      domain.SearchRandom,
			Seed:      9,
			Gates:     domain.Gates{MinTrades: 10, MinExpectancyR: 0.1, MaxDrawdownR: 8},
			Space: domain.SearchSpace{
				Instruments: []string{"MGC"},
				ORBStarts:   []domain.TimeOfDay{domain.MustTimeOfDay("09:00")},
				ORBMinutes:  []int{15, 30},
				EntryRules:  []domain.EntryRule{domain.EntryCloseBreak},
				StopModes:   []domain.StopMode{domain.StopHalf, domain.StopFull},
				RRs:         []float64{1, 2},
				ScanWindows: []domain.Window{{Start: domain.MustTimeOfDay("09:30"), End: domain.MustTimeOfDay("12:00")}},
			},
		},
		UpdatedAt: t0,
	}
}

func testSurvivor(t *testing.T, rr, score float64) *domain.Survivor {
	t.Helper()
	spec, err := domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: "MGC",
		ORBStart:   domain.MustTimeOfDay("09:00"),
		ORBMinutes: 15,
		EntryRule:  domain.EntryCloseBreak,
		StopMode:   domain.StopHalf,
		RR:         rr,
		Scan:       domain.Window{Start: domain.MustTimeOfDay("09:30"), End: domain.MustTimeOfDay("12:00")},
	})
	require.NoError(t, err)
	return &domain.Survivor{
		RunID:         "run-1",
		SpecID:        spec.SpecID(),
		Spec:          spec,
		Metrics:       domain.ResultRow{SpecID: spec.SpecID(), Trades: 25, WinRate: 0.4, ExpectancyR: 0.2, TotalR: 5, MaxDrawdownR: 3},
		SurvivalScore: score,
		Confidence:    domain.ConfidenceMedium,
		CreatedAt:     t0,
	}
}

func setupStores(t *testing.T) *storage.Stores {
	t.Helper()
	ctx := context.Background()
	stores := memory.NewStores()
	require.NoError(t, stores.Runs.Insert(ctx, testRun()))

	for i, s := range []*domain.Survivor{testSurvivor(t, 1, 0.2), testSurvivor(t, 2, 0.7)} {
		require.NoError(t, stores.Candidates.Record(ctx, &domain.CandidateResult{
			RunID: "run-1", SpecID: s.SpecID, Position: uint64(i), Spec: s.Spec,
			Metrics: &s.Metrics, Status: domain.CandidatePassed, CreatedAt: t0,
		}, s))
	}
	require.NoError(t, stores.Candidates.Record(ctx, &domain.CandidateResult{
		RunID: "run-1", SpecID: "invalid-spec", Position: 2,
		Status: domain.CandidateInvalid, Error: "scan window empty", CreatedAt: t0,
	}, nil))
	return stores
}

func TestGenerator_Generate(t *testing.T) {
	stores := setupStores(t)
	best := 0.35
	cp := &domain.CheckpointState{
		RunID: "run-1", CandidatesCompleted: 3, CandidatesPassed: 2,
		CandidatesScored: 2, ExpectancySumR: 0.4, BestExpectancyR: &best, BestSpecID: "abc",
		SearchCursor: 3, Elapsed: 95 * time.Second, Status: domain.RunStatusPaused, UpdatedAt: t0,
	}

	report, err := NewGenerator(stores, fakeCheckpoints{cp: cp}).
		WithClock(func() time.Time { return t0 }).
		Generate(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, t0, report.GeneratedAt)
	assert.Equal(t, CandidateSummary{Total: 3, Passed: 2, Invalid: 1}, report.Candidates)
	require.Len(t, report.Survivors, 2)
	assert.Equal(t, 1, report.Survivors[0].Rank)
	assert.Equal(t, 2.0, report.Survivors[0].RR, "highest score first")
	assert.Equal(t, "09:00/15m", report.Survivors[0].ORB)
	assert.Equal(t, "CLOSE_BREAK/HALF", report.Survivors[0].Kind)

	md := RenderMarkdown(report)
	assert.Contains(t, md, "# Run run-1")
	assert.Contains(t, md, "| invalid | 1 |")
	assert.Contains(t, md, "| min_trades | >= 10 |")
	assert.Contains(t, md, "completed:        3/8 (37.5%)")
}

func TestGenerator_NoCheckpoint(t *testing.T) {
	stores := setupStores(t)

	report, err := NewGenerator(stores, fakeCheckpoints{}).Generate(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, report.Checkpoint)
	assert.Contains(t, RenderProgress(report.Run, nil), "last checkpoint:  never")
}

func TestGenerator_UnknownRun(t *testing.T) {
	_, err := NewGenerator(memory.NewStores(), fakeCheckpoints{}).Generate(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRenderProgress(t *testing.T) {
	best := 0.5
	cp := &domain.CheckpointState{
		CandidatesCompleted: 2, CandidatesPassed: 1, CandidatesScored: 2, ExpectancySumR: 0.6,
		BestExpectancyR: &best, BestSpecID: "spec-b", Elapsed: 61500 * time.Millisecond, UpdatedAt: t0,
	}
	out := RenderProgress(testRun(), cp)

	assert.Contains(t, out, "status:           paused")
	assert.Contains(t, out, "completed:        2/8 (25.0%)")
	assert.Contains(t, out, "passed:           1")
	assert.Contains(t, out, "running exp (R):  0.3000 over 2 scored")
	assert.Contains(t, out, "best exp (R):     0.5000 (spec-b)")
	assert.Contains(t, out, "elapsed:          1m2s")
	assert.Contains(t, out, "last checkpoint:  2024-03-07T06:00:00Z")
}

func TestRenderRunList(t *testing.T) {
	assert.Equal(t, "No runs.\n", RenderRunList(nil))

	out := RenderRunList([]*domain.Run{testRun()})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "| run-1 | paused | 2024-03-07T06:00:00Z | RANDOM | 8 | 2024-01-01..2024-03-01 |", lines[2])
}

func TestRenderSurvivorsCSV(t *testing.T) {
	s := testSurvivor(t, 2, 0.7)
	out := RenderSurvivorsCSV([]*domain.Survivor{s})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "rank,spec_id,instrument,kind,orb,rr,scan,"))
	assert.Equal(t,
		"1,"+s.SpecID+",MGC,CLOSE_BREAK/HALF,09:00/15m,2,09:30-12:00,25,0.400000,0.200000,5.000000,3.000000,0.700000,MEDIUM",
		lines[1])

	assert.Equal(t, 1, strings.Count(RenderSurvivorsCSV(nil), "\n"), "header only")
}
