package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
	"orb-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

func spec(t *testing.T, rr float64) domain.CandidateSpec {
	t.Helper()
	s, err := domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: "MGC",
		ORBStart:   domain.MustTimeOfDay("09:00"),
		ORBMinutes: 15,
		EntryRule:  domain.EntryCloseBreak,
		StopMode:   domain.StopHalf,
		RR:         rr,
		Scan:       domain.Window{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("12:00")},
	})
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, stores *storage.Stores) string {
	t.Helper()
	ctx := context.Background()
	run := &domain.Run{
		RunID:     "run-1",
		StartedAt: t0,
		Status:    domain.RunStatusCompleted,
		Config: domain.RunConfig{
			Gates: domain.Gates{MinTrades: 10, MinExpectancyR: 0.2, MaxDrawdownR: 5},
		},
		UpdatedAt: t0,
	}
	require.NoError(t, stores.Runs.Insert(ctx, run))

	rows := []struct {
		rr      float64
		metrics *domain.ResultRow
		status  domain.CandidateStatus
	}{
		{1, &domain.ResultRow{Trades: 40, ExpectancyR: 0.3, MaxDrawdownR: 2}, domain.CandidateTested},
		{2, &domain.ResultRow{Trades: 40, ExpectancyR: 0.1, MaxDrawdownR: 2}, domain.CandidateTested},
		{3, &domain.ResultRow{Trades: 12, ExpectancyR: 0.5, MaxDrawdownR: 1}, domain.CandidateTested},
		{4, nil, domain.CandidateInvalid},
	}
	for i, r := range rows {
		s := spec(t, r.rr)
		require.NoError(t, stores.Candidates.Record(ctx, &domain.CandidateResult{
			RunID:     run.RunID,
			SpecID:    s.SpecID(),
			Position:  uint64(i),
			Spec:      s,
			Metrics:   r.metrics,
			Status:    r.status,
			CreatedAt: t0,
		}, nil))
	}
	return run.RunID
}

func newBackfiller(stores *storage.Stores) *Backfiller {
	return NewBackfiller(Options{
		Runs:       stores.Runs,
		Candidates: stores.Candidates,
		Survivors:  stores.Survivors,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return t0 },
	})
}

func TestBackfiller_Survivors(t *testing.T) {
	stores := memory.NewStores()
	runID := seed(t, stores)
	ctx := context.Background()

	res, err := newBackfiller(stores).Survivors(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 4, res.CandidatesChecked)
	assert.Equal(t, 1, res.Unscored)
	assert.Equal(t, 2, res.Passing)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.DuplicatesSkipped)

	survivors, err := stores.Survivors.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, survivors, 2)
	// 0.5*sqrt(12)/2 ranks above 0.3*sqrt(40)/3.
	assert.Equal(t, spec(t, 3).SpecID(), survivors[0].SpecID)
	assert.Equal(t, domain.ConfidenceLow, survivors[0].Confidence)
	assert.Equal(t, domain.ConfidenceHigh, survivors[1].Confidence)
}

func TestBackfiller_Idempotent(t *testing.T) {
	stores := memory.NewStores()
	runID := seed(t, stores)
	ctx := context.Background()
	b := newBackfiller(stores)

	_, err := b.Survivors(ctx, runID)
	require.NoError(t, err)

	res, err := b.Survivors(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.DuplicatesSkipped)

	survivors, err := stores.Survivors.ListByRun(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, survivors, 2)
}

func TestBackfiller_UnknownRun(t *testing.T) {
	stores := memory.NewStores()
	_, err := newBackfiller(stores).Survivors(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
