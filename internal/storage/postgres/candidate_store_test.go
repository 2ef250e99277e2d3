package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

func TestCandidateStore_Record(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewRunStore(pool).Insert(ctx, testRun("run-1")))
	store := NewCandidateStore(pool)

	c := testCandidate(t, "run-1", 0, 2)
	require.NoError(t, store.Record(ctx, c, nil))

	got, err := store.Get(ctx, "run-1", c.SpecID)
	require.NoError(t, err)
	assert.Equal(t, c.Spec, got.Spec)
	assert.Equal(t, *c.Metrics, *got.Metrics)
	assert.Equal(t, domain.CandidateTested, got.Status)
	assert.Equal(t, uint64(0), got.Position)

	err = store.Record(ctx, c, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.Get(ctx, "run-1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandidateStore_RecordWithSurvivor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewRunStore(pool).Insert(ctx, testRun("run-1")))
	store := NewCandidateStore(pool)
	survivors := NewSurvivorStore(pool)

	c := testCandidate(t, "run-1", 1, 2)
	c.Status = domain.CandidatePassed
	sv := &domain.Survivor{
		RunID:         "run-1",
		SpecID:        c.SpecID,
		Spec:          c.Spec,
		Metrics:       *c.Metrics,
		SurvivalScore: 1.4,
		Confidence:    domain.ConfidenceMedium,
		CreatedAt:     t0,
	}
	require.NoError(t, store.Record(ctx, c, sv))

	list, err := survivors.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.SpecID, list[0].SpecID)
	assert.Equal(t, 1.4, list[0].SurvivalScore)
	assert.Equal(t, domain.ConfidenceMedium, list[0].Confidence)
}

func TestCandidateStore_RecordIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewRunStore(pool).Insert(ctx, testRun("run-1")))
	store := NewCandidateStore(pool)
	survivors := NewSurvivorStore(pool)

	c := testCandidate(t, "run-1", 0, 2)
	sv := &domain.Survivor{RunID: "run-1", SpecID: c.SpecID, Spec: c.Spec, Metrics: *c.Metrics, CreatedAt: t0}
	require.NoError(t, survivors.Insert(ctx, sv))

	// The survivor insert fails, so the candidate row must not be written either.
	err := store.Record(ctx, c, sv)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.Get(ctx, "run-1", c.SpecID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandidateStore_ListByRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	runs := NewRunStore(pool)
	require.NoError(t, runs.Insert(ctx, testRun("run-1")))
	require.NoError(t, runs.Insert(ctx, testRun("run-2")))
	store := NewCandidateStore(pool)

	require.NoError(t, store.Record(ctx, testCandidate(t, "run-1", 2, 3), nil))
	require.NoError(t, store.Record(ctx, testCandidate(t, "run-1", 0, 1), nil))
	require.NoError(t, store.Record(ctx, testCandidate(t, "run-2", 0, 1), nil))

	invalid := testCandidate(t, "run-1", 1, 2)
	invalid.Status = domain.CandidateInvalid
	invalid.Metrics = nil
	invalid.Error = "scan window empty"
	require.NoError(t, store.Record(ctx, invalid, nil))

	list, err := store.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, c := range list {
		assert.Equal(t, uint64(i), c.Position)
	}
	assert.Nil(t, list[1].Metrics)
	assert.Equal(t, "scan window empty", list[1].Error)
}
