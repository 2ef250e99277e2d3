package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
	"orb-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

// newManager builds a manager over dir. Pass an untyped nil store for a
// file-only manager.
func newManager(t *testing.T, dir string, store storage.CheckpointStore) *Manager {
	t.Helper()
	n := 0
	m, err := NewManager(Options{
		Dir:    dir,
		Store:  store,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return t0 },
		NewID: func() string {
			n++
			return fmt.Sprintf("cp-%d", n)
		},
	})
	require.NoError(t, err)
	return m
}

func testState(runID string, completed uint64) *domain.CheckpointState {
	best := 0.42
	return &domain.CheckpointState{
		RunID:               runID,
		CandidatesCompleted: completed,
		CandidatesPassed:    3,
		LastSpecID:          "spec-9",
		CandidatesScored:    completed - 1,
		ExpectancySumR:      1.25,
		BestExpectancyR:     &best,
		BestSpecID:          "spec-4",
		SearchCursor:        completed,
		Elapsed:             90 * time.Second,
		Status:              domain.RunStatusRunning,
	}
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := memory.NewCheckpointStore()
	ctx := context.Background()

	m := newManager(t, dir, store)
	require.NoError(t, m.AcquireLock("run-1"))
	saved := testState("run-1", 10)
	require.NoError(t, m.Save(ctx, saved))
	require.NoError(t, m.ReleaseLock("run-1"))

	assert.Equal(t, domain.CheckpointVersion, saved.Version)
	assert.Equal(t, "cp-1", saved.CheckpointID)
	assert.Equal(t, t0, saved.UpdatedAt)

	// A fresh manager reads the file back unchanged.
	loaded, err := newManager(t, dir, nil).Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	mirrored, err := store.Latest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, saved, mirrored)
}

func TestManager_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir, nil)
	require.NoError(t, m.AcquireLock("run-1"))
	defer m.ReleaseLock("run-1")

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, m.Save(context.Background(), testState("run-1", i)))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.FileExists(t, m.FilePath("run-1"))
}

func TestManager_FileOnly(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newManager(t, dir, nil)

	_, err := m.Load(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	require.NoError(t, m.AcquireLock("run-1"))
	defer m.ReleaseLock("run-1")
	require.NoError(t, m.Save(ctx, testState("run-1", 2)))

	loaded, err := newManager(t, dir, nil).Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.CandidatesCompleted)
}

func TestManager_SaveRequiresLock(t *testing.T) {
	m := newManager(t, t.TempDir(), nil)
	err := m.Save(context.Background(), testState("run-1", 1))
	assert.ErrorIs(t, err, ErrNotLocked)
	assert.NoFileExists(t, m.FilePath("run-1"))
}

func TestManager_SaveRejectsRegression(t *testing.T) {
	dir := t.TempDir()
	store := memory.NewCheckpointStore()
	ctx := context.Background()

	m := newManager(t, dir, store)
	require.NoError(t, m.AcquireLock("run-1"))
	require.NoError(t, m.Save(ctx, testState("run-1", 20)))

	err := m.Save(ctx, testState("run-1", 19))
	assert.ErrorIs(t, err, ErrCheckpointRegression)
	require.NoError(t, m.Save(ctx, testState("run-1", 20)))
	require.NoError(t, m.ReleaseLock("run-1"))

	// After a reload the loaded position is the floor.
	m2 := newManager(t, dir, store)
	require.NoError(t, m2.AcquireLock("run-1"))
	defer m2.ReleaseLock("run-1")
	_, err = m2.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.ErrorIs(t, m2.Save(ctx, testState("run-1", 5)), ErrCheckpointRegression)
}

func TestManager_LoadFallsBackToStore(t *testing.T) {
	dir := t.TempDir()
	store := memory.NewCheckpointStore()
	ctx := context.Background()

	m := newManager(t, dir, store)
	require.NoError(t, m.AcquireLock("run-1"))
	saved := testState("run-1", 7)
	require.NoError(t, m.Save(ctx, saved))
	require.NoError(t, m.ReleaseLock("run-1"))

	tests := []struct {
		name  string
		setup func()
	}{
		{"missing file", func() { require.NoError(t, os.Remove(m.FilePath("run-1"))) }},
		{"truncated file", func() { require.NoError(t, os.WriteFile(m.FilePath("run-1"), []byte(`{"version":1,"run_`), 0o644)) }},
		{"wrong version", func() {
			require.NoError(t, os.WriteFile(m.FilePath("run-1"), []byte(`{"version":99,"run_id":"run-1","status":"running"}`), 0o644))
		}},
		{"wrong run", func() {
			require.NoError(t, os.WriteFile(m.FilePath("run-1"), []byte(`{"version":1,"run_id":"run-2","status":"running"}`), 0o644))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			got, err := newManager(t, dir, store).Load(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, saved, got)
		})
	}
}

func TestManager_LoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing anywhere", func(t *testing.T) {
		_, err := newManager(t, t.TempDir(), memory.NewCheckpointStore()).Load(ctx, "run-1")
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("corrupt file and empty store", func(t *testing.T) {
		m := newManager(t, t.TempDir(), memory.NewCheckpointStore())
		require.NoError(t, os.WriteFile(m.FilePath("run-1"), []byte("not json"), 0o644))
		_, err := m.Load(ctx, "run-1")
		assert.ErrorIs(t, err, ErrCheckpointCorrupt)
	})

	t.Run("corrupt file and no store", func(t *testing.T) {
		m := newManager(t, t.TempDir(), nil)
		require.NoError(t, os.WriteFile(m.FilePath("run-1"), []byte("{}"), 0o644))
		_, err := m.Load(ctx, "run-1")
		assert.ErrorIs(t, err, ErrCheckpointCorrupt)
	})
}

func TestManager_LockContention(t *testing.T) {
	dir := t.TempDir()
	a := newManager(t, dir, nil)
	b := newManager(t, dir, nil)

	require.NoError(t, a.AcquireLock("run-1"))
	assert.ErrorIs(t, a.AcquireLock("run-1"), ErrLockContention)
	assert.ErrorIs(t, b.AcquireLock("run-1"), ErrLockContention)

	// Other runs are independent.
	require.NoError(t, b.AcquireLock("run-2"))
	require.NoError(t, b.ReleaseLock("run-2"))

	require.NoError(t, a.ReleaseLock("run-1"))
	require.NoError(t, a.ReleaseLock("run-1"), "release is idempotent")
	require.NoError(t, b.AcquireLock("run-1"))
	require.NoError(t, b.ReleaseLock("run-1"))
}

func TestManager_Remove(t *testing.T) {
	m := newManager(t, t.TempDir(), nil)
	require.NoError(t, m.AcquireLock("run-1"))
	defer m.ReleaseLock("run-1")

	require.NoError(t, m.Save(context.Background(), testState("run-1", 1)))
	require.NoError(t, m.Remove("run-1"))
	assert.NoFileExists(t, m.FilePath("run-1"))
	require.NoError(t, m.Remove("run-1"))
}
