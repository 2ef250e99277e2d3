// Package checkpoint saves and loads the resumable state of research runs.
//
// Each run has one JSON file <dir>/<run_id>.checkpoint.json, written atomically,
// and a lock file <dir>/<run_id>.lock held for the lifetime of the process
// executing the run. Every save is mirrored to a storage.CheckpointStore, which
// serves as the fallback when the file is missing or unreadable.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// Checkpoint errors
var (
	ErrLockContention       = errors.New("run is locked by another process")
	ErrNotLocked            = errors.New("run lock not held")
	ErrNoCheckpoint         = errors.New("no checkpoint for run")
	ErrCheckpointCorrupt    = errors.New("checkpoint corrupt")
	ErrCheckpointRegression = errors.New("checkpoint would move candidates_completed backwards")
)

// Options contains configuration for creating a Manager.
type Options struct {
	Dir    string
	Store  storage.CheckpointStore // optional mirror and fallback
	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Manager owns the checkpoint files and run locks under one directory.
type Manager struct {
	dir    string
	store  storage.CheckpointStore
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	locks map[string]*flock.Flock
	last  map[string]uint64 // candidates_completed of the last save or load
}

// NewManager creates the directory if needed and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("checkpoint dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		dir:    opts.Dir,
		store:  opts.Store,
		logger: opts.Logger.With().Str("component", "checkpoint").Logger(),
		now:    opts.Now,
		newID:  opts.NewID,
		locks:  make(map[string]*flock.Flock),
		last:   make(map[string]uint64),
	}, nil
}

// FilePath returns the checkpoint file of a run.
func (m *Manager) FilePath(runID string) string {
	return filepath.Join(m.dir, runID+".checkpoint.json")
}

// LockPath returns the lock file of a run.
func (m *Manager) LockPath(runID string) string {
	return filepath.Join(m.dir, runID+".lock")
}

// AcquireLock takes the run's exclusive lock without blocking.
// Returns ErrLockContention if any holder, in this process or another, has it.
func (m *Manager) AcquireLock(runID string) error {
	if runID == "" {
		return fmt.Errorf("acquire lock: empty run id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[runID]; held {
		return ErrLockContention
	}

	fl := flock.New(m.LockPath(runID))
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return ErrLockContention
	}

	m.locks[runID] = fl
	m.logger.Debug().Str("run_id", runID).Str("path", fl.Path()).Msg("lock acquired")
	return nil
}

// ReleaseLock releases the run's lock. Releasing a lock that is not held is a no-op.
func (m *Manager) ReleaseLock(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl, held := m.locks[runID]
	if !held {
		return nil
	}
	delete(m.locks, runID)
	delete(m.last, runID)

	if err := fl.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", fl.Path(), err)
	}
	m.logger.Debug().Str("run_id", runID).Msg("lock released")
	return nil
}

// Save writes cp atomically to the run's file and mirrors it to the store.
// It stamps cp with the encoding version, a fresh checkpoint_id and updated_at.
// The caller must hold the run's lock.
func (m *Manager) Save(ctx context.Context, cp *domain.CheckpointState) (err error) {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("save checkpoint: %w", storage.ErrInvalidInput)
	}

	start := time.Now()
	defer func() { observability.RecordCheckpointSave(time.Since(start), err) }()

	m.mu.Lock()
	_, held := m.locks[cp.RunID]
	last, seen := m.last[cp.RunID]
	m.mu.Unlock()

	if !held {
		return ErrNotLocked
	}
	if seen && cp.CandidatesCompleted < last {
		return fmt.Errorf("%w: %d < %d", ErrCheckpointRegression, cp.CandidatesCompleted, last)
	}

	cp.Version = domain.CheckpointVersion
	cp.CheckpointID = m.newID()
	cp.UpdatedAt = m.now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := writeFileAtomic(m.FilePath(cp.RunID), data); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}

	if m.store != nil {
		if err := m.store.Upsert(ctx, cp); err != nil {
			return fmt.Errorf("mirror checkpoint: %w", err)
		}
	}

	m.mu.Lock()
	m.last[cp.RunID] = cp.CandidatesCompleted
	m.mu.Unlock()

	m.logger.Debug().
		Str("run_id", cp.RunID).
		Str("checkpoint_id", cp.CheckpointID).
		Uint64("candidates_completed", cp.CandidatesCompleted).
		Msg("checkpoint saved")
	return nil
}

// Load returns the run's checkpoint, preferring the file.
// A missing or corrupt file falls back to the store's latest row.
// Returns ErrNoCheckpoint when neither exists, and ErrCheckpointCorrupt
// when the file is unreadable and the store has nothing.
func (m *Manager) Load(ctx context.Context, runID string) (*domain.CheckpointState, error) {
	cp, fileErr := m.readFile(runID)
	if fileErr == nil {
		m.loaded(cp, "file")
		return cp, nil
	}
	if !errors.Is(fileErr, os.ErrNotExist) {
		m.logger.Warn().Err(fileErr).Str("run_id", runID).Msg("checkpoint file unreadable, falling back to store")
	}

	if m.store != nil {
		stored, err := m.store.Latest(ctx, runID)
		switch {
		case err == nil:
			if verr := validate(stored, runID); verr != nil {
				return nil, fmt.Errorf("stored checkpoint: %w", verr)
			}
			m.loaded(stored, "store")
			return stored, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load stored checkpoint: %w", err)
		}
	}

	observability.RecordCheckpointLoad("none")
	if errors.Is(fileErr, os.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	return nil, fileErr
}

// Remove deletes the run's checkpoint file. A missing file is not an error.
func (m *Manager) Remove(runID string) error {
	if err := os.Remove(m.FilePath(runID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint file: %w", err)
	}
	return nil
}

func (m *Manager) loaded(cp *domain.CheckpointState, source string) {
	observability.RecordCheckpointLoad(source)

	m.mu.Lock()
	if cp.CandidatesCompleted > m.last[cp.RunID] {
		m.last[cp.RunID] = cp.CandidatesCompleted
	}
	m.mu.Unlock()

	m.logger.Debug().
		Str("run_id", cp.RunID).
		Str("source", source).
		Uint64("candidates_completed", cp.CandidatesCompleted).
		Msg("checkpoint loaded")
}

// readFile returns os.ErrNotExist for a missing file and
// ErrCheckpointCorrupt for anything that does not decode and validate.
func (m *Manager) readFile(runID string) (*domain.CheckpointState, error) {
	data, err := os.ReadFile(m.FilePath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCheckpointCorrupt, err)
	}

	var cp domain.CheckpointState
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpointCorrupt, err)
	}
	if err := validate(&cp, runID); err != nil {
		return nil, err
	}
	return &cp, nil
}

func validate(cp *domain.CheckpointState, runID string) error {
	if cp.Version != domain.CheckpointVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrCheckpointCorrupt, cp.Version, domain.CheckpointVersion)
	}
	if cp.RunID != runID {
		return fmt.Errorf("%w: run_id %q, want %q", ErrCheckpointCorrupt, cp.RunID, runID)
	}
	if !cp.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrCheckpointCorrupt, cp.Status)
	}
	return nil
}
