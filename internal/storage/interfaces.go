package storage

import (
	"context"
	"time"

	"orb-lab/internal/domain"
)

// RunStore provides access to runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// List returns all runs, most recently started first.
	List(ctx context.Context) ([]*domain.Run, error)

	// UpdateStatus moves a run to a new status.
	// Returns ErrNotFound if the run does not exist and ErrInvalidTransition
	// if domain.CanTransition rejects the change. finished_at is set when the
	// new status is terminal.
	UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, failureReason string, at time.Time) error
}

// CandidateStore provides access to candidates storage.
type CandidateStore interface {
	// Record persists a tested candidate and, when survivor is non-nil, its
	// survivor row in one atomic write. Returns ErrDuplicateKey if
	// (run_id, spec_id) exists; nothing is written in that case.
	Record(ctx context.Context, c *domain.CandidateResult, survivor *domain.Survivor) error

	// Get retrieves one candidate. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID, specID string) (*domain.CandidateResult, error)

	// ListByRun returns all candidates of a run ordered by position ASC.
	ListByRun(ctx context.Context, runID string) ([]*domain.CandidateResult, error)
}

// SurvivorStore provides access to survivors storage.
type SurvivorStore interface {
	// Insert adds a survivor. Returns ErrDuplicateKey if (run_id, spec_id) exists.
	Insert(ctx context.Context, s *domain.Survivor) error

	// ListByRun returns survivors of a run ordered by survival_score DESC, spec_id ASC.
	ListByRun(ctx context.Context, runID string) ([]*domain.Survivor, error)
}

// CheckpointStore provides access to checkpoints storage.
type CheckpointStore interface {
	// Upsert writes a checkpoint keyed by checkpoint_id.
	Upsert(ctx context.Context, c *domain.CheckpointState) error

	// Latest returns the most advanced checkpoint of a run
	// (candidates_completed DESC, updated_at DESC). Returns ErrNotFound if none.
	Latest(ctx context.Context, runID string) (*domain.CheckpointState, error)
}

// BarStore provides access to 1-minute bars.
type BarStore interface {
	// InsertBulk adds multiple bars. Fails entire batch on duplicate (instrument, ts).
	InsertBulk(ctx context.Context, bars []domain.Bar) error

	// GetRange retrieves bars for an instrument with from <= ts < to, ordered by ts ASC.
	GetRange(ctx context.Context, instrument string, from, to time.Time) ([]domain.Bar, error)
}

// Stores bundles the research persistence handles of one backend.
// A Stores value is opened per process and passed to each component.
type Stores struct {
	Runs        RunStore
	Candidates  CandidateStore
	Survivors   SurvivorStore
	Checkpoints CheckpointStore

	// Close releases the backend; nil for backends without resources.
	Close func() error
}
