// Package research runs resumable parameter searches.
// A run walks the candidate positions of its search space in generator order.
// Each candidate is backtested, gated and recorded, and progress is checkpointed.
package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orb-lab/internal/checkpoint"
	"orb-lab/internal/domain"
	"orb-lab/internal/search"
	"orb-lab/internal/session"
	"orb-lab/internal/storage"
)

// ErrRunNotResumable is returned by Resume for runs that cannot continue.
var ErrRunNotResumable = errors.New("run cannot be resumed")

// FailureError reports an aborted run and what was preserved.
type FailureError struct {
	RunID               string
	CandidatesCompleted uint64    // as of the last checkpoint
	LastCheckpointAt    time.Time // zero if none was written
	Err                 error
}

func (e *FailureError) Error() string {
	last := "never"
	if !e.LastCheckpointAt.IsZero() {
		last = e.LastCheckpointAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("run %s failed (checkpoint: %d candidates completed, saved %s): %v",
		e.RunID, e.CandidatesCompleted, last, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// Options contains configuration for creating a Runner.
type Options struct {
	Runs        storage.RunStore
	Candidates  storage.CandidateStore
	BarStore    storage.BarStore
	Checkpoints *checkpoint.Manager
	Resolver    *session.Resolver
	Logger      zerolog.Logger
	Now         func() time.Time
	NewRunID    func() string
}

// Runner executes research runs. One Runner may serve several runs in turn.
type Runner struct {
	runs        storage.RunStore
	candidates  storage.CandidateStore
	barStore    storage.BarStore
	checkpoints *checkpoint.Manager
	resolver    *session.Resolver
	logger      zerolog.Logger
	now         func() time.Time
	newRunID    func() string
}

// NewRunner creates a research runner.
func NewRunner(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Resolver == nil {
		opts.Resolver = session.NewResolver(domain.DefaultVenue)
	}
	return &Runner{
		runs:        opts.Runs,
		candidates:  opts.Candidates,
		barStore:    opts.BarStore,
		checkpoints: opts.Checkpoints,
		resolver:    opts.Resolver,
		logger:      opts.Logger.With().Str("component", "research").Logger(),
		now:         opts.Now,
		newRunID:    opts.NewRunID,
	}
}

// Outcome is the state a run stopped in.
type Outcome struct {
	Run        *domain.Run
	Checkpoint *domain.CheckpointState
}

// Start creates a new run for cfg and executes it until it completes,
// ctx is cancelled (the run is paused) or an infrastructure error occurs.
func (r *Runner) Start(ctx context.Context, cfg domain.RunConfig) (*Outcome, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gen, err := search.NewGenerator(cfg.Space, cfg.Mode, cfg.Seed)
	if err != nil {
		return nil, err
	}

	runID := r.newRunID()
	if err := r.checkpoints.AcquireLock(runID); err != nil {
		return nil, err
	}
	defer r.releaseLock(runID)

	now := r.now().UTC()
	run := &domain.Run{
		RunID:     runID,
		StartedAt: now,
		Status:    domain.RunStatusRunning,
		Config:    cfg,
		UpdatedAt: now,
	}
	if err := r.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	r.logger.Info().
		Str("run_id", runID).
		Str("search_mode", string(cfg.Mode)).
		Uint64("seed", cfg.Seed).
		Uint64("candidates", cfg.Candidates()).
		Uint64("space_size", gen.Size()).
		Msg("run started")

	state := &domain.CheckpointState{
		Version: domain.CheckpointVersion,
		RunID:   runID,
		Status:  domain.RunStatusRunning,
	}
	return r.execute(ctx, run, gen, state, nil)
}

// Resume continues a paused run, or a running one whose process died.
// Steps:
//  1. Acquire the run lock
//  2. Load the run and check its status
//  3. Load the checkpoint (file, then store)
//  4. Collect candidates recorded after the checkpoint
//  5. Mark the run running and continue from the cursor
func (r *Runner) Resume(ctx context.Context, runID string) (*Outcome, error) {
	if err := r.checkpoints.AcquireLock(runID); err != nil {
		return nil, err
	}
	defer r.releaseLock(runID)

	run, err := r.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: run %s not found", ErrRunNotResumable, runID)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run.Status != domain.RunStatusPaused && run.Status != domain.RunStatusRunning {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotResumable, runID, run.Status)
	}

	gen, err := search.NewGenerator(run.Config.Space, run.Config.Mode, run.Config.Seed)
	if err != nil {
		return nil, err
	}

	state, err := r.checkpoints.Load(ctx, runID)
	switch {
	case err == nil:
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		// Stopped before the first save; recorded candidates are reconciled below.
		state = &domain.CheckpointState{Version: domain.CheckpointVersion, RunID: runID}
	case errors.Is(err, checkpoint.ErrCheckpointCorrupt):
		return nil, fmt.Errorf("%w: %w", ErrRunNotResumable, err)
	default:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	recorded, err := r.recordedAfter(ctx, runID, state.SearchCursor)
	if err != nil {
		return nil, err
	}

	if err := r.runs.UpdateStatus(ctx, runID, domain.RunStatusRunning, "", r.now().UTC()); err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}
	run.Status = domain.RunStatusRunning
	state.Status = domain.RunStatusRunning

	r.logger.Info().
		Str("run_id", runID).
		Uint64("candidates_completed", state.CandidatesCompleted).
		Int("recorded_after_checkpoint", len(recorded)).
		Msg("run resumed")

	return r.execute(ctx, run, gen, state, recorded)
}

// recordedAfter returns candidate rows at or after the cursor, keyed by spec_id.
// These were written after the last checkpoint and must not be tested again.
func (r *Runner) recordedAfter(ctx context.Context, runID string, cursor uint64) (map[string]*domain.CandidateResult, error) {
	rows, err := r.candidates.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list recorded candidates: %w", err)
	}
	out := make(map[string]*domain.CandidateResult)
	for _, c := range rows {
		if c.Position >= cursor {
			out[c.SpecID] = c
		}
	}
	return out, nil
}

func (r *Runner) releaseLock(runID string) {
	if err := r.checkpoints.ReleaseLock(runID); err != nil {
		r.logger.Error().Err(err).Str("run_id", runID).Msg("release lock")
	}
}
