package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/gate"
	"orb-lab/internal/observability"
	"orb-lab/internal/search"
	"orb-lab/internal/simulation"
	"orb-lab/internal/storage"
)

// execution holds the per-invocation state of one run.
type execution struct {
	run      *domain.Run
	gen      *search.Generator
	sim      *simulation.Runner
	eval     *gate.Evaluator
	state    *domain.CheckpointState
	recorded map[string]*domain.CandidateResult

	saved        domain.CheckpointState // last persisted copy
	sinceSave    int
	lastSave     time.Time
	baseElapsed  time.Duration
	sessionStart time.Time
}

// execute tests positions from state.SearchCursor until the run completes,
// ctx is cancelled or an infrastructure error occurs.
// A candidate in flight when ctx is cancelled runs to completion and is recorded.
func (r *Runner) execute(
	ctx context.Context,
	run *domain.Run,
	gen *search.Generator,
	state *domain.CheckpointState,
	recorded map[string]*domain.CandidateResult,
) (*Outcome, error) {
	now := time.Now()
	ex := &execution{
		run: run,
		gen: gen,
		sim: simulation.NewRunner(simulation.RunnerOptions{
			BarStore: r.barStore,
			Resolver: r.resolver,
			Logger:   r.logger,
		}),
		eval:         gate.NewEvaluator(run.Config.Gates),
		state:        state,
		recorded:     recorded,
		saved:        *state,
		lastSave:     now,
		baseElapsed:  state.Elapsed,
		sessionStart: now,
	}
	work := context.WithoutCancel(ctx)
	total := run.Config.Candidates()

	for state.SearchCursor < total {
		if ctx.Err() != nil {
			return r.pause(work, ex)
		}

		pos := state.SearchCursor
		spec, err := gen.At(pos)
		if err != nil {
			return r.fail(work, ex, err)
		}

		c, ok := ex.recorded[spec.SpecID()]
		if !ok {
			c, err = r.evaluate(work, ex, pos, spec)
			if err != nil {
				return r.fail(work, ex, err)
			}
		}
		ex.apply(c)

		if ex.sinceSave >= run.Config.CheckpointEvery || time.Since(ex.lastSave) >= run.Config.CheckpointInterval.Std() {
			if err := r.save(work, ex); err != nil {
				return r.fail(work, ex, err)
			}
		}
	}

	return r.complete(work, ex)
}

// evaluate backtests one spec, applies the gates and records the result.
// Invalid layouts and strategy errors are recorded on the candidate;
// bar and store failures are returned and abort the run.
func (r *Runner) evaluate(ctx context.Context, ex *execution, pos uint64, spec domain.CandidateSpec) (*domain.CandidateResult, error) {
	started := time.Now()
	cfg := ex.run.Config
	c := &domain.CandidateResult{
		RunID:     ex.run.RunID,
		SpecID:    spec.SpecID(),
		Position:  pos,
		Spec:      spec,
		CreatedAt: r.now().UTC(),
	}

	var survivor *domain.Survivor
	res, err := ex.sim.Run(ctx, spec, cfg.StartDate, cfg.EndDate)
	switch {
	case err == nil:
		row := res.Metrics
		c.Metrics = &row
		verdict := ex.eval.Evaluate(row)
		if verdict.Pass {
			c.Status = domain.CandidatePassed
			survivor = ex.eval.Survivor(ex.run.RunID, spec, row, verdict, c.CreatedAt)
		} else {
			c.Status = domain.CandidateTested
		}
	case errors.Is(err, simulation.ErrLoadBars):
		return nil, err
	case errors.Is(err, domain.ErrInvalidSpec):
		c.Status = domain.CandidateInvalid
		c.Error = err.Error()
		r.logger.Warn().Err(err).Str("spec_id", c.SpecID).Uint64("position", pos).Msg("invalid candidate")
	default:
		c.Status = domain.CandidateFailed
		c.Error = err.Error()
		r.logger.Error().Err(err).Str("spec_id", c.SpecID).Uint64("position", pos).Msg("candidate failed")
	}

	if err := r.candidates.Record(ctx, c, survivor); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("record candidate %s: %w", c.SpecID, err)
		}
		existing, getErr := r.candidates.Get(ctx, c.RunID, c.SpecID)
		if getErr != nil {
			return nil, fmt.Errorf("record candidate %s: %w", c.SpecID, getErr)
		}
		c = existing
	}

	observability.RecordCandidate(string(c.Status), time.Since(started))
	return c, nil
}

// apply advances the cursor and the running counters past one candidate.
func (ex *execution) apply(c *domain.CandidateResult) {
	s := ex.state
	s.SearchCursor++
	s.CandidatesCompleted++
	s.LastSpecID = c.SpecID
	if c.Status == domain.CandidatePassed {
		s.CandidatesPassed++
	}
	if c.Metrics != nil && c.Metrics.Trades > 0 {
		exp := c.Metrics.ExpectancyR
		s.CandidatesScored++
		s.ExpectancySumR += exp
		// ties keep the earlier position
		if s.BestExpectancyR == nil || exp > *s.BestExpectancyR {
			best := exp
			s.BestExpectancyR = &best
			s.BestSpecID = c.SpecID
		}
	}
	ex.sinceSave++
}

func (r *Runner) save(ctx context.Context, ex *execution) error {
	ex.state.Elapsed = ex.baseElapsed + time.Since(ex.sessionStart)
	if err := r.checkpoints.Save(ctx, ex.state); err != nil {
		return err
	}
	ex.saved = *ex.state
	ex.sinceSave = 0
	ex.lastSave = time.Now()

	s := ex.state
	observability.UpdateProgress(s.CandidatesCompleted, s.BestExpectancyR)
	evt := r.logger.Info().
		Str("run_id", s.RunID).
		Uint64("candidates_completed", s.CandidatesCompleted).
		Uint64("candidates_passed", s.CandidatesPassed).
		Float64("running_expectancy_r", s.RunningExpectancyR())
	if s.BestExpectancyR != nil {
		evt = evt.Float64("best_expectancy_r", *s.BestExpectancyR).Str("best_spec_id", s.BestSpecID)
	}
	evt.Msg("checkpoint saved")
	return nil
}

func (r *Runner) pause(ctx context.Context, ex *execution) (*Outcome, error) {
	ex.state.Status = domain.RunStatusPaused
	if err := r.save(ctx, ex); err != nil {
		return r.fail(ctx, ex, err)
	}
	if err := r.runs.UpdateStatus(ctx, ex.run.RunID, domain.RunStatusPaused, "", r.now().UTC()); err != nil {
		return r.fail(ctx, ex, fmt.Errorf("mark run paused: %w", err))
	}
	observability.RecordRunFinished(string(domain.RunStatusPaused))
	r.logger.Info().
		Str("run_id", ex.run.RunID).
		Uint64("candidates_completed", ex.state.CandidatesCompleted).
		Msg("run paused")
	return r.outcome(ctx, ex)
}

func (r *Runner) complete(ctx context.Context, ex *execution) (*Outcome, error) {
	ex.state.Status = domain.RunStatusCompleted
	if err := r.save(ctx, ex); err != nil {
		return r.fail(ctx, ex, err)
	}
	if err := r.runs.UpdateStatus(ctx, ex.run.RunID, domain.RunStatusCompleted, "", r.now().UTC()); err != nil {
		return r.fail(ctx, ex, fmt.Errorf("mark run completed: %w", err))
	}
	observability.RecordRunFinished(string(domain.RunStatusCompleted))
	r.logger.Info().
		Str("run_id", ex.run.RunID).
		Uint64("candidates_completed", ex.state.CandidatesCompleted).
		Uint64("candidates_passed", ex.state.CandidatesPassed).
		Dur("elapsed", ex.state.Elapsed).
		Msg("run completed")
	return r.outcome(ctx, ex)
}

// fail marks the run failed and reports what the last checkpoint preserved.
func (r *Runner) fail(ctx context.Context, ex *execution, cause error) (*Outcome, error) {
	runID := ex.run.RunID
	if err := r.runs.UpdateStatus(ctx, runID, domain.RunStatusFailed, cause.Error(), r.now().UTC()); err != nil {
		r.logger.Error().Err(err).Str("run_id", runID).Msg("mark run failed")
	}
	observability.RecordRunFinished(string(domain.RunStatusFailed))

	ferr := &FailureError{
		RunID:               runID,
		CandidatesCompleted: ex.saved.CandidatesCompleted,
		LastCheckpointAt:    ex.saved.UpdatedAt,
		Err:                 cause,
	}
	r.logger.Error().
		Err(cause).
		Str("run_id", runID).
		Uint64("candidates_completed", ferr.CandidatesCompleted).
		Time("last_checkpoint_at", ferr.LastCheckpointAt).
		Msg("run failed")
	return nil, ferr
}

func (r *Runner) outcome(ctx context.Context, ex *execution) (*Outcome, error) {
	run, err := r.runs.GetByID(ctx, ex.run.RunID)
	if err != nil {
		return nil, fmt.Errorf("reload run: %w", err)
	}
	cp := *ex.state
	return &Outcome{Run: run, Checkpoint: &cp}, nil
}
