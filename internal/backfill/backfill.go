// Package backfill repairs survivor rows of existing runs.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/gate"
	"orb-lab/internal/storage"
)

// Backfiller re-applies a run's gates to its persisted candidates and
// inserts any survivor rows that are missing.
type Backfiller struct {
	runs       storage.RunStore
	candidates storage.CandidateStore
	survivors  storage.SurvivorStore
	logger     zerolog.Logger
	now        func() time.Time
}

// Options contains configuration for creating a Backfiller.
type Options struct {
	Runs       storage.RunStore
	Candidates storage.CandidateStore
	Survivors  storage.SurvivorStore
	Logger     zerolog.Logger
	Now        func() time.Time
}

// NewBackfiller creates a survivor backfiller.
func NewBackfiller(opts Options) *Backfiller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Backfiller{
		runs:       opts.Runs,
		candidates: opts.Candidates,
		survivors:  opts.Survivors,
		logger:     opts.Logger.With().Str("component", "backfill").Logger(),
		now:        opts.Now,
	}
}

// Result contains statistics from a backfill.
type Result struct {
	CandidatesChecked int
	Unscored          int // no metrics (invalid or failed candidates)
	Passing           int
	Inserted          int
	DuplicatesSkipped int
	Duration          time.Duration
}

// Survivors backfills the survivors of one run. It is idempotent: survivors
// that already exist are counted and skipped.
func (b *Backfiller) Survivors(ctx context.Context, runID string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	run, err := b.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	rows, err := b.candidates.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	eval := gate.NewEvaluator(run.Config.Gates)
	for _, c := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.CandidatesChecked++
		if c.Metrics == nil {
			result.Unscored++
			continue
		}

		verdict := eval.Evaluate(*c.Metrics)
		if !verdict.Pass {
			continue
		}
		result.Passing++

		s := eval.Survivor(runID, c.Spec, *c.Metrics, verdict, b.now().UTC())
		if err := b.survivors.Insert(ctx, s); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				result.DuplicatesSkipped++
				continue
			}
			return result, fmt.Errorf("insert survivor %s: %w", c.SpecID, err)
		}
		result.Inserted++
		b.logger.Debug().Str("run_id", runID).Str("spec_id", c.SpecID).Msg("survivor backfilled")
	}

	result.Duration = time.Since(start)
	b.logger.Info().
		Str("run_id", runID).
		Int("checked", result.CandidatesChecked).
		Int("passing", result.Passing).
		Int("inserted", result.Inserted).
		Int("duplicates", result.DuplicatesSkipped).
		Dur("duration", result.Duration).
		Msg("backfill complete")
	return result, nil
}
