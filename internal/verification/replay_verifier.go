package verification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/session"
	"orb-lab/internal/simulation"
	"orb-lab/internal/storage"
)

// ReplayVerifier re-simulates recorded candidates against the bar store.
type ReplayVerifier struct {
	runs       storage.RunStore
	candidates storage.CandidateStore
	barStore   storage.BarStore
	resolver   *session.Resolver
	logger     zerolog.Logger
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Runs       storage.RunStore
	Candidates storage.CandidateStore
	BarStore   storage.BarStore
	Resolver   *session.Resolver
	Logger     zerolog.Logger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	if opts.Resolver == nil {
		opts.Resolver = session.NewResolver(domain.DefaultVenue)
	}
	return &ReplayVerifier{
		runs:       opts.Runs,
		candidates: opts.Candidates,
		barStore:   opts.BarStore,
		resolver:   opts.Resolver,
		logger:     opts.Logger.With().Str("component", "verification").Logger(),
	}
}

// VerifyRun replays up to limit scored candidates of a run in position
// order; limit 0 replays all of them. Candidates without metrics are skipped.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string, limit int) (*Report, error) {
	run, err := v.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	rows, err := v.candidates.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	sim := v.newSimulator()
	report := &Report{RunID: runID}
	for _, c := range rows {
		if limit > 0 && report.Total >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if c.Metrics == nil {
			report.Skipped++
			continue
		}

		res, err := v.verify(ctx, sim, run, c)
		if err != nil {
			return report, err
		}
		report.Total++
		report.Results = append(report.Results, *res)
		if res.Match {
			report.Matched++
		} else {
			report.Divergent++
			v.logger.Warn().
				Str("run_id", runID).
				Str("spec_id", c.SpecID).
				Int("divergences", len(res.Divergences)).
				Msg("replay diverged")
		}
	}
	return report, nil
}

// VerifyCandidate replays one recorded candidate.
func (v *ReplayVerifier) VerifyCandidate(ctx context.Context, runID, specID string) (*Result, error) {
	run, err := v.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	c, err := v.candidates.Get(ctx, runID, specID)
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	if c.Metrics == nil {
		return nil, fmt.Errorf("%w: candidate %s has no metrics (status %s)", storage.ErrInvalidInput, specID, c.Status)
	}
	return v.verify(ctx, v.newSimulator(), run, c)
}

func (v *ReplayVerifier) newSimulator() *simulation.Runner {
	return simulation.NewRunner(simulation.RunnerOptions{
		BarStore: v.barStore,
		Resolver: v.resolver,
		Logger:   v.logger,
	})
}

func (v *ReplayVerifier) verify(ctx context.Context, sim *simulation.Runner, run *domain.Run, c *domain.CandidateResult) (*Result, error) {
	replayed, err := sim.Run(ctx, c.Spec, run.Config.StartDate, run.Config.EndDate)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", c.SpecID, err)
	}

	divs := CompareResultRows(*c.Metrics, replayed.Metrics)
	if replayed.SpecID != c.SpecID {
		divs = append(divs, FieldDivergence{Field: "Spec", Expected: c.SpecID, Actual: replayed.SpecID})
	}
	return &Result{
		SpecID:      c.SpecID,
		Position:    c.Position,
		Match:       len(divs) == 0,
		Divergences: divs,
	}, nil
}
