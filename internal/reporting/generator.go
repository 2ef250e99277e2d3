package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orb-lab/internal/checkpoint"
	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CheckpointLoader loads the current checkpoint of a run.
type CheckpointLoader interface {
	Load(ctx context.Context, runID string) (*domain.CheckpointState, error)
}

// Generator produces run reports from stored data.
type Generator struct {
	runs        storage.RunStore
	candidates  storage.CandidateStore
	survivors   storage.SurvivorStore
	checkpoints CheckpointLoader
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(stores *storage.Stores, checkpoints CheckpointLoader) *Generator {
	return &Generator{
		runs:        stores.Runs,
		candidates:  stores.Candidates,
		survivors:   stores.Survivors,
		checkpoints: checkpoints,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report of one run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	cp, err := g.checkpoints.Load(ctx, runID)
	if err != nil && !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	rows, err := g.candidates.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	var summary CandidateSummary
	for _, c := range rows {
		summary.Total++
		switch c.Status {
		case domain.CandidateTested:
			summary.Tested++
		case domain.CandidatePassed:
			summary.Passed++
		case domain.CandidateInvalid:
			summary.Invalid++
		case domain.CandidateFailed:
			summary.Failed++
		}
	}

	survivors, err := g.survivors.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list survivors: %w", err)
	}

	return &Report{
		GeneratedAt: g.now(),
		Run:         run,
		Checkpoint:  cp,
		Candidates:  summary,
		Survivors:   NewSurvivorRows(survivors),
	}, nil
}
