package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"orb-lab/internal/backfill"
	"orb-lab/internal/config"
	"orb-lab/internal/domain"
	"orb-lab/internal/reporting"
	"orb-lab/internal/research"
	"orb-lab/internal/session"
	"orb-lab/internal/storage/backend"
	"orb-lab/internal/verification"
)

func cmdStart(ctx context.Context, args []string) error {
	var configPath string
	var keep bool
	e, err := setup(ctx, "start", args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.StringVar(&configPath, "config", "", "Run configuration JSON file (required)")
		fs.BoolVar(&keep, "keep-checkpoint", true, "Keep the checkpoint file after the run completes")
		bindBarFlags(fs, cfg)
	})
	if err != nil {
		return err
	}
	defer e.Close()

	rc, err := readRunConfig(configPath)
	if err != nil {
		return err
	}

	runner, closeBars, err := e.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closeBars()

	out, err := e.execute(ctx, func(ctx context.Context) (*research.Outcome, error) {
		return runner.Start(ctx, rc)
	})
	return e.finish(out, err, keep)
}

func cmdResume(ctx context.Context, args []string) error {
	var runID string
	var keep bool
	e, err := setup(ctx, "resume", args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.StringVar(&runID, "run-id", "", "Run to resume (required)")
		fs.BoolVar(&keep, "keep-checkpoint", true, "Keep the checkpoint file after the run completes")
		bindBarFlags(fs, cfg)
	})
	if err != nil {
		return err
	}
	defer e.Close()
	if runID == "" {
		return usagef("--run-id is required")
	}

	runner, closeBars, err := e.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closeBars()

	out, err := e.execute(ctx, func(ctx context.Context) (*research.Outcome, error) {
		return runner.Resume(ctx, runID)
	})
	return e.finish(out, err, keep)
}

// finish prints the outcome of start/resume and removes the checkpoint
// file of a completed run unless it should be kept.
func (e *env) finish(out *research.Outcome, err error, keep bool) error {
	if out != nil {
		fmt.Print(reporting.RenderProgress(out.Run, out.Checkpoint))
		if out.Run.Status == domain.RunStatusPaused {
			fmt.Printf("\nresume with: research resume --run-id %s\n", out.Run.RunID)
		}
		if out.Run.Status == domain.RunStatusCompleted && !keep {
			if rmErr := e.checkpoints.Remove(out.Run.RunID); rmErr != nil {
				e.logger.Warn().Err(rmErr).Msg("remove checkpoint file")
			}
		}
	}
	return err
}

func cmdList(ctx context.Context, args []string) error {
	e, err := setup(ctx, "list", args, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.stores.Runs.List(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	fmt.Print(reporting.RenderRunList(runs))
	return nil
}

func cmdProgress(ctx context.Context, args []string) error {
	var runID, csvPath string
	var markdown bool
	e, err := setup(ctx, "progress", args, func(fs *flag.FlagSet, _ *config.Config) {
		fs.StringVar(&runID, "run-id", "", "Run to report (required)")
		fs.StringVar(&csvPath, "csv", "", "Write survivors CSV to this file (- for stdout)")
		fs.BoolVar(&markdown, "markdown", false, "Print the full Markdown report")
	})
	if err != nil {
		return err
	}
	defer e.Close()
	if runID == "" {
		return usagef("--run-id is required")
	}

	report, err := reporting.NewGenerator(e.stores, e.checkpoints).Generate(ctx, runID)
	if err != nil {
		return err
	}
	if markdown {
		fmt.Print(reporting.RenderMarkdown(report))
	} else {
		fmt.Print(reporting.RenderProgress(report.Run, report.Checkpoint))
	}

	if csvPath == "" {
		return nil
	}
	survivors, err := e.stores.Survivors.ListByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("list survivors: %w", err)
	}
	csv := reporting.RenderSurvivorsCSV(survivors)
	if csvPath == "-" {
		fmt.Print(csv)
		return nil
	}
	if err := os.WriteFile(csvPath, []byte(csv), 0o644); err != nil {
		return fmt.Errorf("write survivors csv: %w", err)
	}
	fmt.Printf("%d survivors written to %s\n", len(survivors), csvPath)
	return nil
}

func cmdBackfill(ctx context.Context, args []string) error {
	var runID string
	e, err := setup(ctx, "backfill", args, func(fs *flag.FlagSet, _ *config.Config) {
		fs.StringVar(&runID, "run-id", "", "Run to backfill (required)")
	})
	if err != nil {
		return err
	}
	defer e.Close()
	if runID == "" {
		return usagef("--run-id is required")
	}

	res, err := backfill.NewBackfiller(backfill.Options{
		Runs:       e.stores.Runs,
		Candidates: e.stores.Candidates,
		Survivors:  e.stores.Survivors,
		Logger:     e.logger,
	}).Survivors(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Printf("checked %d candidates (%d unscored), %d passing, %d inserted, %d already present\n",
		res.CandidatesChecked, res.Unscored, res.Passing, res.Inserted, res.DuplicatesSkipped)
	return nil
}

// errDiverged is returned by verify when any replay differs from the stored row.
var errDiverged = errors.New("replay diverged from stored results")

func cmdVerify(ctx context.Context, args []string) error {
	var runID string
	var sample int
	e, err := setup(ctx, "verify", args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.StringVar(&runID, "run-id", "", "Run to verify (required)")
		fs.IntVar(&sample, "sample", 0, "Replay at most this many scored candidates (0 for all)")
		bindBarFlags(fs, cfg)
	})
	if err != nil {
		return err
	}
	defer e.Close()
	if runID == "" {
		return usagef("--run-id is required")
	}
	if sample < 0 {
		return usagef("--sample must not be negative")
	}
	if err := e.cfg.ValidateBars(); err != nil {
		return usageError{err}
	}

	bars, err := backend.OpenBars(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer bars.Close()

	report, err := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Runs:       e.stores.Runs,
		Candidates: e.stores.Candidates,
		BarStore:   bars,
		Resolver:   session.NewResolver(e.cfg.Venue),
		Logger:     e.logger,
	}).VerifyRun(ctx, runID, sample)
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		for _, d := range r.Divergences {
			fmt.Printf("%s #%d %s: stored %v, replayed %v\n", r.SpecID, r.Position, d.Field, d.Expected, d.Actual)
		}
	}
	fmt.Printf("replayed %d candidates (%d skipped): %d match, %d diverged\n",
		report.Total, report.Skipped, report.Matched, report.Divergent)
	if report.Divergent > 0 {
		return errDiverged
	}
	return nil
}

// readRunConfig decodes a RunConfig file, rejecting unknown fields.
func readRunConfig(path string) (domain.RunConfig, error) {
	if path == "" {
		return domain.RunConfig{}, usagef("--config is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RunConfig{}, usageError{fmt.Errorf("read run config: %w", err)}
	}

	var rc domain.RunConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rc); err != nil {
		return domain.RunConfig{}, usageError{fmt.Errorf("parse run config %s: %w", path, err)}
	}
	rc = rc.WithDefaults()
	if err := rc.Validate(); err != nil {
		return domain.RunConfig{}, err
	}
	return rc, nil
}
