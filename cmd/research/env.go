package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"orb-lab/internal/checkpoint"
	"orb-lab/internal/config"
	"orb-lab/internal/logger"
	"orb-lab/internal/observability"
	"orb-lab/internal/research"
	"orb-lab/internal/session"
	"orb-lab/internal/storage"
	"orb-lab/internal/storage/backend"
)

// env is the wiring shared by every command of one invocation.
type env struct {
	cfg         *config.Config
	logger      zerolog.Logger
	stores      *storage.Stores
	checkpoints *checkpoint.Manager
}

// setup parses flags over the environment configuration and opens the stores.
// bind registers command-specific flags.
func setup(ctx context.Context, name string, args []string, bind func(fs *flag.FlagSet, cfg *config.Config)) (*env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, usageError{err}
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Research store: sqlite, postgres or memory")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for checkpoint files and run locks")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human-readable console logs")
	if bind != nil {
		bind(fs, cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, usageError{err}
	}
	if fs.NArg() > 0 {
		return nil, usagef("unexpected arguments: %v", fs.Args())
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError{err}
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	stores, err := backend.OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	mgr, err := checkpoint.NewManager(checkpoint.Options{
		Dir:    cfg.DataDir,
		Store:  stores.Checkpoints,
		Logger: log,
	})
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: log, stores: stores, checkpoints: mgr}, nil
}

func (e *env) Close() {
	if err := e.stores.Close(); err != nil {
		e.logger.Error().Err(err).Msg("close stores")
	}
}

// bindBarFlags registers the bar source flags.
func bindBarFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.BarSource, "bar-source", cfg.BarSource, "Bar source: clickhouse or csv")
	fs.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string")
	fs.StringVar(&cfg.BarsCSV, "bars-csv", cfg.BarsCSV, "CSV file of 1-minute bars")
	fs.StringVar(&cfg.BarsInstrument, "instrument", cfg.BarsInstrument, "Instrument for CSV files without an instrument column")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics HTTP address (empty to disable)")
}

// newRunner opens the bar source and builds a research runner.
func (e *env) newRunner(ctx context.Context) (*research.Runner, func(), error) {
	bars, err := backend.OpenBars(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, nil, err
	}
	closeBars := func() {
		if err := bars.Close(); err != nil {
			e.logger.Error().Err(err).Msg("close bar source")
		}
	}
	runner := research.NewRunner(research.Options{
		Runs:        e.stores.Runs,
		Candidates:  e.stores.Candidates,
		BarStore:    bars,
		Checkpoints: e.checkpoints,
		Resolver:    session.NewResolver(e.cfg.Venue),
		Logger:      e.logger,
	})
	return runner, closeBars, nil
}

// execute runs fn alongside the metrics server, if one is configured.
// The server stops when fn returns; a server failure pauses the run.
func (e *env) execute(ctx context.Context, fn func(ctx context.Context) (*research.Outcome, error)) (*research.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if addr := e.cfg.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			e.logger.Info().Str("addr", addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var out *research.Outcome
	g.Go(func() error {
		defer cancel()
		var err error
		out, err = fn(gctx)
		return err
	})

	err := g.Wait()
	return out, err
}
