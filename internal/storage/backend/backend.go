// Package backend opens the configured research stores and bar source.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"orb-lab/internal/barfeed"
	"orb-lab/internal/config"
	"orb-lab/internal/storage"
	"orb-lab/internal/storage/clickhouse"
	"orb-lab/internal/storage/memory"
	"orb-lab/internal/storage/migrations"
	"orb-lab/internal/storage/postgres"
	"orb-lab/internal/storage/sqlite"
)

// OpenStores opens the research stores selected by cfg.Store and applies
// the schema. Callers must call Close on the result.
func OpenStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage.Stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store; runs will not survive this process")
		return memory.NewStores(), nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", db.Path()).Msg("sqlite store opened")
		return sqlite.NewStores(db), nil

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info().Msg("postgres store opened")
		return postgres.NewStores(pool), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Bars is an open bar source.
type Bars struct {
	storage.BarStore
	Close func() error
}

// OpenBars opens the bar source selected by cfg.BarSource.
// A CSV source is loaded fully into a memory store.
func OpenBars(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Bars, error) {
	if err := cfg.ValidateBars(); err != nil {
		return nil, err
	}

	switch cfg.BarSource {
	case config.BarsCSV:
		bars, err := barfeed.LoadFile(cfg.BarsCSV, cfg.BarsInstrument)
		if err != nil {
			return nil, err
		}
		store := memory.NewBarStore()
		if err := store.InsertBulk(ctx, bars); err != nil {
			return nil, fmt.Errorf("load csv bars: %w", err)
		}
		logger.Info().Str("path", cfg.BarsCSV).Int("bars", len(bars)).Msg("csv bars loaded")
		return &Bars{BarStore: store, Close: func() error { return nil }}, nil

	case config.BarsClickHouse:
		conn, err := OpenClickHouse(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Bars{BarStore: clickhouse.NewBarStore(conn), Close: conn.Close}, nil
	}
	return nil, fmt.Errorf("unknown bar source %q", cfg.BarSource)
}

// OpenClickHouse connects to ClickHouse and applies the bar schema.
func OpenClickHouse(ctx context.Context, cfg *config.Config) (*clickhouse.Conn, error) {
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	return conn, nil
}
