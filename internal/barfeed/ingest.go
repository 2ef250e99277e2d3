package barfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// DefaultBatchSize is the number of bars written per InsertBulk call.
const DefaultBatchSize = 5000

// Ingester writes bars to a bar store in batches.
type Ingester struct {
	store     storage.BarStore
	batchSize int
	logger    zerolog.Logger
}

// IngesterOptions contains configuration for creating an Ingester.
type IngesterOptions struct {
	Store     storage.BarStore
	BatchSize int
	Logger    zerolog.Logger
}

// NewIngester creates a new bar ingester.
func NewIngester(opts IngesterOptions) *Ingester {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Ingester{
		store:     opts.Store,
		batchSize: batchSize,
		logger:    opts.Logger.With().Str("component", "barfeed").Logger(),
	}
}

// IngestResult contains statistics from an ingest.
type IngestResult struct {
	Inserted          int
	DuplicatesSkipped int
	Duration          time.Duration
}

// Ingest writes bars in batches. A batch rejected for duplicates is retried
// bar by bar so that only the duplicates are skipped; re-running an ingest
// over the same file is therefore safe.
func (in *Ingester) Ingest(ctx context.Context, bars []domain.Bar) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{}

	for i := 0; i < len(bars); i += in.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := i + in.batchSize
		if end > len(bars) {
			end = len(bars)
		}
		batch := bars[i:end]

		err := in.store.InsertBulk(ctx, batch)
		switch {
		case err == nil:
			result.Inserted += len(batch)
		case errors.Is(err, storage.ErrDuplicateKey):
			for _, bar := range batch {
				if err := in.store.InsertBulk(ctx, []domain.Bar{bar}); err != nil {
					if errors.Is(err, storage.ErrDuplicateKey) {
						result.DuplicatesSkipped++
						continue
					}
					return result, fmt.Errorf("insert bar %s %s: %w", bar.Instrument, bar.TS.Format(time.RFC3339), err)
				}
				result.Inserted++
			}
		default:
			return result, fmt.Errorf("insert batch at %d: %w", i, err)
		}
		in.logger.Debug().Int("offset", i).Int("size", len(batch)).Msg("batch written")
	}

	result.Duration = time.Since(start)
	in.logger.Info().
		Int("inserted", result.Inserted).
		Int("duplicates", result.DuplicatesSkipped).
		Dur("duration", result.Duration).
		Msg("ingest complete")
	return result, nil
}
