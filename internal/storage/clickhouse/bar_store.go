package clickhouse

import (
	"context"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// BarStore implements storage.BarStore over the bars_1m table.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate (instrument, ts).
// ClickHouse does not enforce keys, so existing rows are checked before the batch is sent.
func (s *BarStore) InsertBulk(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type span struct{ from, to time.Time }
	spans := make(map[string]*span)
	seen := make(map[string]map[int64]struct{})
	for _, b := range bars {
		if b.Instrument == "" || b.TS.IsZero() {
			return storage.ErrInvalidInput
		}
		keys, ok := seen[b.Instrument]
		if !ok {
			keys = make(map[int64]struct{})
			seen[b.Instrument] = keys
		}
		ms := b.TS.UnixMilli()
		if _, exists := keys[ms]; exists {
			return storage.ErrDuplicateKey
		}
		keys[ms] = struct{}{}

		sp, ok := spans[b.Instrument]
		if !ok {
			spans[b.Instrument] = &span{from: b.TS, to: b.TS}
			continue
		}
		if b.TS.Before(sp.from) {
			sp.from = b.TS
		}
		if b.TS.After(sp.to) {
			sp.to = b.TS
		}
	}

	for instrument, sp := range spans {
		existing, err := s.GetRange(ctx, instrument, sp.from, sp.to.Add(domain.BarInterval))
		if err != nil {
			return fmt.Errorf("check existing bars: %w", err)
		}
		for _, b := range existing {
			if _, dup := seen[instrument][b.TS.UnixMilli()]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars_1m (instrument, ts, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		if err := batch.Append(b.Instrument, b.TS.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange retrieves bars for an instrument with from <= ts < to, ordered by ts ASC.
func (s *BarStore) GetRange(ctx context.Context, instrument string, from, to time.Time) ([]domain.Bar, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT instrument, ts, open, high, low, close, volume
		FROM bars_1m FINAL
		WHERE instrument = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, instrument, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

func scanBars(rows chRows) ([]domain.Bar, error) {
	var bars []domain.Bar

	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Instrument, &b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		b.TS = b.TS.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
