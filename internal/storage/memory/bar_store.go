package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
// Bars are kept sorted per instrument.
type BarStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Bar // keyed by instrument, sorted by ts
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string][]domain.Bar),
	}
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate.
func (s *BarStore) InsertBulk(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]map[int64]struct{})

	// First pass: check for duplicates (existing + intra-batch)
	for _, b := range bars {
		if b.Instrument == "" || b.TS.IsZero() {
			return storage.ErrInvalidInput
		}
		if s.contains(b.Instrument, b.TS) {
			return storage.ErrDuplicateKey
		}
		keys, ok := batchKeys[b.Instrument]
		if !ok {
			keys = make(map[int64]struct{})
			batchKeys[b.Instrument] = keys
		}
		ts := b.TS.UnixNano()
		if _, exists := keys[ts]; exists {
			return storage.ErrDuplicateKey
		}
		keys[ts] = struct{}{}
	}

	// Second pass: insert all
	touched := make(map[string]struct{})
	for _, b := range bars {
		b.TS = b.TS.UTC()
		s.data[b.Instrument] = append(s.data[b.Instrument], b)
		touched[b.Instrument] = struct{}{}
	}
	for inst := range touched {
		series := s.data[inst]
		sort.Slice(series, func(i, j int) bool {
			return series[i].TS.Before(series[j].TS)
		})
	}
	return nil
}

// GetRange retrieves bars for an instrument with from <= ts < to, ordered by ts ASC.
func (s *BarStore) GetRange(_ context.Context, instrument string, from, to time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[instrument]
	lo := sort.Search(len(series), func(i int) bool { return !series[i].TS.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return !series[i].TS.Before(to) })
	if lo >= hi {
		return nil, nil
	}

	result := make([]domain.Bar, hi-lo)
	copy(result, series[lo:hi])
	return result, nil
}

func (s *BarStore) contains(instrument string, ts time.Time) bool {
	series := s.data[instrument]
	i := sort.Search(len(series), func(i int) bool { return !series[i].TS.Before(ts) })
	return i < len(series) && series[i].TS.Equal(ts)
}

var _ storage.BarStore = (*BarStore)(nil)
