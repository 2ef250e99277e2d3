package memory

import (
	"context"
	"sort"
	"sync"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CandidateStore is an in-memory implementation of storage.CandidateStore.
// Survivors recorded with a candidate go to the linked SurvivorStore.
type CandidateStore struct {
	mu        sync.RWMutex
	data      map[string]*domain.CandidateResult // keyed by (run_id, spec_id)
	survivors *SurvivorStore
}

// NewCandidateStore creates a new in-memory candidate store writing survivors to survivors.
func NewCandidateStore(survivors *SurvivorStore) *CandidateStore {
	return &CandidateStore{
		data:      make(map[string]*domain.CandidateResult),
		survivors: survivors,
	}
}

// runSpecKey generates a unique key for a (run_id, spec_id) row.
func runSpecKey(runID, specID string) string {
	return runID + "|" + specID
}

// Record persists a candidate and its optional survivor atomically.
func (s *CandidateStore) Record(_ context.Context, c *domain.CandidateResult, survivor *domain.Survivor) error {
	if c == nil || c.RunID == "" || c.SpecID == "" {
		return storage.ErrInvalidInput
	}
	if survivor != nil && (survivor.RunID != c.RunID || survivor.SpecID != c.SpecID) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := runSpecKey(c.RunID, c.SpecID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	if survivor != nil {
		s.survivors.mu.Lock()
		defer s.survivors.mu.Unlock()
		if _, exists := s.survivors.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		s.survivors.data[key] = copySurvivor(survivor)
	}

	s.data[key] = copyCandidate(c)
	return nil
}

// Get retrieves one candidate. Returns ErrNotFound if not exists.
func (s *CandidateStore) Get(_ context.Context, runID, specID string) (*domain.CandidateResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[runSpecKey(runID, specID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyCandidate(c), nil
}

// ListByRun returns all candidates of a run ordered by position ASC.
func (s *CandidateStore) ListByRun(_ context.Context, runID string) ([]*domain.CandidateResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CandidateResult
	for _, c := range s.data {
		if c.RunID == runID {
			result = append(result, copyCandidate(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func copyCandidate(c *domain.CandidateResult) *domain.CandidateResult {
	out := *c
	if c.Metrics != nil {
		m := *c.Metrics
		out.Metrics = &m
	}
	return &out
}

var _ storage.CandidateStore = (*CandidateStore)(nil)
