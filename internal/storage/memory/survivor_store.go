package memory

import (
	"context"
	"sort"
	"sync"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// SurvivorStore is an in-memory implementation of storage.SurvivorStore.
type SurvivorStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Survivor // keyed by (run_id, spec_id)
}

// NewSurvivorStore creates a new in-memory survivor store.
func NewSurvivorStore() *SurvivorStore {
	return &SurvivorStore{
		data: make(map[string]*domain.Survivor),
	}
}

// Insert adds a survivor. Returns ErrDuplicateKey if (run_id, spec_id) exists.
func (s *SurvivorStore) Insert(_ context.Context, sv *domain.Survivor) error {
	if sv == nil || sv.RunID == "" || sv.SpecID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := runSpecKey(sv.RunID, sv.SpecID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = copySurvivor(sv)
	return nil
}

// ListByRun returns survivors of a run ordered by survival_score DESC, spec_id ASC.
func (s *SurvivorStore) ListByRun(_ context.Context, runID string) ([]*domain.Survivor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Survivor
	for _, sv := range s.data {
		if sv.RunID == runID {
			result = append(result, copySurvivor(sv))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SurvivalScore != result[j].SurvivalScore {
			return result[i].SurvivalScore > result[j].SurvivalScore
		}
		return result[i].SpecID < result[j].SpecID
	})
	return result, nil
}

func copySurvivor(sv *domain.Survivor) *domain.Survivor {
	c := *sv
	return &c
}

var _ storage.SurvivorStore = (*SurvivorStore)(nil)
