package memory

import (
	"context"
	"sync"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CheckpointState // keyed by checkpoint_id
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]*domain.CheckpointState),
	}
}

// Upsert writes a checkpoint keyed by checkpoint_id.
func (s *CheckpointStore) Upsert(_ context.Context, c *domain.CheckpointState) error {
	if c == nil || c.RunID == "" || c.CheckpointID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[c.CheckpointID] = copyCheckpoint(c)
	return nil
}

// Latest returns the most advanced checkpoint of a run.
func (s *CheckpointStore) Latest(_ context.Context, runID string) (*domain.CheckpointState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.CheckpointState
	for _, c := range s.data {
		if c.RunID != runID {
			continue
		}
		if best == nil ||
			c.CandidatesCompleted > best.CandidatesCompleted ||
			(c.CandidatesCompleted == best.CandidatesCompleted && c.UpdatedAt.After(best.UpdatedAt)) {
			best = c
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return copyCheckpoint(best), nil
}

func copyCheckpoint(c *domain.CheckpointState) *domain.CheckpointState {
	out := *c
	if c.BestExpectancyR != nil {
		v := *c.BestExpectancyR
		out.BestExpectancyR = &v
	}
	return &out
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)
