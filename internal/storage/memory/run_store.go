package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Run
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.Run),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" || !r.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.RunID] = copyRun(r)
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRun(r), nil
}

// List returns all runs, most recently started first.
func (s *RunStore) List(_ context.Context) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Run, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, copyRun(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

// UpdateStatus moves a run to a new status.
func (s *RunStore) UpdateStatus(_ context.Context, runID string, status domain.RunStatus, failureReason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[runID]
	if !ok {
		return storage.ErrNotFound
	}
	if !domain.CanTransition(r.Status, status) {
		return storage.ErrInvalidTransition
	}

	r.Status = status
	r.FailureReason = failureReason
	r.UpdatedAt = at
	if status.IsTerminal() {
		finished := at
		r.FinishedAt = &finished
	}
	return nil
}

func copyRun(r *domain.Run) *domain.Run {
	c := *r
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}

var _ storage.RunStore = (*RunStore)(nil)
