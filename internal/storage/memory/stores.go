// Package memory provides in-memory stores for tests and dry runs.
package memory

import "orb-lab/internal/storage"

// NewStores returns a fresh set of linked in-memory research stores.
func NewStores() *storage.Stores {
	survivors := NewSurvivorStore()
	return &storage.Stores{
		Runs:        NewRunStore(),
		Candidates:  NewCandidateStore(survivors),
		Survivors:   survivors,
		Checkpoints: NewCheckpointStore(),
		Close:       func() error { return nil },
	}
}
