package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Upsert inserts or replaces the checkpoint row with the same checkpoint_id.
func (s *CheckpointStore) Upsert(ctx context.Context, cp *domain.CheckpointState) error {
	if cp == nil || cp.RunID == "" || cp.CheckpointID == "" {
		return storage.ErrInvalidInput
	}

	state, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints (checkpoint_id, run_id, checkpoint_state, candidates_completed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (checkpoint_id) DO UPDATE SET
			checkpoint_state = EXCLUDED.checkpoint_state,
			candidates_completed = EXCLUDED.candidates_completed,
			updated_at = EXCLUDED.updated_at
	`, cp.CheckpointID, cp.RunID, state, int64(cp.CandidatesCompleted), cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most advanced checkpoint of a run. Returns ErrNotFound if none.
func (s *CheckpointStore) Latest(ctx context.Context, runID string) (*domain.CheckpointState, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `
		SELECT checkpoint_state
		FROM checkpoints
		WHERE run_id = $1
		ORDER BY candidates_completed DESC, updated_at DESC
		LIMIT 1
	`, runID).Scan(&state)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest checkpoint: %w", err)
	}

	var cp domain.CheckpointState
	if err := json.Unmarshal(state, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
