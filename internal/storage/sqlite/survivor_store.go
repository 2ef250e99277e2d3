package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// SurvivorStore implements storage.SurvivorStore using SQLite.
type SurvivorStore struct {
	db *DB
}

// NewSurvivorStore creates a new SurvivorStore.
func NewSurvivorStore(db *DB) *SurvivorStore {
	return &SurvivorStore{db: db}
}

// Compile-time interface check.
var _ storage.SurvivorStore = (*SurvivorStore)(nil)

// Insert adds a survivor outside of a candidate write. Used by backfill.
func (s *SurvivorStore) Insert(ctx context.Context, sv *domain.Survivor) error {
	if sv == nil || sv.RunID == "" || sv.SpecID == "" {
		return storage.ErrInvalidInput
	}
	return insertSurvivor(ctx, s.db, sv)
}

// ListByRun returns survivors ordered by survival score DESC, spec_id ASC.
func (s *SurvivorStore) ListByRun(ctx context.Context, runID string) ([]*domain.Survivor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, spec_id, spec, metrics, survival_score, confidence, created_at
		FROM survivors
		WHERE run_id = ?
		ORDER BY survival_score DESC, spec_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list survivors: %w", err)
	}
	defer rows.Close()

	var result []*domain.Survivor
	for rows.Next() {
		var (
			sv                            domain.Survivor
			spec, metrics, confidence, at string
		)
		if err := rows.Scan(&sv.RunID, &sv.SpecID, &spec, &metrics, &sv.SurvivalScore, &confidence, &at); err != nil {
			return nil, fmt.Errorf("scan survivor: %w", err)
		}
		if err := json.Unmarshal([]byte(spec), &sv.Spec); err != nil {
			return nil, fmt.Errorf("unmarshal spec: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &sv.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		createdAt, err := parseTS(at)
		if err != nil {
			return nil, err
		}
		sv.CreatedAt = createdAt
		sv.Confidence = domain.Confidence(confidence)
		result = append(result, &sv)
	}
	return result, rows.Err()
}

func insertSurvivor(ctx context.Context, q execer, sv *domain.Survivor) error {
	spec, err := json.Marshal(sv.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	metrics, err := json.Marshal(sv.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO survivors (run_id, spec_id, spec, metrics, survival_score, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sv.RunID, sv.SpecID, string(spec), string(metrics), sv.SurvivalScore, string(sv.Confidence), formatTS(sv.CreatedAt))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert survivor: %w", err)
	}
	return nil
}
