package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// SurvivorStore implements storage.SurvivorStore using PostgreSQL.
type SurvivorStore struct {
	pool *Pool
}

// NewSurvivorStore creates a new SurvivorStore.
func NewSurvivorStore(pool *Pool) *SurvivorStore {
	return &SurvivorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SurvivorStore = (*SurvivorStore)(nil)

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert adds a survivor outside of a candidate write. Used by backfill.
func (s *SurvivorStore) Insert(ctx context.Context, sv *domain.Survivor) error {
	if sv == nil || sv.RunID == "" || sv.SpecID == "" {
		return storage.ErrInvalidInput
	}
	return insertSurvivor(ctx, s.pool, sv)
}

// ListByRun returns survivors ordered by survival score DESC, spec_id ASC.
func (s *SurvivorStore) ListByRun(ctx context.Context, runID string) ([]*domain.Survivor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, spec_id, spec, metrics, survival_score, confidence, created_at
		FROM survivors
		WHERE run_id = $1
		ORDER BY survival_score DESC, spec_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list survivors: %w", err)
	}
	defer rows.Close()

	var result []*domain.Survivor
	for rows.Next() {
		var (
			sv         domain.Survivor
			spec       []byte
			metrics    []byte
			confidence string
		)
		if err := rows.Scan(&sv.RunID, &sv.SpecID, &spec, &metrics, &sv.SurvivalScore, &confidence, &sv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan survivor: %w", err)
		}
		if err := json.Unmarshal(spec, &sv.Spec); err != nil {
			return nil, fmt.Errorf("unmarshal spec: %w", err)
		}
		if err := json.Unmarshal(metrics, &sv.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		sv.Confidence = domain.Confidence(confidence)
		sv.CreatedAt = sv.CreatedAt.UTC()
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

	_, err = q.Exec(ctx, `
		INSERT INTO survivors (run_id, spec_id, spec, metrics, survival_score, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sv.RunID, sv.SpecID, spec, metrics, sv.SurvivalScore, string(sv.Confidence), sv.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert survivor: %w", err)
	}
	return nil
}
