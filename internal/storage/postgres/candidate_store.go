package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CandidateStore implements storage.CandidateStore using PostgreSQL.
type CandidateStore struct {
	pool *Pool
}

// NewCandidateStore creates a new CandidateStore.
func NewCandidateStore(pool *Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandidateStore = (*CandidateStore)(nil)

// Record inserts the candidate and its optional survivor in one transaction.
func (s *CandidateStore) Record(ctx context.Context, c *domain.CandidateResult, survivor *domain.Survivor) error {
	if c == nil || c.RunID == "" || c.SpecID == "" {
		return storage.ErrInvalidInput
	}
	if survivor != nil && (survivor.RunID != c.RunID || survivor.SpecID != c.SpecID) {
		return storage.ErrInvalidInput
	}

	spec, err := json.Marshal(c.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	var metrics []byte
	if c.Metrics != nil {
		if metrics, err = json.Marshal(c.Metrics); err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO candidates (run_id, spec_id, position, spec, metrics, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.RunID, c.SpecID, int64(c.Position), spec, metrics, string(c.Status), c.Error, c.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert candidate: %w", err)
	}

	if survivor != nil {
		if err := insertSurvivor(ctx, tx, survivor); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves one candidate. Returns ErrNotFound if not exists.
func (s *CandidateStore) Get(ctx context.Context, runID, specID string) (*domain.CandidateResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, spec_id, position, spec, metrics, status, error, created_at
		FROM candidates
		WHERE run_id = $1 AND spec_id = $2
	`, runID, specID)

	c, err := scanCandidate(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// ListByRun returns all candidates of a run ordered by position ASC.
func (s *CandidateStore) ListByRun(ctx context.Context, runID string) ([]*domain.CandidateResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, spec_id, position, spec, metrics, status, error, created_at
		FROM candidates
		WHERE run_id = $1
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var result []*domain.CandidateResult
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCandidate(row rowScanner) (*domain.CandidateResult, error) {
	var (
		c        domain.CandidateResult
		position int64
		spec     []byte
		metrics  []byte
		status   string
	)
	if err := row.Scan(&c.RunID, &c.SpecID, &position, &spec, &metrics, &status, &c.Error, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(spec, &c.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	if len(metrics) > 0 {
		var m domain.ResultRow
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		c.Metrics = &m
	}
	c.Position = uint64(position)
	c.Status = domain.CandidateStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
