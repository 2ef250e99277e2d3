package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CandidateStore implements storage.CandidateStore using SQLite.
type CandidateStore struct {
	db *DB
}

// NewCandidateStore creates a new CandidateStore.
func NewCandidateStore(db *DB) *CandidateStore {
	return &CandidateStore{db: db}
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
	var metrics *string
	if c.Metrics != nil {
		b, err := json.Marshal(c.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
		m := string(b)
		metrics = &m
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO candidates (run_id, spec_id, position, spec, metrics, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.RunID, c.SpecID, int64(c.Position), string(spec), metrics, string(c.Status), c.Error, formatTS(c.CreatedAt))
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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves one candidate. Returns ErrNotFound if not exists.
func (s *CandidateStore) Get(ctx context.Context, runID, specID string) (*domain.CandidateResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, spec_id, position, spec, metrics, status, error, created_at
		FROM candidates
		WHERE run_id = ? AND spec_id = ?
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, spec_id, position, spec, metrics, status, error, created_at
		FROM candidates
		WHERE run_id = ?
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
		c                domain.CandidateResult
		position         int64
		spec, status, at string
		metrics          sql.NullString
	)
	if err := row.Scan(&c.RunID, &c.SpecID, &position, &spec, &metrics, &status, &c.Error, &at); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(spec), &c.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	if metrics.Valid {
		var m domain.ResultRow
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		c.Metrics = &m
	}
	createdAt, err := parseTS(at)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = createdAt
	c.Position = uint64(position)
	c.Status = domain.CandidateStatus(status)
	return &c, nil
}
