package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" || !r.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	config, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, status, config, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.RunID, r.StartedAt, r.FinishedAt, string(r.Status), config, r.FailureReason, r.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, started_at, finished_at, status, config, failure_reason, updated_at
		FROM runs
		WHERE run_id = $1
	`, runID)

	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns all runs, most recently started first.
func (s *RunStore) List(ctx context.Context) ([]*domain.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, started_at, finished_at, status, config, failure_reason, updated_at
		FROM runs
		ORDER BY started_at DESC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpdateStatus moves a run to a new status inside a transaction that locks the row.
func (s *RunStore) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, failureReason string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM runs WHERE run_id = $1 FOR UPDATE`, runID).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock run: %w", err)
	}
	if !domain.CanTransition(domain.RunStatus(current), status) {
		return storage.ErrInvalidTransition
	}

	var finishedAt *time.Time
	if status.IsTerminal() {
		finishedAt = &at
	}

	_, err = tx.Exec(ctx, `
		UPDATE runs
		SET status = $2,
		    failure_reason = $3,
		    updated_at = $4,
		    finished_at = COALESCE($5, finished_at)
		WHERE run_id = $1
	`, runID, string(status), failureReason, at, finishedAt)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var (
		r      domain.Run
		status string
		config []byte
	)
	if err := row.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &status, &config, &r.FailureReason, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &r.Config); err != nil {
		return nil, fmt.Errorf("unmarshal run config: %w", err)
	}
	r.Status = domain.RunStatus(status)
	r.StartedAt = r.StartedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.FinishedAt != nil {
		finished := r.FinishedAt.UTC()
		r.FinishedAt = &finished
	}
	return &r, nil
}
