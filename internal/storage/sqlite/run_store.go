package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// RunStore implements storage.RunStore using SQLite.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
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
	var finishedAt *string
	if r.FinishedAt != nil {
		f := formatTS(*r.FinishedAt)
		finishedAt = &f
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, status, config, failure_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, formatTS(r.StartedAt), finishedAt, string(r.Status), string(config), r.FailureReason, formatTS(r.UpdatedAt))
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
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, status, config, failure_reason, updated_at
		FROM runs
		WHERE run_id = ?
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
	rows, err := s.db.QueryContext(ctx, `
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

// UpdateStatus moves a run to a new status. The read and the write share one transaction.
func (s *RunStore) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, failureReason string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&current); err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("read run status: %w", err)
	}
	if !domain.CanTransition(domain.RunStatus(current), status) {
		return storage.ErrInvalidTransition
	}

	var finishedAt *string
	if status.IsTerminal() {
		f := formatTS(at)
		finishedAt = &f
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, failure_reason = ?, updated_at = ?, finished_at = COALESCE(?, finished_at)
		WHERE run_id = ?
	`, string(status), failureReason, formatTS(at), finishedAt, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var (
		r                    domain.Run
		startedAt, updatedAt string
		finishedAt           sql.NullString
		status, config       string
	)
	if err := row.Scan(&r.RunID, &startedAt, &finishedAt, &status, &config, &r.FailureReason, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &r.Config); err != nil {
		return nil, fmt.Errorf("unmarshal run config: %w", err)
	}

	var err error
	if r.StartedAt, err = parseTS(startedAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		f, err := parseTS(finishedAt.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &f
	}
	r.Status = domain.RunStatus(status)
	return &r, nil
}
