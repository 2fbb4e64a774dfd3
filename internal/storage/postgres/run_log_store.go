package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// RunLogStore implements storage.RunLogStore using PostgreSQL.
type RunLogStore struct {
	pool *Pool
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(pool *Pool) *RunLogStore {
	return &RunLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunLogStore = (*RunLogStore)(nil)

const runLogColumns = `id, run_id::text, started_at, finished_at, rows_inserted, status, message`

// Append adds a run log entry and assigns its ID.
func (s *RunLogStore) Append(ctx context.Context, entry *domain.RunLogEntry) error {
	if entry == nil || entry.Status == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO run_log (run_id, started_at, finished_at, rows_inserted, status, message)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		RETURNING id
	`

	start := time.Now()
	err := s.pool.QueryRow(ctx, query,
		entry.RunID.String(),
		entry.StartedAt,
		entry.FinishedAt,
		entry.RowsInserted,
		string(entry.Status),
		entry.Message,
	).Scan(&entry.ID)
	observe("run_log.append", start, err)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// Latest returns the most recent entry. Returns ErrNotFound if the log is empty.
func (s *RunLogStore) Latest(ctx context.Context) (*domain.RunLogEntry, error) {
	query := `SELECT ` + runLogColumns + ` FROM run_log ORDER BY id DESC LIMIT 1`

	row := s.pool.QueryRow(ctx, query)
	entry, err := scanRunLog(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest run log: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries, newest first.
func (s *RunLogStore) List(ctx context.Context, limit int) ([]*domain.RunLogEntry, error) {
	query := `SELECT ` + runLogColumns + ` FROM run_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	observe("run_log.list", start, err)
	if err != nil {
		return nil, fmt.Errorf("list run log: %w", err)
	}
	defer rows.Close()

	var entries []*domain.RunLogEntry
	for rows.Next() {
		entry, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return entries, nil
}

func scanRunLog(row pgx.Row) (*domain.RunLogEntry, error) {
	var (
		entry  domain.RunLogEntry
		runID  string
		status string
	)
	err := row.Scan(
		&entry.ID,
		&runID,
		&entry.StartedAt,
		&entry.FinishedAt,
		&entry.RowsInserted,
		&status,
		&entry.Message,
	)
	if err != nil {
		return nil, err
	}
	if entry.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	entry.Status = domain.RunStatus(status)
	return &entry, nil
}
