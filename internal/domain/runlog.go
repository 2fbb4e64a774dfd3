package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of a materialization run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunLogEntry is an append-only audit record of one materialization run.
// Corresponds to run_log table in PostgreSQL.
type RunLogEntry struct {
	ID           int64     `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	RowsInserted int       `json:"rows_inserted"`
	Status       RunStatus `json:"status"`
	Message      string    `json:"message"`
}
