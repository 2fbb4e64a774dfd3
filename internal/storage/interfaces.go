package storage

import (
	"context"
	"time"

	"accumulation-lab/internal/domain"
)

// QuoteStore provides access to quotes storage. Append-only.
type QuoteStore interface {
	// InsertBulk adds multiple quotes atomically. Fails entire batch on any
	// duplicate (instrument_id, raw_ts), existing or within the batch.
	InsertBulk(ctx context.Context, quotes []*domain.Quote) error

	// GetByInstrument retrieves all quotes of an instrument and grain with a
	// non-NULL timestamp, ordered by (ts, raw_ts) ASC.
	GetByInstrument(ctx context.Context, instrumentID int64, grain string) ([]*domain.Quote, error)

	// GetTail retrieves quotes with ts > after, preceded by up to warmup
	// quotes with ts <= after, ordered by (ts, raw_ts) ASC.
	GetTail(ctx context.Context, instrumentID int64, grain string, after time.Time, warmup int) ([]*domain.Quote, error)

	// ListInstruments returns distinct instrument ids having quotes of grain, ASC.
	ListInstruments(ctx context.Context, grain string) ([]int64, error)
}

// SessionCalendarStore provides access to session_calendar storage.
type SessionCalendarStore interface {
	// InsertBulk adds calendar entries atomically. Returns ErrDuplicateKey on a repeated date.
	InsertBulk(ctx context.Context, days []domain.SessionDay) error

	// GetRecent returns the last n sessions with date <= asOf, ordered by date ASC.
	GetRecent(ctx context.Context, asOf time.Time, n int) ([]domain.SessionDay, error)
}

// IndicatorSnapshotStore provides access to indicator_snapshot storage.
type IndicatorSnapshotStore interface {
	// Upsert writes snapshots atomically. On (instrument_id, timeframe, ts)
	// collision the params and values payloads are overwritten and
	// calculated_at is refreshed. Returns the number of rows written.
	Upsert(ctx context.Context, snapshots []*domain.IndicatorSnapshot) (int, error)

	// LatestTimestamp returns the newest snapshot ts of an instrument and
	// timeframe. Returns ErrNotFound if the instrument has no snapshot.
	LatestTimestamp(ctx context.Context, instrumentID int64, timeframe string) (time.Time, error)

	// GetLatest returns the newest snapshot of an instrument and timeframe.
	// Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, instrumentID int64, timeframe string) (*domain.IndicatorSnapshot, error)

	// GetByTimeRange returns snapshots of all instruments with ts within
	// [start, end] (inclusive), ordered by (instrument_id, ts) ASC.
	GetByTimeRange(ctx context.Context, timeframe string, start, end time.Time) ([]*domain.IndicatorSnapshot, error)

	// ListSetups returns snapshots whose values carry an active setup flag,
	// ordered by (instrument_id, ts) ASC.
	ListSetups(ctx context.Context, timeframe string) ([]*domain.IndicatorSnapshot, error)
}

// RunLogStore provides access to run_log storage. Append-only.
type RunLogStore interface {
	// Append adds a run log entry and assigns its ID.
	Append(ctx context.Context, entry *domain.RunLogEntry) error

	// Latest returns the most recent entry. Returns ErrNotFound if the log is empty.
	Latest(ctx context.Context) (*domain.RunLogEntry, error)

	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]*domain.RunLogEntry, error)
}
