package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// IndicatorSnapshotStore implements storage.IndicatorSnapshotStore using PostgreSQL.
// Upsert relies on the (instrument_id, timeframe, ts) unique constraint.
type IndicatorSnapshotStore struct {
	pool *Pool
}

// NewIndicatorSnapshotStore creates a new IndicatorSnapshotStore.
func NewIndicatorSnapshotStore(pool *Pool) *IndicatorSnapshotStore {
	return &IndicatorSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IndicatorSnapshotStore = (*IndicatorSnapshotStore)(nil)

const snapshotColumns = `id, instrument_id, ts, timeframe, calculated_at, params, vals`

// Upsert writes snapshots in one transaction, overwriting payloads on key collision.
func (s *IndicatorSnapshotStore) Upsert(ctx context.Context, snapshots []*domain.IndicatorSnapshot) (n int, err error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	type encoded struct {
		params, values string
	}
	payloads := make([]encoded, len(snapshots))
	for i, snap := range snapshots {
		if snap == nil || snap.InstrumentID == 0 || snap.Timeframe == "" || snap.Ts.IsZero() {
			return 0, storage.ErrInvalidInput
		}
		params, err := json.Marshal(snap.Params)
		if err != nil {
			return 0, fmt.Errorf("encode params: %w", err)
		}
		values, err := json.Marshal(snap.Values)
		if err != nil {
			return 0, fmt.Errorf("encode values: %w", err)
		}
		payloads[i] = encoded{params: string(params), values: string(values)}
	}

	defer func(start time.Time) { observe("indicator_snapshot.upsert", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO indicator_snapshot (instrument_id, ts, timeframe, calculated_at, params, vals)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5::jsonb, $6::jsonb)
		ON CONFLICT (instrument_id, timeframe, ts) DO UPDATE SET
			params        = EXCLUDED.params,
			vals          = EXCLUDED.vals,
			calculated_at = EXCLUDED.calculated_at
		RETURNING id
	`

	batch := &pgx.Batch{}
	for i, snap := range snapshots {
		var calculatedAt *time.Time
		if !snap.CalculatedAt.IsZero() {
			calculatedAt = &snap.CalculatedAt
		}
		batch.Queue(query,
			snap.InstrumentID,
			snap.Ts,
			snap.Timeframe,
			calculatedAt,
			payloads[i].params,
			payloads[i].values,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for _, snap := range snapshots {
		if err := results.QueryRow().Scan(&snap.ID); err != nil {
			results.Close()
			return 0, fmt.Errorf("upsert snapshot %d@%s: %w", snap.InstrumentID, snap.Ts.Format(time.RFC3339), err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(snapshots), nil
}

// LatestTimestamp returns the newest snapshot ts. Returns ErrNotFound if none exists.
func (s *IndicatorSnapshotStore) LatestTimestamp(ctx context.Context, instrumentID int64, timeframe string) (time.Time, error) {
	query := `SELECT max(ts) FROM indicator_snapshot WHERE instrument_id = $1 AND timeframe = $2`

	var ts *time.Time
	start := time.Now()
	err := s.pool.QueryRow(ctx, query, instrumentID, timeframe).Scan(&ts)
	observe("indicator_snapshot.latest_ts", start, err)
	if err != nil {
		return time.Time{}, fmt.Errorf("get latest snapshot ts: %w", err)
	}
	if ts == nil {
		return time.Time{}, storage.ErrNotFound
	}
	return ts.UTC(), nil
}

// GetLatest returns the newest snapshot. Returns ErrNotFound if none exists.
func (s *IndicatorSnapshotStore) GetLatest(ctx context.Context, instrumentID int64, timeframe string) (*domain.IndicatorSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM indicator_snapshot
		WHERE instrument_id = $1 AND timeframe = $2
		ORDER BY ts DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, instrumentID, timeframe))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// GetByTimeRange returns snapshots of all instruments within [start, end] (inclusive).
func (s *IndicatorSnapshotStore) GetByTimeRange(ctx context.Context, timeframe string, start, end time.Time) ([]*domain.IndicatorSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM indicator_snapshot
		WHERE timeframe = $1 AND ts >= $2 AND ts <= $3
		ORDER BY instrument_id ASC, ts ASC
	`
	return s.query(ctx, "indicator_snapshot.get_by_time_range", query, timeframe, start, end)
}

// ListSetups returns snapshots whose values carry an active setup flag.
func (s *IndicatorSnapshotStore) ListSetups(ctx context.Context, timeframe string) ([]*domain.IndicatorSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM indicator_snapshot
		WHERE timeframe = $1 AND (vals->>'hidden_accum_setup') = 'true'
		ORDER BY instrument_id ASC, ts ASC
	`
	return s.query(ctx, "indicator_snapshot.list_setups", query, timeframe)
}

func (s *IndicatorSnapshotStore) query(ctx context.Context, operation, query string, args ...any) ([]*domain.IndicatorSnapshot, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	observe(operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	var snaps []*domain.IndicatorSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

func scanSnapshot(row pgx.Row) (*domain.IndicatorSnapshot, error) {
	var (
		snap           domain.IndicatorSnapshot
		params, values []byte
	)
	err := row.Scan(
		&snap.ID,
		&snap.InstrumentID,
		&snap.Ts,
		&snap.Timeframe,
		&snap.CalculatedAt,
		&params,
		&values,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &snap.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal(values, &snap.Values); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	snap.Ts = snap.Ts.UTC()
	snap.CalculatedAt = snap.CalculatedAt.UTC()
	return &snap, nil
}
