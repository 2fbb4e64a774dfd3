package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// IndicatorSnapshotStore implements storage.IndicatorSnapshotStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by (instrument_id, timeframe, ts)
// with calculated_at as version, so an upsert is a plain insert and reads use
// FINAL to see only the newest version of each key. There is no surrogate id.
type IndicatorSnapshotStore struct {
	conn *Conn
	now  func() time.Time
}

// NewIndicatorSnapshotStore creates a new IndicatorSnapshotStore.
func NewIndicatorSnapshotStore(conn *Conn) *IndicatorSnapshotStore {
	return &IndicatorSnapshotStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.IndicatorSnapshotStore = (*IndicatorSnapshotStore)(nil)

const snapshotColumns = `instrument_id, ts, timeframe, calculated_at, params, vals`

// Upsert inserts all snapshots in a single batch.
func (s *IndicatorSnapshotStore) Upsert(ctx context.Context, snapshots []*domain.IndicatorSnapshot) (n int, err error) {
	if len(snapshots) == 0 {
		return 0, nil
	}
	for _, snap := range snapshots {
		if snap == nil || snap.InstrumentID == 0 || snap.Timeframe == "" || snap.Ts.IsZero() {
			return 0, storage.ErrInvalidInput
		}
	}

	defer func(start time.Time) { observe("indicator_snapshot.upsert", start, err) }(time.Now())

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO indicator_snapshot (
			instrument_id, ts, timeframe, calculated_at, params, vals, score, setup
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	now := s.now().UTC()
	for _, snap := range snapshots {
		params, err := json.Marshal(snap.Params)
		if err != nil {
			return 0, fmt.Errorf("encode params: %w", err)
		}
		values, err := json.Marshal(snap.Values)
		if err != nil {
			return 0, fmt.Errorf("encode values: %w", err)
		}

		calculatedAt := snap.CalculatedAt
		if calculatedAt.IsZero() {
			calculatedAt = now
		}

		var setup uint8
		if snap.Setup() {
			setup = 1
		}

		err = batch.Append(
			snap.InstrumentID, snap.Ts.UTC(), snap.Timeframe, calculatedAt.UTC(),
			string(params), string(values), snap.Score(), setup,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return len(snapshots), nil
}

// LatestTimestamp returns the newest snapshot ts. Returns ErrNotFound if none exists.
func (s *IndicatorSnapshotStore) LatestTimestamp(ctx context.Context, instrumentID int64, timeframe string) (time.Time, error) {
	query := `
		SELECT max(ts), count()
		FROM indicator_snapshot
		WHERE instrument_id = ? AND timeframe = ?
	`

	var (
		ts    time.Time
		count uint64
	)
	start := time.Now()
	err := s.conn.QueryRow(ctx, query, instrumentID, timeframe).Scan(&ts, &count)
	observe("indicator_snapshot.latest_ts", start, err)
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest ts: %w", err)
	}
	if count == 0 {
		return time.Time{}, storage.ErrNotFound
	}
	return ts.UTC(), nil
}

// GetLatest returns the newest snapshot. Returns ErrNotFound if none exists.
func (s *IndicatorSnapshotStore) GetLatest(ctx context.Context, instrumentID int64, timeframe string) (*domain.IndicatorSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM indicator_snapshot FINAL
		WHERE instrument_id = ? AND timeframe = ?
		ORDER BY ts DESC
		LIMIT 1
	`

	snaps, err := s.query(ctx, "indicator_snapshot.get_latest", query, instrumentID, timeframe)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// GetByTimeRange returns snapshots of all instruments within [start, end] (inclusive).
func (s *IndicatorSnapshotStore) GetByTimeRange(ctx context.Context, timeframe string, start, end time.Time) ([]*domain.IndicatorSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM indicator_snapshot FINAL
		WHERE timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY instrument_id ASC, ts ASC
	`
	return s.query(ctx, "indicator_snapshot.get_by_time_range", query, timeframe, start.UTC(), end.UTC())
}

// ListSetups returns snapshots whose newest version carries an active setup flag.
func (s *IndicatorSnapshotStore) ListSetups(ctx context.Context, timeframe string) ([]*domain.IndicatorSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM indicator_snapshot FINAL
		WHERE timeframe = ? AND setup = 1
		ORDER BY instrument_id ASC, ts ASC
	`
	return s.query(ctx, "indicator_snapshot.list_setups", query, timeframe)
}

func (s *IndicatorSnapshotStore) query(ctx context.Context, operation, query string, args ...interface{}) ([]*domain.IndicatorSnapshot, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, query, args...)
	observe(operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshots scans rows selected with snapshotColumns.
func scanSnapshots(rows chRows) ([]*domain.IndicatorSnapshot, error) {
	var snaps []*domain.IndicatorSnapshot

	for rows.Next() {
		var (
			snap           domain.IndicatorSnapshot
			params, values string
		)
		err := rows.Scan(&snap.InstrumentID, &snap.Ts, &snap.Timeframe, &snap.CalculatedAt, &params, &values)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &snap.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		if err := json.Unmarshal([]byte(values), &snap.Values); err != nil {
			return nil, fmt.Errorf("decode values: %w", err)
		}
		snap.Ts = snap.Ts.UTC()
		snap.CalculatedAt = snap.CalculatedAt.UTC()
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snaps, nil
}
