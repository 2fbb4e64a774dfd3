// Package snapshot materializes accumulation scores into indicator_snapshot.
// It coordinates: watermark lookup → candle load → aggregation → scoring → upsert → run log
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/features"
	"accumulation-lab/internal/normalization"
	"accumulation-lab/internal/observability"
	"accumulation-lab/internal/scoring"
	"accumulation-lab/internal/storage"
)

// Warmup is the number of already-scored bars reloaded before the watermark.
// The deepest dependency chain (20-bar box feeding a 20-bar spread/ratio
// window) spans 40 bars, so 60 reproduces full-history values exactly.
const Warmup = 60

// Materializer computes and persists snapshots for newly available bars.
type Materializer struct {
	loader        *normalization.Loader
	snapshotStore storage.IndicatorSnapshotStore
	runLogStore   storage.RunLogStore

	weights     scoring.Weights
	timeframe   string
	parallelism int
	full        bool
	clock       func() time.Time
	onSuccess   func(ctx context.Context, result *RunResult)
	logger      *zap.Logger
}

// Options for creating Materializer.
type Options struct {
	// Required stores
	QuoteStore    storage.QuoteStore
	SnapshotStore storage.IndicatorSnapshotStore
	RunLogStore   storage.RunLogStore

	// Scoring
	Weights *scoring.Weights // nil = DefaultWeights

	// Options
	Parallelism int  // instruments scored concurrently, default 1
	Full        bool // ignore watermarks and rescore all history
	Clock       func() time.Time
	OnSuccess   func(ctx context.Context, result *RunResult) // e.g. cache invalidation
	Logger      *zap.Logger
}

// New creates a new Materializer.
func New(opts Options) *Materializer {
	weights := scoring.DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Materializer{
		loader:        normalization.NewLoader(opts.QuoteStore),
		snapshotStore: opts.SnapshotStore,
		runLogStore:   opts.RunLogStore,
		weights:       weights,
		timeframe:     domain.TimeframeMinute,
		parallelism:   parallelism,
		full:          opts.Full,
		clock:         clock,
		onSuccess:     opts.OnSuccess,
		logger:        logger,
	}
}

// RunResult contains results from one materializer run.
type RunResult struct {
	RunID        uuid.UUID        `json:"run_id"`
	RowsAffected int              `json:"rows_affected"`
	Instruments  int              `json:"instruments"`
	Status       domain.RunStatus `json:"status"`
	Message      string           `json:"message"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Success reports whether the run committed.
func (r *RunResult) Success() bool {
	return r.Status == domain.RunStatusSuccess
}

// Run executes one materialization pass.
// Phases:
//  1. List instruments
//  2. Per instrument: watermark, load tail, aggregate, score, collect new rows
//  3. Upsert all rows atomically
//  4. Append run log entry
//
// Any error in phases 1-3 aborts the run without persisting snapshots; a
// failed run log entry is still appended and the error is returned.
func (m *Materializer) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New(),
		StartedAt: m.clock().UTC(),
	}
	logger := m.logger.With(zap.String("run_id", result.RunID.String()))
	logger.Info("materializer run started", zap.Bool("full", m.full))

	rows, instruments, err := m.materialize(ctx, logger)
	result.FinishedAt = m.clock().UTC()
	result.Instruments = instruments

	if err != nil {
		result.Status = domain.RunStatusFailed
		result.Message = err.Error()
		logger.Error("materializer run failed", zap.Error(err))
		m.recordRun(ctx, logger, result)
		return result, err
	}

	result.Status = domain.RunStatusSuccess
	result.RowsAffected = rows
	result.Message = fmt.Sprintf("upserted %d snapshots for %d instruments", rows, instruments)
	if err := m.recordRun(ctx, logger, result); err != nil {
		return result, err
	}

	logger.Info("materializer run completed",
		zap.Int("rows", rows),
		zap.Int("instruments", instruments),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))

	if m.onSuccess != nil {
		m.onSuccess(ctx, result)
	}
	return result, nil
}

// materialize computes every new row and upserts them in one call.
func (m *Materializer) materialize(ctx context.Context, logger *zap.Logger) (int, int, error) {
	ids, err := m.loader.Instruments(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("phase 1 (list instruments) failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}

	calculatedAt := m.clock().UTC()
	perInstrument := make([][]*domain.IndicatorSnapshot, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			snaps, err := m.scoreInstrument(gctx, id, calculatedAt)
			if err != nil {
				return fmt.Errorf("instrument %d: %w", id, err)
			}
			perInstrument[i] = snaps
			logger.Debug("instrument scored",
				zap.Int64("instrument_id", id),
				zap.Int("rows", len(snaps)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, len(ids), fmt.Errorf("phase 2 (score) failed: %w", err)
	}

	var all []*domain.IndicatorSnapshot
	for _, snaps := range perInstrument {
		all = append(all, snaps...)
	}

	rows, err := m.snapshotStore.Upsert(ctx, all)
	if err != nil {
		return 0, len(ids), fmt.Errorf("phase 3 (upsert) failed: %w", err)
	}
	return rows, len(ids), nil
}

// scoreInstrument returns snapshots for bars past the instrument's watermark.
func (m *Materializer) scoreInstrument(ctx context.Context, instrumentID int64, calculatedAt time.Time) ([]*domain.IndicatorSnapshot, error) {
	var (
		watermark    time.Time
		hasWatermark bool
	)
	if !m.full {
		ts, err := m.snapshotStore.LatestTimestamp(ctx, instrumentID, m.timeframe)
		switch {
		case err == nil:
			watermark, hasWatermark = ts, true
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("watermark: %w", err)
		}
	}

	var (
		candles []domain.Candle
		err     error
	)
	if hasWatermark {
		candles, err = m.loader.LoadTail(ctx, instrumentID, watermark, Warmup)
	} else {
		candles, err = m.loader.Load(ctx, instrumentID)
	}
	if err != nil {
		return nil, err
	}

	rows := scoring.ScoreWith(m.weights, features.Compute(candles))

	params := m.weights.Params()
	var out []*domain.IndicatorSnapshot
	for _, r := range rows {
		if hasWatermark && !r.Ts.After(watermark) {
			continue
		}
		snap := &domain.IndicatorSnapshot{
			InstrumentID: r.InstrumentID,
			Ts:           r.Ts,
			Timeframe:    m.timeframe,
			CalculatedAt: calculatedAt,
			Params:       params.Clone(),
			Values:       scoring.Values(r),
		}
		// Rows are ordered by (ts, raw_ts); the last bar of a shared ts owns the key.
		if n := len(out); n > 0 && out[n-1].Ts.Equal(r.Ts) {
			out[n-1] = snap
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// recordRun appends the run log entry and records metrics.
func (m *Materializer) recordRun(ctx context.Context, logger *zap.Logger, result *RunResult) error {
	observability.RecordMaterializerRun(string(result.Status), result.RowsAffected, result.Instruments,
		result.FinishedAt.Sub(result.StartedAt))

	entry := &domain.RunLogEntry{
		RunID:        result.RunID,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
		RowsInserted: result.RowsAffected,
		Status:       result.Status,
		Message:      result.Message,
	}
	// A cancelled run still gets its failure entry.
	if err := m.runLogStore.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("append run log failed", zap.Error(err))
		return fmt.Errorf("phase 4 (run log) failed: %w", err)
	}
	return nil
}
