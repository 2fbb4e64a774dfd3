// Package query serves read-only views over persisted snapshots and
// recomputed rolling features.
package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/features"
	"accumulation-lab/internal/indicators"
	"accumulation-lab/internal/normalization"
	"accumulation-lab/internal/observability"
	"accumulation-lab/internal/ranking"
	"accumulation-lab/internal/scoring"
	"accumulation-lab/internal/storage"
)

// CandidateCache caches ranked candidate lists by as-of date.
type CandidateCache interface {
	Get(ctx context.Context, asOf time.Time) ([]domain.BreakoutCandidate, bool)
	Set(ctx context.Context, asOf time.Time, candidates []domain.BreakoutCandidate) error
	Invalidate(ctx context.Context) error
}

// ScoreView is the latest persisted score of an instrument.
type ScoreView struct {
	InstrumentID int64     `json:"instrument_id"`
	Ts           time.Time `json:"ts"`
	CalculatedAt time.Time `json:"calculated_at"`
	Score        float64   `json:"hidden_accum_score"`
	Setup        bool      `json:"hidden_accum_setup"`
	C1           float64   `json:"c1_vol_compression"`
	C2           float64   `json:"c2_updown_volume"`
	C3           float64   `json:"c3_money_flow"`
	C4           float64   `json:"c4_no_supply"`
	C5           float64   `json:"c5_spring"`
	Close        float64   `json:"close"`
	BoxHigh20    float64   `json:"box_high_20"`
	BoxLow20     float64   `json:"box_low_20"`
}

// FeatureRow is one bar of the rolling features view.
type FeatureRow struct {
	domain.AccumRow
	Reference indicators.Reference `json:"reference"`
}

// SetupPoint is a bar with an active setup.
type SetupPoint struct {
	InstrumentID int64     `json:"instrument_id"`
	Ts           time.Time `json:"ts"`
	Score        float64   `json:"score"`
}

// SetupProfile summarizes an instrument's setup history.
type SetupProfile struct {
	InstrumentID  int64     `json:"instrument_id"`
	LatestSetupTs time.Time `json:"latest_setup_ts"`
	LatestScore   float64   `json:"latest_score"`
	SetupBars     int       `json:"setup_bars"`
}

// Service answers read-only queries.
type Service struct {
	loader        *normalization.Loader
	snapshotStore storage.IndicatorSnapshotStore
	runLogStore   storage.RunLogStore
	ranker        *ranking.Ranker
	cache         CandidateCache
	timeframe     string
	logger        *zap.Logger
}

// Options for creating Service.
type Options struct {
	QuoteStore    storage.QuoteStore
	SnapshotStore storage.IndicatorSnapshotStore
	CalendarStore storage.SessionCalendarStore
	RunLogStore   storage.RunLogStore
	Ranking       ranking.Config
	Cache         CandidateCache // optional
	Logger        *zap.Logger
}

// NewService creates a new query Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeframe := opts.Ranking.Timeframe
	if timeframe == "" {
		timeframe = domain.TimeframeMinute
	}
	return &Service{
		loader:        normalization.NewLoader(opts.QuoteStore),
		snapshotStore: opts.SnapshotStore,
		runLogStore:   opts.RunLogStore,
		ranker:        ranking.NewRanker(opts.CalendarStore, opts.SnapshotStore, opts.Ranking),
		cache:         opts.Cache,
		timeframe:     timeframe,
		logger:        logger,
	}
}

// Candidates returns the ranked breakout list as of the given date.
func (s *Service) Candidates(ctx context.Context, asOf time.Time) ([]domain.BreakoutCandidate, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, asOf); ok {
			return cached, nil
		}
	}

	candidates, err := s.ranker.Rank(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	if candidates == nil {
		candidates = []domain.BreakoutCandidate{}
	}
	observability.RecordCandidates(len(candidates))

	if s.cache != nil {
		if err := s.cache.Set(ctx, asOf, candidates); err != nil {
			s.logger.Warn("cache candidates failed", zap.Error(err))
		}
	}
	return candidates, nil
}

// InvalidateCandidates drops cached candidate lists.
func (s *Service) InvalidateCandidates(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate candidate cache failed", zap.Error(err))
	}
}

// LatestScore returns the newest snapshot of an instrument.
// Returns storage.ErrNotFound if the instrument has none.
func (s *Service) LatestScore(ctx context.Context, instrumentID int64) (*ScoreView, error) {
	snap, err := s.snapshotStore.GetLatest(ctx, instrumentID, s.timeframe)
	if err != nil {
		return nil, err
	}

	num := func(key string) float64 {
		v, _ := snap.Values.Number(key)
		return v
	}
	return &ScoreView{
		InstrumentID: snap.InstrumentID,
		Ts:           snap.Ts,
		CalculatedAt: snap.CalculatedAt,
		Score:        round2(snap.Score()),
		Setup:        snap.Setup(),
		C1:           num(domain.KeyC1),
		C2:           num(domain.KeyC2),
		C3:           num(domain.KeyC3),
		C4:           num(domain.KeyC4),
		C5:           num(domain.KeyC5),
		Close:        num(domain.KeyClose),
		BoxHigh20:    num(domain.KeyBoxHigh),
		BoxLow20:     num(domain.KeyBoxLow),
	}, nil
}

// RollingFeatures recomputes the instrument's full history and returns the
// last limit rows (all rows when limit <= 0).
func (s *Service) RollingFeatures(ctx context.Context, instrumentID int64, limit int) ([]FeatureRow, error) {
	candles, err := s.loader.Load(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	rows := scoring.Score(features.Compute(candles))
	refs := indicators.Compute(candles)

	start := 0
	if limit > 0 && len(rows) > limit {
		start = len(rows) - limit
	}
	out := make([]FeatureRow, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		out = append(out, FeatureRow{AccumRow: rows[i], Reference: refs[i]})
	}
	return out, nil
}

// SetupPoints returns every persisted bar with an active setup.
func (s *Service) SetupPoints(ctx context.Context) ([]SetupPoint, error) {
	snaps, err := s.snapshotStore.ListSetups(ctx, s.timeframe)
	if err != nil {
		return nil, fmt.Errorf("list setups: %w", err)
	}

	out := make([]SetupPoint, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, SetupPoint{
			InstrumentID: snap.InstrumentID,
			Ts:           snap.Ts,
			Score:        round2(snap.Score()),
		})
	}
	return out, nil
}

// SetupProfile returns, per instrument, its latest setup bar and setup count.
func (s *Service) SetupProfile(ctx context.Context) ([]SetupProfile, error) {
	snaps, err := s.snapshotStore.ListSetups(ctx, s.timeframe)
	if err != nil {
		return nil, fmt.Errorf("list setups: %w", err)
	}

	// snaps are ordered by (instrument_id, ts).
	var out []SetupProfile
	for _, snap := range snaps {
		n := len(out)
		if n == 0 || out[n-1].InstrumentID != snap.InstrumentID {
			out = append(out, SetupProfile{InstrumentID: snap.InstrumentID})
			n++
		}
		p := &out[n-1]
		p.SetupBars++
		p.LatestSetupTs = snap.Ts
		p.LatestScore = round2(snap.Score())
	}
	if out == nil {
		out = []SetupProfile{}
	}
	return out, nil
}

// Runs returns up to limit run log entries, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]*domain.RunLogEntry, error) {
	entries, err := s.runLogStore.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if entries == nil {
		entries = []*domain.RunLogEntry{}
	}
	return entries, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
