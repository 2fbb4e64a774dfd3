// Package ranking ranks instruments by recent accumulation strength and
// proximity to their box high.
package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// Config holds ranking thresholds and weights.
type Config struct {
	LookbackSessions int     // sessions averaged (14)
	RecentSessions   int     // sessions checked for recent high-score days (3)
	SetupSessions    int     // sessions checked for setup days (7)
	HighScoreDay     float64 // day score counted as high (0.70)
	MinAvgScore      float64 // minimum lookback average (0.65)
	MinRecentHigh    int     // minimum high days within the recent sessions (2)
	MaxPctBelowHigh  float64 // maximum distance under the box high (0.02)

	AvgWeight       float64
	RecentWeight    float64
	ProximityWeight float64

	Timeframe string
	Location  *time.Location // market timezone used to assign bars to dates
}

// DefaultConfig returns the standard ranking configuration.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		LookbackSessions: 14,
		RecentSessions:   3,
		SetupSessions:    7,
		HighScoreDay:     0.70,
		MinAvgScore:      0.65,
		MinRecentHigh:    2,
		MaxPctBelowHigh:  0.02,
		AvgWeight:        0.6,
		RecentWeight:     0.2,
		ProximityWeight:  0.2,
		Timeframe:        domain.TimeframeMinute,
		Location:         loc,
	}
}

// Ranker builds the breakout candidate list from persisted snapshots.
type Ranker struct {
	calendarStore storage.SessionCalendarStore
	snapshotStore storage.IndicatorSnapshotStore
	cfg           Config
}

// NewRanker creates a new Ranker.
func NewRanker(calendarStore storage.SessionCalendarStore, snapshotStore storage.IndicatorSnapshotStore, cfg Config) *Ranker {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ranker{
		calendarStore: calendarStore,
		snapshotStore: snapshotStore,
		cfg:           cfg,
	}
}

// Rank returns candidates for the sessions up to and including asOf's date.
func (r *Ranker) Rank(ctx context.Context, asOf time.Time) ([]domain.BreakoutCandidate, error) {
	sessions, err := r.calendarStore.GetRecent(ctx, asOf, r.cfg.LookbackSessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	start := localMidnight(sessions[0].Date, r.cfg.Location)
	end := localMidnight(sessions[len(sessions)-1].Date, r.cfg.Location).AddDate(0, 0, 1).Add(-time.Nanosecond)

	snaps, err := r.snapshotStore.GetByTimeRange(ctx, r.cfg.Timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	return RankSnapshots(r.cfg, sessions, snaps), nil
}

// dayStats aggregates one instrument's snapshots on one session date.
type dayStats struct {
	scoreSum float64
	count    int
	setup    bool
	volume   float64
}

func (d *dayStats) score() float64 {
	return d.scoreSum / float64(d.count) / 100
}

type instrumentStats struct {
	days   map[string]*dayStats
	latest *domain.IndicatorSnapshot
}

// RankSnapshots ranks snapshots restricted to the given sessions, which must
// be ordered by date ascending. Snapshots on non-session dates are ignored.
func RankSnapshots(cfg Config, sessions []domain.SessionDay, snaps []*domain.IndicatorSnapshot) []domain.BreakoutCandidate {
	if len(sessions) == 0 {
		return nil
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	sessionIndex := make(map[string]int, len(sessions))
	for i, s := range sessions {
		sessionIndex[s.DateKey()] = i
	}
	recentFrom := len(sessions) - cfg.RecentSessions
	setupFrom := len(sessions) - cfg.SetupSessions

	byInstrument := make(map[int64]*instrumentStats)
	for _, s := range snaps {
		key := s.Ts.In(loc).Format(domain.DateLayout)
		if _, ok := sessionIndex[key]; !ok {
			continue
		}
		score, ok := s.Values.Number(domain.KeyScore)
		if !ok || math.IsNaN(score) {
			continue
		}

		st := byInstrument[s.InstrumentID]
		if st == nil {
			st = &instrumentStats{days: make(map[string]*dayStats)}
			byInstrument[s.InstrumentID] = st
		}
		day := st.days[key]
		if day == nil {
			day = &dayStats{}
			st.days[key] = day
		}
		day.scoreSum += score
		day.count++
		day.setup = day.setup || s.Setup()
		if v, ok := s.Values.Number(domain.KeyVolume); ok {
			day.volume += v
		}
		if st.latest == nil || s.Ts.After(st.latest.Ts) {
			st.latest = s
		}
	}

	var out []domain.BreakoutCandidate
	for id, st := range byInstrument {
		c := domain.BreakoutCandidate{
			InstrumentID:     id,
			LatestSnapshotTs: st.latest.Ts,
		}

		var scoreSum, volSum float64
		for key, day := range st.days {
			ds := day.score()
			scoreSum += ds
			volSum += day.volume
			idx := sessionIndex[key]
			if ds >= cfg.HighScoreDay {
				c.HighScoreDays++
				if idx >= recentFrom {
					c.RecentHighDays++
				}
			}
			if day.setup && idx >= setupFrom {
				c.SetupDays++
			}
		}
		c.AvgScore = scoreSum / float64(len(st.days))
		c.AvgDailyVolume = volSum / float64(len(st.days))

		c.Close, _ = st.latest.Values.Number(domain.KeyClose)
		c.BoxHigh20, _ = st.latest.Values.Number(domain.KeyBoxHigh)
		c.BoxLow20, _ = st.latest.Values.Number(domain.KeyBoxLow)
		if c.BoxHigh20 <= 0 {
			continue
		}
		c.PctBelowHigh = (c.BoxHigh20 - c.Close) / c.BoxHigh20
		c.ProximityBonus = proximityBonus(c.PctBelowHigh, cfg.MaxPctBelowHigh)

		recentFrac := 0.0
		if cfg.RecentSessions > 0 {
			recentFrac = float64(c.RecentHighDays) / float64(cfg.RecentSessions)
		}
		c.RankScore = cfg.AvgWeight*c.AvgScore + cfg.RecentWeight*recentFrac + cfg.ProximityWeight*c.ProximityBonus

		if !qualifies(cfg, c) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		if a.AvgScore != b.AvgScore {
			return a.AvgScore > b.AvgScore
		}
		if a.PctBelowHigh != b.PctBelowHigh {
			return a.PctBelowHigh < b.PctBelowHigh
		}
		return a.InstrumentID < b.InstrumentID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// qualifies applies the candidate filters. A close at or above the box high
// is a breakout that already happened and never qualifies.
func qualifies(cfg Config, c domain.BreakoutCandidate) bool {
	mid := (c.BoxHigh20 + c.BoxLow20) / 2
	return c.AvgScore >= cfg.MinAvgScore &&
		c.RecentHighDays >= cfg.MinRecentHigh &&
		c.Close > mid &&
		c.Close < c.BoxHigh20 &&
		c.PctBelowHigh <= cfg.MaxPctBelowHigh
}

// proximityBonus is 1 at the box high, falling linearly to 0 at maxPct below it.
func proximityBonus(pctBelow, maxPct float64) float64 {
	if maxPct <= 0 {
		return 0
	}
	v := 1 - pctBelow/maxPct
	return math.Max(0, math.Min(1, v))
}

func localMidnight(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}
