package ranking

import (
	"context"
	"math"
	"testing"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage/memory"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	return cfg
}

// sessionsFrom returns n consecutive daily sessions starting 2024-01-01.
func sessionsFrom(n int) []domain.SessionDay {
	days := make([]domain.SessionDay, n)
	for i := range days {
		days[i] = domain.SessionDay{
			Date:       time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			SessionNbr: i + 1,
		}
	}
	return days
}

func snap(id int64, day domain.SessionDay, minute int, score float64, setup bool, close, boxHigh, boxLow, volume float64) *domain.IndicatorSnapshot {
	return &domain.IndicatorSnapshot{
		InstrumentID: id,
		Ts:           day.Date.Add(10*time.Hour + time.Duration(minute)*time.Minute),
		Timeframe:    domain.TimeframeMinute,
		Values: domain.Payload{
			domain.KeyScore:   score,
			domain.KeySetup:   setup,
			domain.KeyClose:   close,
			domain.KeyBoxHigh: boxHigh,
			domain.KeyBoxLow:  boxLow,
			domain.KeyVolume:  volume,
		},
	}
}

// steady emits one snapshot per session with the same score and a final
// bar at the given close.
func steady(id int64, sessions []domain.SessionDay, score, close float64) []*domain.IndicatorSnapshot {
	var out []*domain.IndicatorSnapshot
	for _, d := range sessions {
		out = append(out, snap(id, d, 0, score, false, close, 100, 90, 1000))
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRankSnapshots_Qualifying(t *testing.T) {
	sessions := sessionsFrom(14)
	snaps := steady(1, sessions, 80, 99)

	got := RankSnapshots(testConfig(), sessions, snaps)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.Rank != 1 || c.InstrumentID != 1 {
		t.Errorf("unexpected candidate %+v", c)
	}
	if !approx(c.AvgScore, 0.80) {
		t.Errorf("expected avg 0.80, got %v", c.AvgScore)
	}
	if c.HighScoreDays != 14 || c.RecentHighDays != 3 {
		t.Errorf("expected 14/3 high days, got %d/%d", c.HighScoreDays, c.RecentHighDays)
	}
	if !approx(c.PctBelowHigh, 0.01) {
		t.Errorf("expected pct below 0.01, got %v", c.PctBelowHigh)
	}
	if !approx(c.ProximityBonus, 0.5) {
		t.Errorf("expected bonus 0.5, got %v", c.ProximityBonus)
	}
	want := 0.6*0.80 + 0.2*1 + 0.2*0.5
	if !approx(c.RankScore, want) {
		t.Errorf("expected rank score %v, got %v", want, c.RankScore)
	}
	if !approx(c.AvgDailyVolume, 1000) {
		t.Errorf("expected avg volume 1000, got %v", c.AvgDailyVolume)
	}
}

func TestRankSnapshots_NeverIncludesBrokenOut(t *testing.T) {
	sessions := sessionsFrom(14)
	var snaps []*domain.IndicatorSnapshot
	snaps = append(snaps, steady(1, sessions, 90, 100)...) // close == box high
	snaps = append(snaps, steady(2, sessions, 90, 101)...) // close above box high

	if got := RankSnapshots(testConfig(), sessions, snaps); len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestRankSnapshots_Filters(t *testing.T) {
	sessions := sessionsFrom(14)

	tests := []struct {
		name  string
		snaps []*domain.IndicatorSnapshot
	}{
		{"low average", steady(1, sessions, 60, 99)},
		{"lower half of box", steady(1, sessions, 90, 94)},
		{"too far below high", steady(1, sessions, 90, 97)},
		{"recent days weak", func() []*domain.IndicatorSnapshot {
			var out []*domain.IndicatorSnapshot
			for i, d := range sessions {
				score := 95.0
				if i >= 12 {
					score = 50
				}
				out = append(out, snap(1, d, 0, score, false, 99, 100, 90, 1))
			}
			return out
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RankSnapshots(testConfig(), sessions, tt.snaps); len(got) != 0 {
				t.Errorf("expected no candidates, got %+v", got)
			}
		})
	}
}

func TestRankSnapshots_DayScoreIsMeanOfBars(t *testing.T) {
	sessions := sessionsFrom(3)
	var snaps []*domain.IndicatorSnapshot
	for _, d := range sessions {
		snaps = append(snaps,
			snap(1, d, 0, 60, false, 99, 100, 90, 10),
			snap(1, d, 1, 80, true, 99.5, 100, 90, 30),
		)
	}

	got := RankSnapshots(testConfig(), sessions, snaps)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if !approx(c.AvgScore, 0.70) {
		t.Errorf("expected avg 0.70, got %v", c.AvgScore)
	}
	if c.RecentHighDays != 3 || c.SetupDays != 3 {
		t.Errorf("expected 3 high and 3 setup days, got %d/%d", c.RecentHighDays, c.SetupDays)
	}
	if !approx(c.AvgDailyVolume, 40) {
		t.Errorf("expected daily volume 40, got %v", c.AvgDailyVolume)
	}
	if !approx(c.Close, 99.5) {
		t.Errorf("expected latest close 99.5, got %v", c.Close)
	}
}

func TestRankSnapshots_IgnoresNonSessionDates(t *testing.T) {
	sessions := sessionsFrom(3)
	snaps := steady(1, sessions, 80, 99)
	dropped := domain.SessionDay{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	// Drop session 2 from the calendar; its bars must not count.
	cal := []domain.SessionDay{sessions[0], sessions[2]}
	snaps = append(snaps, snap(1, dropped, 5, 0, false, 99, 100, 90, 1))

	got := RankSnapshots(testConfig(), cal, snaps)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].HighScoreDays != 2 || !approx(got[0].AvgScore, 0.80) {
		t.Errorf("non-session bars counted: %+v", got[0])
	}
}

func TestRankSnapshots_Ordering(t *testing.T) {
	sessions := sessionsFrom(14)
	var snaps []*domain.IndicatorSnapshot
	snaps = append(snaps, steady(1, sessions, 80, 99)...)
	snaps = append(snaps, steady(2, sessions, 90, 99)...)
	snaps = append(snaps, steady(3, sessions, 80, 99.5)...)

	got := RankSnapshots(testConfig(), sessions, snaps)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	order := []int64{got[0].InstrumentID, got[1].InstrumentID, got[2].InstrumentID}
	if order[0] != 2 || order[1] != 3 || order[2] != 1 {
		t.Errorf("unexpected order %v", order)
	}
	for i, c := range got {
		if c.Rank != i+1 {
			t.Errorf("candidate %d: expected rank %d, got %d", c.InstrumentID, i+1, c.Rank)
		}
	}
}

func TestRankSnapshots_TieBreaksByPctBelow(t *testing.T) {
	sessions := sessionsFrom(14)
	cfg := testConfig()
	cfg.ProximityWeight = 0
	var snaps []*domain.IndicatorSnapshot
	snaps = append(snaps, steady(1, sessions, 80, 98.5)...)
	snaps = append(snaps, steady(2, sessions, 80, 99.5)...)

	got := RankSnapshots(cfg, sessions, snaps)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].InstrumentID != 2 {
		t.Errorf("expected closer instrument first, got %d", got[0].InstrumentID)
	}
}

func TestProximityBonus(t *testing.T) {
	tests := []struct {
		pct, want float64
	}{
		{0, 1},
		{0.01, 0.5},
		{0.02, 0},
		{0.05, 0},
		{-0.01, 1},
	}
	for _, tt := range tests {
		if got := proximityBonus(tt.pct, 0.02); !approx(got, tt.want) {
			t.Errorf("proximityBonus(%v) = %v, want %v", tt.pct, got, tt.want)
		}
	}
}

func TestRanker_Rank_FromStores(t *testing.T) {
	ctx := context.Background()
	calendar := memory.NewSessionCalendarStore()
	snapshots := memory.NewIndicatorSnapshotStore()

	sessions := sessionsFrom(16)
	if err := calendar.InsertBulk(ctx, sessions); err != nil {
		t.Fatalf("insert calendar: %v", err)
	}
	// Strong history early, weak in the last two sessions.
	var snaps []*domain.IndicatorSnapshot
	for i, d := range sessions {
		score := 90.0
		if i >= 14 {
			score = 10
		}
		snaps = append(snaps, snap(1, d, 0, score, false, 99, 100, 90, 1))
	}
	if _, err := snapshots.Upsert(ctx, snaps); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	r := NewRanker(calendar, snapshots, testConfig())

	// As of session 14 the instrument qualifies.
	got, err := r.Rank(ctx, sessions[13].Date)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate as of session 14, got %d", len(got))
	}

	// As of session 16 the recent sessions are weak.
	got, err = r.Rank(ctx, sessions[15].Date)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates as of session 16, got %+v", got)
	}
}

func TestRanker_Rank_EmptyCalendar(t *testing.T) {
	r := NewRanker(memory.NewSessionCalendarStore(), memory.NewIndicatorSnapshotStore(), testConfig())
	got, err := r.Rank(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}
