package domain

import "time"

// BreakoutCandidate is one row of the ranked breakout list.
// Transient: recomputed on every query.
type BreakoutCandidate struct {
	Rank             int       `json:"rank"`
	InstrumentID     int64     `json:"instrument_id"`
	RankScore        float64   `json:"rank_score"`
	AvgScore         float64   `json:"avg_score"`        // mean day score over the lookback, 0..1
	HighScoreDays    int       `json:"high_score_days"`  // day score >= threshold within the lookback
	RecentHighDays   int       `json:"recent_high_days"` // same, within the recent sessions
	SetupDays        int       `json:"setup_days"`       // days with any setup within the setup sessions
	AvgDailyVolume   float64   `json:"avg_daily_volume"`
	Close            float64   `json:"close"`
	BoxHigh20        float64   `json:"box_high_20"`
	BoxLow20         float64   `json:"box_low_20"`
	PctBelowHigh     float64   `json:"pct_below_high"` // (box_high - close) / box_high
	ProximityBonus   float64   `json:"proximity_bonus"`
	LatestSnapshotTs time.Time `json:"latest_snapshot_ts"`
}
