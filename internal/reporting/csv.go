package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders breakout candidates as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("rank,instrument_id,rank_score,avg_score,high_score_days,recent_high_days,setup_days,")
	sb.WriteString("close,box_high_20,box_low_20,pct_below_high,proximity_bonus,")
	sb.WriteString("avg_daily_volume,latest_snapshot_ts\n")

	// Rows
	for _, c := range r.Candidates {
		sb.WriteString(fmt.Sprintf("%d,%d,%.6f,%.6f,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.2f,%s\n",
			c.Rank,
			c.InstrumentID,
			c.RankScore,
			c.AvgScore,
			c.HighScoreDays,
			c.RecentHighDays,
			c.SetupDays,
			c.Close,
			c.BoxHigh20,
			c.BoxLow20,
			c.PctBelowHigh,
			c.ProximityBonus,
			c.AvgDailyVolume,
			c.LatestSnapshotTs.UTC().Format("2006-01-02T15:04:05Z"),
		))
	}

	return sb.String()
}
