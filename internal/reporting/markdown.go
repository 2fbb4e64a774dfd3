package reporting

import (
	"fmt"
	"strings"
	"time"

	"accumulation-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Breakout Candidates\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("As of: %s | Candidates: %d\n\n", r.AsOf.Format(domain.DateLayout), len(r.Candidates)))

	// Latest run
	sb.WriteString("## Latest Materializer Run\n\n")
	if r.LatestRun != nil {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.LatestRun.Status))
		sb.WriteString(fmt.Sprintf("| Rows | %d |\n", r.LatestRun.RowsInserted))
		sb.WriteString(fmt.Sprintf("| Started | %s |\n", r.LatestRun.StartedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| Finished | %s |\n", r.LatestRun.FinishedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("| Message | %s |\n", escapeCell(r.LatestRun.Message)))
	} else {
		sb.WriteString("No materializer runs recorded.\n")
	}
	sb.WriteString("\n")

	// Candidates
	sb.WriteString("## Candidates\n\n")
	sb.WriteString(RenderCandidatesTable(r.Candidates))
	sb.WriteString("\n")

	// Setup profile
	sb.WriteString("## Setup Profile\n\n")
	if len(r.SetupProfile) > 0 {
		sb.WriteString("| Instrument | Latest Setup | Score | Setup Bars |\n")
		sb.WriteString("|------------|--------------|-------|------------|\n")
		for _, p := range r.SetupProfile {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.2f | %d |\n",
				p.InstrumentID, p.LatestSetupTs.Format(time.RFC3339), p.LatestScore, p.SetupBars))
		}
	} else {
		sb.WriteString("No setups recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderCandidatesTable renders candidates as a Markdown table.
func RenderCandidatesTable(candidates []domain.BreakoutCandidate) string {
	if len(candidates) == 0 {
		return "No breakout candidates.\n"
	}

	var sb strings.Builder
	sb.WriteString("| Rank | Instrument | RankScore | AvgScore | HighDays | RecentHigh | SetupDays | Close | BoxHigh | BoxLow | PctBelow | AvgVolume |\n")
	sb.WriteString("|------|------------|-----------|----------|----------|------------|-----------|-------|---------|--------|----------|-----------|\n")
	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("| %d | %d | %.4f | %.4f | %d | %d | %d | %.4f | %.4f | %.4f | %.2f%% | %.0f |\n",
			c.Rank, c.InstrumentID, c.RankScore, c.AvgScore,
			c.HighScoreDays, c.RecentHighDays, c.SetupDays,
			c.Close, c.BoxHigh20, c.BoxLow20, c.PctBelowHigh*100, c.AvgDailyVolume))
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
