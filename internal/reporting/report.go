package reporting

import (
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/query"
)

// Report represents the breakout candidate report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	AsOf        time.Time

	// Latest materializer run (nil if none recorded)
	LatestRun *domain.RunLogEntry

	// Candidates (sorted by rank)
	Candidates []domain.BreakoutCandidate

	// Setup profile (sorted by instrument_id)
	SetupProfile []query.SetupProfile
}
