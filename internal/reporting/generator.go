package reporting

import (
	"context"
	"fmt"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/query"
)

// Source provides the data a report is built from.
type Source interface {
	Candidates(ctx context.Context, asOf time.Time) ([]domain.BreakoutCandidate, error)
	SetupProfile(ctx context.Context) ([]query.SetupProfile, error)
	Runs(ctx context.Context, limit int) ([]*domain.RunLogEntry, error)
}

// Generator produces reports from stored data.
type Generator struct {
	source Source
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source Source) *Generator {
	return &Generator{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report for the sessions up to asOf.
func (g *Generator) Generate(ctx context.Context, asOf time.Time) (*Report, error) {
	candidates, err := g.source.Candidates(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	profile, err := g.source.SetupProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup profile: %w", err)
	}

	runs, err := g.source.Runs(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	var latest *domain.RunLogEntry
	if len(runs) > 0 {
		latest = runs[0]
	}

	return &Report{
		GeneratedAt:  g.now(),
		AsOf:         asOf,
		LatestRun:    latest,
		Candidates:   candidates,
		SetupProfile: profile,
	}, nil
}
