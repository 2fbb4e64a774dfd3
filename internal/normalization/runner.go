package normalization

import (
	"context"
	"fmt"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// Loader reads quotes from storage and normalizes them to minute candles.
type Loader struct {
	quoteStore storage.QuoteStore
	grain      string
}

// NewLoader creates a loader for the minute grain.
func NewLoader(quoteStore storage.QuoteStore) *Loader {
	return &Loader{quoteStore: quoteStore, grain: domain.GrainMinute}
}

// Instruments lists instruments that have quotes of the loader's grain.
func (l *Loader) Instruments(ctx context.Context) ([]int64, error) {
	ids, err := l.quoteStore.ListInstruments(ctx, l.grain)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return ids, nil
}

// Load returns the full candle history of one instrument.
func (l *Loader) Load(ctx context.Context, instrumentID int64) ([]domain.Candle, error) {
	quotes, err := l.quoteStore.GetByInstrument(ctx, instrumentID, l.grain)
	if err != nil {
		return nil, fmt.Errorf("load quotes for %d: %w", instrumentID, err)
	}
	return Normalize(quotes, l.grain), nil
}

// LoadTail returns candles after the watermark plus up to warmup candles
// at or before it, so that rolling windows over the new candles see the
// same history as a full recomputation would.
func (l *Loader) LoadTail(ctx context.Context, instrumentID int64, after time.Time, warmup int) ([]domain.Candle, error) {
	quotes, err := l.quoteStore.GetTail(ctx, instrumentID, l.grain, after, warmup)
	if err != nil {
		return nil, fmt.Errorf("load quote tail for %d: %w", instrumentID, err)
	}
	return Normalize(quotes, l.grain), nil
}
