package importer

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"accumulation-lab/internal/storage"
)

// DefaultBatchSize is the number of quotes inserted per InsertBulk call.
const DefaultBatchSize = 5000

// Importer writes parsed CSV data to storage.
type Importer struct {
	quoteStore    storage.QuoteStore
	calendarStore storage.SessionCalendarStore
	batchSize     int
	logger        *zap.Logger
}

// New creates an Importer. batchSize <= 0 uses DefaultBatchSize.
func New(quoteStore storage.QuoteStore, calendarStore storage.SessionCalendarStore, batchSize int, logger *zap.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		quoteStore:    quoteStore,
		calendarStore: calendarStore,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// ImportQuotes parses the whole file before writing anything, then inserts
// in batches. Each batch is atomic; a failing batch stops the import and
// the count of quotes already written is returned with the error.
func (im *Importer) ImportQuotes(ctx context.Context, r io.Reader) (int, error) {
	quotes, err := ReadQuotes(r)
	if err != nil {
		return 0, fmt.Errorf("read quotes: %w", err)
	}

	written := 0
	for start := 0; start < len(quotes); start += im.batchSize {
		end := min(start+im.batchSize, len(quotes))
		if err := im.quoteStore.InsertBulk(ctx, quotes[start:end]); err != nil {
			return written, fmt.Errorf("insert quotes %d-%d: %w", start, end-1, err)
		}
		written = end
		im.logger.Debug("quote batch inserted", zap.Int("rows", end-start), zap.Int("total", written))
	}

	im.logger.Info("quotes imported", zap.Int("rows", written))
	return written, nil
}

// ImportCalendar parses and inserts a session calendar atomically.
func (im *Importer) ImportCalendar(ctx context.Context, r io.Reader) (int, error) {
	days, err := ReadCalendar(r)
	if err != nil {
		return 0, fmt.Errorf("read calendar: %w", err)
	}
	if err := im.calendarStore.InsertBulk(ctx, days); err != nil {
		return 0, fmt.Errorf("insert calendar: %w", err)
	}

	im.logger.Info("session calendar imported", zap.Int("rows", len(days)))
	return len(days), nil
}
