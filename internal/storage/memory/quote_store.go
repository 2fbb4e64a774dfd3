package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// QuoteStore is an in-memory implementation of storage.QuoteStore.
type QuoteStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Quote // keyed by (instrument_id, raw_ts)
}

// NewQuoteStore creates a new in-memory quote store.
func NewQuoteStore() *QuoteStore {
	return &QuoteStore{
		data: make(map[string]*domain.Quote),
	}
}

// quoteKey generates a unique key for a quote.
func quoteKey(instrumentID, rawTs int64) string {
	return fmt.Sprintf("%d|%d", instrumentID, rawTs)
}

// copyQuote returns a copy that shares no pointers with q.
func copyQuote(q *domain.Quote) *domain.Quote {
	c := *q
	if q.Ts != nil {
		ts := *q.Ts
		c.Ts = &ts
	}
	return &c
}

// InsertBulk adds multiple quotes atomically. Fails entire batch on any duplicate.
func (s *QuoteStore) InsertBulk(_ context.Context, quotes []*domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(quotes))

	// First pass: check for duplicates (existing + intra-batch)
	for _, q := range quotes {
		if q == nil || q.InstrumentID == 0 || q.Grain == "" {
			return storage.ErrInvalidInput
		}
		key := quoteKey(q.InstrumentID, q.RawTs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, q := range quotes {
		s.data[quoteKey(q.InstrumentID, q.RawTs)] = copyQuote(q)
	}

	return nil
}

// GetByInstrument retrieves all timestamped quotes of an instrument and grain, ordered by (ts, raw_ts) ASC.
func (s *QuoteStore) GetByInstrument(_ context.Context, instrumentID int64, grain string) ([]*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectSorted(instrumentID, grain), nil
}

// GetTail retrieves quotes after the watermark plus up to warmup quotes before it.
func (s *QuoteStore) GetTail(_ context.Context, instrumentID int64, grain string, after time.Time, warmup int) ([]*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.selectSorted(instrumentID, grain)

	// index of the first quote strictly after the watermark
	first := sort.Search(len(all), func(i int) bool {
		return all[i].Ts.After(after)
	})
	start := first - warmup
	if start < 0 {
		start = 0
	}
	return all[start:], nil
}

// ListInstruments returns distinct instrument ids having quotes of grain, ASC.
func (s *QuoteStore) ListInstruments(_ context.Context, grain string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	for _, q := range s.data {
		if q.Grain == grain {
			seen[q.InstrumentID] = struct{}{}
		}
	}

	result := make([]int64, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// selectSorted must be called with the read lock held.
func (s *QuoteStore) selectSorted(instrumentID int64, grain string) []*domain.Quote {
	var result []*domain.Quote
	for _, q := range s.data {
		if q.InstrumentID == instrumentID && q.Grain == grain && q.Ts != nil {
			result = append(result, copyQuote(q))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Ts.Equal(*result[j].Ts) {
			return result[i].Ts.Before(*result[j].Ts)
		}
		return result[i].RawTs < result[j].RawTs
	})

	return result
}

var _ storage.QuoteStore = (*QuoteStore)(nil)
