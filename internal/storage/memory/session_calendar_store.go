package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// SessionCalendarStore is an in-memory implementation of storage.SessionCalendarStore.
type SessionCalendarStore struct {
	mu   sync.RWMutex
	data map[string]domain.SessionDay // keyed by YYYY-MM-DD
}

// NewSessionCalendarStore creates a new in-memory session calendar store.
func NewSessionCalendarStore() *SessionCalendarStore {
	return &SessionCalendarStore{
		data: make(map[string]domain.SessionDay),
	}
}

// InsertBulk adds calendar entries atomically. Fails entire batch on a repeated date.
func (s *SessionCalendarStore) InsertBulk(_ context.Context, days []domain.SessionDay) error {
	if len(days) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(days))
	for _, d := range days {
		if d.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := d.DateKey()
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, d := range days {
		d.Date = truncateDate(d.Date)
		s.data[d.DateKey()] = d
	}
	return nil
}

// GetRecent returns the last n sessions with date <= asOf, ordered by date ASC.
func (s *SessionCalendarStore) GetRecent(_ context.Context, asOf time.Time, n int) ([]domain.SessionDay, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := truncateDate(asOf)
	var result []domain.SessionDay
	for _, d := range s.data {
		if !d.Date.After(limit) {
			result = append(result, d)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	if len(result) > n {
		result = result[len(result)-n:]
	}
	return result, nil
}

// truncateDate keeps the calendar date of t as midnight UTC.
func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ storage.SessionCalendarStore = (*SessionCalendarStore)(nil)
