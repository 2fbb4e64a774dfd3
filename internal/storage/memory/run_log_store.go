package memory

import (
	"context"
	"sync"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// RunLogStore is an in-memory implementation of storage.RunLogStore.
type RunLogStore struct {
	mu      sync.RWMutex
	entries []*domain.RunLogEntry // in append order
}

// NewRunLogStore creates a new in-memory run log store.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{}
}

// Append adds a run log entry and assigns its ID.
func (s *RunLogStore) Append(_ context.Context, entry *domain.RunLogEntry) error {
	if entry == nil || entry.Status == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.entries) + 1)
	entryCopy := *entry
	s.entries = append(s.entries, &entryCopy)
	return nil
}

// Latest returns the most recent entry. Returns ErrNotFound if the log is empty.
func (s *RunLogStore) Latest(_ context.Context) (*domain.RunLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, storage.ErrNotFound
	}
	entryCopy := *s.entries[len(s.entries)-1]
	return &entryCopy, nil
}

// List returns up to limit entries, newest first.
func (s *RunLogStore) List(_ context.Context, limit int) ([]*domain.RunLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	result := make([]*domain.RunLogEntry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		entryCopy := *s.entries[i]
		result = append(result, &entryCopy)
	}
	return result, nil
}

var _ storage.RunLogStore = (*RunLogStore)(nil)
