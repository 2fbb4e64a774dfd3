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

// IndicatorSnapshotStore is an in-memory implementation of storage.IndicatorSnapshotStore.
// Upsert is an explicit look-up-then-overwrite under a single write lock.
type IndicatorSnapshotStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.IndicatorSnapshot // keyed by (instrument_id, timeframe, ts)
	nextID int64
	now    func() time.Time
}

// NewIndicatorSnapshotStore creates a new in-memory snapshot store.
func NewIndicatorSnapshotStore() *IndicatorSnapshotStore {
	return &IndicatorSnapshotStore{
		data:   make(map[string]*domain.IndicatorSnapshot),
		nextID: 1,
		now:    time.Now,
	}
}

// snapshotKey generates a unique key for a snapshot.
func snapshotKey(instrumentID int64, timeframe string, ts time.Time) string {
	return fmt.Sprintf("%d|%s|%d", instrumentID, timeframe, ts.UnixNano())
}

func copySnapshot(s *domain.IndicatorSnapshot) *domain.IndicatorSnapshot {
	c := *s
	c.Params = s.Params.Clone()
	c.Values = s.Values.Clone()
	return &c
}

// Upsert writes snapshots atomically, overwriting payloads on key collision.
func (s *IndicatorSnapshotStore) Upsert(_ context.Context, snapshots []*domain.IndicatorSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	for _, snap := range snapshots {
		if snap == nil || snap.InstrumentID == 0 || snap.Timeframe == "" || snap.Ts.IsZero() {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		key := snapshotKey(snap.InstrumentID, snap.Timeframe, snap.Ts)
		calculatedAt := snap.CalculatedAt
		if calculatedAt.IsZero() {
			calculatedAt = s.now().UTC()
		}

		if existing, ok := s.data[key]; ok {
			existing.Params = snap.Params.Clone()
			existing.Values = snap.Values.Clone()
			existing.CalculatedAt = calculatedAt
			snap.ID = existing.ID
			continue
		}

		stored := copySnapshot(snap)
		stored.ID = s.nextID
		stored.Ts = snap.Ts.UTC()
		stored.CalculatedAt = calculatedAt
		s.nextID++
		s.data[key] = stored
		snap.ID = stored.ID
	}

	return len(snapshots), nil
}

// LatestTimestamp returns the newest snapshot ts. Returns ErrNotFound if none exists.
func (s *IndicatorSnapshotStore) LatestTimestamp(ctx context.Context, instrumentID int64, timeframe string) (time.Time, error) {
	latest, err := s.GetLatest(ctx, instrumentID, timeframe)
	if err != nil {
		return time.Time{}, err
	}
	return latest.Ts, nil
}

// GetLatest returns the newest snapshot. Returns ErrNotFound if none exists.
func (s *IndicatorSnapshotStore) GetLatest(_ context.Context, instrumentID int64, timeframe string) (*domain.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.IndicatorSnapshot
	for _, snap := range s.data {
		if snap.InstrumentID != instrumentID || snap.Timeframe != timeframe {
			continue
		}
		if latest == nil || snap.Ts.After(latest.Ts) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(latest), nil
}

// GetByTimeRange returns snapshots of all instruments within [start, end] (inclusive).
func (s *IndicatorSnapshotStore) GetByTimeRange(_ context.Context, timeframe string, start, end time.Time) ([]*domain.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectSorted(func(snap *domain.IndicatorSnapshot) bool {
		return snap.Timeframe == timeframe && !snap.Ts.Before(start) && !snap.Ts.After(end)
	}), nil
}

// ListSetups returns snapshots whose values carry an active setup flag.
func (s *IndicatorSnapshotStore) ListSetups(_ context.Context, timeframe string) ([]*domain.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectSorted(func(snap *domain.IndicatorSnapshot) bool {
		return snap.Timeframe == timeframe && snap.Setup()
	}), nil
}

// selectSorted must be called with the read lock held.
func (s *IndicatorSnapshotStore) selectSorted(match func(*domain.IndicatorSnapshot) bool) []*domain.IndicatorSnapshot {
	var result []*domain.IndicatorSnapshot
	for _, snap := range s.data {
		if match(snap) {
			result = append(result, copySnapshot(snap))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].InstrumentID != result[j].InstrumentID {
			return result[i].InstrumentID < result[j].InstrumentID
		}
		return result[i].Ts.Before(result[j].Ts)
	})

	return result
}

var _ storage.IndicatorSnapshotStore = (*IndicatorSnapshotStore)(nil)
