package memory

import (
	"context"
	"sort"
	"sync"

	"updown-trader/internal/domain"
	"updown-trader/internal/storage"
)

type tickKey struct {
	windowID    string
	timestampMs int64
}

// TickRecordStore is an in-memory implementation of storage.TickRecordStore.
type TickRecordStore struct {
	mu   sync.RWMutex
	data map[tickKey]*domain.TickRecord
}

// NewTickRecordStore creates a new in-memory tick record store.
func NewTickRecordStore() *TickRecordStore {
	return &TickRecordStore{
		data: make(map[tickKey]*domain.TickRecord),
	}
}

var _ storage.TickRecordStore = (*TickRecordStore)(nil)

// InsertBulk adds multiple ticks atomically. Fails entire batch on any duplicate.
func (s *TickRecordStore) InsertBulk(_ context.Context, ticks []*domain.TickRecord) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[tickKey]struct{}, len(ticks))

	// First pass: check for duplicates (existing + intra-batch)
	for _, tick := range ticks {
		if tick == nil || tick.WindowID == "" {
			return storage.ErrInvalidInput
		}
		k := tickKey{tick.WindowID, tick.TimestampMs}

		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	// Second pass: insert all
	for _, tick := range ticks {
		copy := *tick
		s.data[tickKey{tick.WindowID, tick.TimestampMs}] = &copy
	}

	return nil
}

// GetByWindowID retrieves all ticks for a window, ordered by timestamp ASC.
func (s *TickRecordStore) GetByWindowID(_ context.Context, windowID string) ([]*domain.TickRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TickRecord
	for _, tick := range s.data {
		if tick.WindowID == windowID {
			copy := *tick
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves ticks for a window within [start, end] (inclusive).
func (s *TickRecordStore) GetByTimeRange(_ context.Context, windowID string, start, end int64) ([]*domain.TickRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TickRecord
	for _, tick := range s.data {
		if tick.WindowID == windowID && tick.TimestampMs >= start && tick.TimestampMs <= end {
			copy := *tick
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}
