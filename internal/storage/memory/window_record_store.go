package memory

import (
	"context"
	"sort"
	"sync"

	"updown-trader/internal/domain"
	"updown-trader/internal/storage"
)

// WindowRecordStore is an in-memory implementation of storage.WindowRecordStore.
type WindowRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WindowRecord // keyed by window_id
}

// NewWindowRecordStore creates a new in-memory window record store.
func NewWindowRecordStore() *WindowRecordStore {
	return &WindowRecordStore{
		data: make(map[string]*domain.WindowRecord),
	}
}

var _ storage.WindowRecordStore = (*WindowRecordStore)(nil)

// Insert adds a new window record. Returns ErrDuplicateKey if window_id exists.
func (s *WindowRecordStore) Insert(_ context.Context, r *domain.WindowRecord) error {
	if r == nil || r.WindowID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.WindowID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.WindowID] = &copy
	return nil
}

// GetByID retrieves a record by window ID. Returns ErrNotFound if not exists.
func (s *WindowRecordStore) GetByID(_ context.Context, windowID string) (*domain.WindowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[windowID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetByTimeRange retrieves records with open_ms within [start, end] (inclusive).
func (s *WindowRecordStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.WindowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WindowRecord
	for _, r := range s.data {
		if r.OpenMs >= start && r.OpenMs <= end {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenMs < result[j].OpenMs
	})

	return result, nil
}

// GetRecent retrieves up to limit most recent records, newest first.
func (s *WindowRecordStore) GetRecent(_ context.Context, limit int) ([]*domain.WindowRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.WindowRecord, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenMs > result[j].OpenMs
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
