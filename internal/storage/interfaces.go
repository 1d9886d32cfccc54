package storage

import (
	"context"

	"updown-trader/internal/domain"
)

// WindowRecordStore provides access to window_records storage.
type WindowRecordStore interface {
	// Insert adds a new window record. Returns ErrDuplicateKey if window_id exists.
	Insert(ctx context.Context, r *domain.WindowRecord) error

	// GetByID retrieves a record by window ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, windowID string) (*domain.WindowRecord, error)

	// GetByTimeRange retrieves records with open_ms within [start, end] (inclusive),
	// ordered by open_ms ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.WindowRecord, error)

	// GetRecent retrieves up to limit most recent records, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.WindowRecord, error)
}

// TickRecordStore provides access to tick_records storage.
type TickRecordStore interface {
	// InsertBulk adds multiple ticks atomically. Fails entire batch on any
	// duplicate (window_id, timestamp_ms).
	InsertBulk(ctx context.Context, ticks []*domain.TickRecord) error

	// GetByWindowID retrieves all ticks for a window, ordered by timestamp ASC.
	GetByWindowID(ctx context.Context, windowID string) ([]*domain.TickRecord, error)

	// GetByTimeRange retrieves ticks for a window within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, windowID string, start, end int64) ([]*domain.TickRecord, error)
}
