package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"updown-trader/internal/domain"
	"updown-trader/internal/storage"
)

// WindowRecordStore implements storage.WindowRecordStore using PostgreSQL.
type WindowRecordStore struct {
	pool *Pool
}

// NewWindowRecordStore creates a new WindowRecordStore.
func NewWindowRecordStore(pool *Pool) *WindowRecordStore {
	return &WindowRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WindowRecordStore = (*WindowRecordStore)(nil)

const windowRecordColumns = `
	window_id, slug, strike, open_ms, close_ms,
	evaluations, signals, blocked, max_score,
	avg_band, avg_barrier, avg_depth, avg_price, avg_total,
	position_id, direction, entry_price, entry_size,
	close_price, close_reason, close_attempts, settled, pnl,
	outcome, final_price, created_ms
`

// Insert adds a new window record. Returns ErrDuplicateKey if window_id exists.
func (s *WindowRecordStore) Insert(ctx context.Context, r *domain.WindowRecord) error {
	if r == nil || r.WindowID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO window_records (` + windowRecordColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21, $22, $23,
			$24, $25, $26
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.WindowID, r.Slug, r.Strike, r.OpenMs, r.CloseMs,
		r.Evaluations, r.Signals, r.Blocked, r.MaxScore,
		r.AvgBand, r.AvgBarrier, r.AvgDepth, r.AvgPrice, r.AvgTotal,
		r.PositionID, r.Direction, r.EntryPrice, r.EntrySize,
		r.ClosePrice, r.CloseReason, r.CloseAttempts, r.Settled, r.PnL,
		r.Outcome, r.FinalPrice, r.CreatedMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert window record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by window ID. Returns ErrNotFound if not exists.
func (s *WindowRecordStore) GetByID(ctx context.Context, windowID string) (*domain.WindowRecord, error) {
	query := `SELECT ` + windowRecordColumns + ` FROM window_records WHERE window_id = $1`

	row := s.pool.QueryRow(ctx, query, windowID)
	r, err := scanWindowRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get window record by id: %w", err)
	}
	return r, nil
}

// GetByTimeRange retrieves records with open_ms within [start, end] (inclusive).
func (s *WindowRecordStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.WindowRecord, error) {
	query := `
		SELECT ` + windowRecordColumns + `
		FROM window_records
		WHERE open_ms >= $1 AND open_ms <= $2
		ORDER BY open_ms ASC, window_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get window records by time range: %w", err)
	}
	defer rows.Close()

	return scanWindowRecords(rows)
}

// GetRecent retrieves up to limit most recent records, newest first.
func (s *WindowRecordStore) GetRecent(ctx context.Context, limit int) ([]*domain.WindowRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + windowRecordColumns + `
		FROM window_records
		ORDER BY open_ms DESC, window_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent window records: %w", err)
	}
	defer rows.Close()

	return scanWindowRecords(rows)
}

// scanWindowRecord scans a single row into a WindowRecord.
func scanWindowRecord(row pgx.Row) (*domain.WindowRecord, error) {
	var r domain.WindowRecord

	err := row.Scan(
		&r.WindowID, &r.Slug, &r.Strike, &r.OpenMs, &r.CloseMs,
		&r.Evaluations, &r.Signals, &r.Blocked, &r.MaxScore,
		&r.AvgBand, &r.AvgBarrier, &r.AvgDepth, &r.AvgPrice, &r.AvgTotal,
		&r.PositionID, &r.Direction, &r.EntryPrice, &r.EntrySize,
		&r.ClosePrice, &r.CloseReason, &r.CloseAttempts, &r.Settled, &r.PnL,
		&r.Outcome, &r.FinalPrice, &r.CreatedMs,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanWindowRecords scans multiple rows into a slice of WindowRecord.
func scanWindowRecords(rows pgx.Rows) ([]*domain.WindowRecord, error) {
	var records []*domain.WindowRecord

	for rows.Next() {
		r, err := scanWindowRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window record row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window record rows: %w", err)
	}

	return records, nil
}
