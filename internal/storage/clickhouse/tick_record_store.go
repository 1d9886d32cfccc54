package clickhouse

import (
	"context"
	"fmt"

	"updown-trader/internal/domain"
	"updown-trader/internal/storage"
)

// TickRecordStore implements storage.TickRecordStore using ClickHouse.
type TickRecordStore struct {
	conn *Conn
}

// NewTickRecordStore creates a new TickRecordStore.
func NewTickRecordStore(conn *Conn) *TickRecordStore {
	return &TickRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickRecordStore = (*TickRecordStore)(nil)

const tickColumns = `
	window_id, timestamp_ms,
	price, strike, minutes_left,
	indicators_ok, band_upper, band_middle, band_lower, atr, rsi,
	direction, band_score, barrier_score, depth_score, price_score,
	total, raw_total, killed, gate_passed, gate_failures,
	contract_price, depth_ratio, action
`

// InsertBulk adds multiple ticks atomically. Fails entire batch on any
// duplicate (window_id, timestamp_ms).
func (s *TickRecordStore) InsertBulk(ctx context.Context, ticks []*domain.TickRecord) error {
	if len(ticks) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		windowID    string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, tick := range ticks {
		if tick == nil || tick.WindowID == "" {
			return storage.ErrInvalidInput
		}
		k := key{tick.WindowID, tick.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, tick := range ticks {
		exists, err := s.exists(ctx, tick.WindowID, tick.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO tick_records (`+tickColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tick := range ticks {
		err = batch.Append(
			tick.WindowID, uint64(tick.TimestampMs),
			tick.Price, tick.Strike, tick.MinutesLeft,
			boolToUInt8(tick.IndicatorsOK), tick.BandUpper, tick.BandMiddle, tick.BandLower, tick.ATR, tick.RSI,
			tick.Direction, int32(tick.BandScore), int32(tick.BarrierScore), int32(tick.DepthScore), int32(tick.PriceScore),
			int32(tick.Total), tick.RawTotal, boolToUInt8(tick.Killed), boolToUInt8(tick.GatePassed), tick.GateFailures,
			tick.ContractPrice, tick.DepthRatio, tick.Action,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByWindowID retrieves all ticks for a window, ordered by timestamp ASC.
func (s *TickRecordStore) GetByWindowID(ctx context.Context, windowID string) ([]*domain.TickRecord, error) {
	query := `
		SELECT ` + tickColumns + `
		FROM tick_records
		WHERE window_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, windowID)
	if err != nil {
		return nil, fmt.Errorf("query by window id: %w", err)
	}
	defer rows.Close()

	return scanTickRecords(rows)
}

// GetByTimeRange retrieves ticks for a window within [start, end] (inclusive).
func (s *TickRecordStore) GetByTimeRange(ctx context.Context, windowID string, start, end int64) ([]*domain.TickRecord, error) {
	query := `
		SELECT ` + tickColumns + `
		FROM tick_records
		WHERE window_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, windowID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTickRecords(rows)
}

// exists checks if a tick with the given key exists.
func (s *TickRecordStore) exists(ctx context.Context, windowID string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM tick_records
		WHERE window_id = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, windowID, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the row iterator shape shared by Query results.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// scanTickRecords scans multiple rows.
func scanTickRecords(rows chRows) ([]*domain.TickRecord, error) {
	var ticks []*domain.TickRecord

	for rows.Next() {
		var tick domain.TickRecord
		var timestampMs uint64
		var indicatorsOK, killed, gatePassed uint8
		var bandScore, barrierScore, depthScore, priceScore, total int32

		err := rows.Scan(
			&tick.WindowID, &timestampMs,
			&tick.Price, &tick.Strike, &tick.MinutesLeft,
			&indicatorsOK, &tick.BandUpper, &tick.BandMiddle, &tick.BandLower, &tick.ATR, &tick.RSI,
			&tick.Direction, &bandScore, &barrierScore, &depthScore, &priceScore,
			&total, &tick.RawTotal, &killed, &gatePassed, &tick.GateFailures,
			&tick.ContractPrice, &tick.DepthRatio, &tick.Action,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick record row: %w", err)
		}

		tick.TimestampMs = int64(timestampMs)
		tick.IndicatorsOK = indicatorsOK != 0
		tick.Killed = killed != 0
		tick.GatePassed = gatePassed != 0
		tick.BandScore = int(bandScore)
		tick.BarrierScore = int(barrierScore)
		tick.DepthScore = int(depthScore)
		tick.PriceScore = int(priceScore)
		tick.Total = int(total)
		ticks = append(ticks, &tick)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick record rows: %w", err)
	}

	return ticks, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
