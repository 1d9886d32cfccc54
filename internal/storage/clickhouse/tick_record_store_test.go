package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"updown-trader/internal/domain"
	"updown-trader/internal/storage"
)

func sampleTick(windowID string, ts int64) *domain.TickRecord {
	return &domain.TickRecord{
		WindowID:      windowID,
		TimestampMs:   ts,
		Price:         109250.5,
		Strike:        109245.12,
		MinutesLeft:   8.5,
		IndicatorsOK:  true,
		BandUpper:     109400.2,
		BandMiddle:    109200.1,
		BandLower:     109000.0,
		ATR:           85.4,
		RSI:           61.2,
		Direction:     "UP",
		BandScore:     22,
		BarrierScore:  18,
		DepthScore:    11,
		PriceScore:    25,
		Total:         76,
		RawTotal:      76.0,
		Killed:        false,
		GatePassed:    true,
		GateFailures:  "",
		ContractPrice: 0.62,
		DepthRatio:    1.8,
		Action:        domain.TickActionEntry,
	}
}

func TestTickRecordStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickRecordStore(conn)
	ctx := context.Background()

	// Out-of-order batch; reads must come back sorted by timestamp.
	batch := []*domain.TickRecord{
		sampleTick("w-1", 3000),
		sampleTick("w-1", 1000),
		sampleTick("w-1", 2000),
	}
	batch[1].Killed = true
	batch[1].GatePassed = false
	batch[1].GateFailures = "spread_too_wide,insufficient_depth"
	batch[1].Action = domain.TickActionBlocked

	require.NoError(t, store.InsertBulk(ctx, batch))

	got, err := store.GetByWindowID(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)
	assert.Equal(t, int64(3000), got[2].TimestampMs)

	// Flag and score round-trip through the column types.
	first := got[0]
	assert.True(t, first.Killed)
	assert.False(t, first.GatePassed)
	assert.True(t, first.IndicatorsOK)
	assert.Equal(t, "spread_too_wide,insufficient_depth", first.GateFailures)
	assert.Equal(t, domain.TickActionBlocked, first.Action)
	assert.Equal(t, 76, first.Total)
	assert.Equal(t, 22, first.BandScore)
	assert.InDelta(t, 109250.5, first.Price, 1e-9)
	assert.InDelta(t, 0.62, first.ContractPrice, 1e-9)
}

func TestTickRecordStore_DuplicateInBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickRecordStore(conn)
	ctx := context.Background()

	batch := []*domain.TickRecord{
		sampleTick("w-dup", 1000),
		sampleTick("w-dup", 1000),
	}

	err := store.InsertBulk(ctx, batch)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The whole batch must be rejected.
	got, err := store.GetByWindowID(ctx, "w-dup")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTickRecordStore_DuplicateOfExisting(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickRecordStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.TickRecord{sampleTick("w-2", 1000)}))

	err := store.InsertBulk(ctx, []*domain.TickRecord{
		sampleTick("w-2", 2000),
		sampleTick("w-2", 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByWindowID(ctx, "w-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
}

func TestTickRecordStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickRecordStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.TickRecord{
		sampleTick("w-3", 1000),
		sampleTick("w-3", 2000),
		sampleTick("w-3", 3000),
		sampleTick("other", 2000),
	}))

	got, err := store.GetByTimeRange(ctx, "w-3", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)
}

func TestTickRecordStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickRecordStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.TickRecord{nil})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.InsertBulk(ctx, []*domain.TickRecord{{TimestampMs: 1}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	assert.NoError(t, store.InsertBulk(ctx, nil))
}
