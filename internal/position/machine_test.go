package position

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
)

func fptr(v float64) *float64 { return &v }

type fakeVenue struct {
	buyFn      func(ctx context.Context, tokenID string, price, size float64) (*Fill, error)
	sellFn     func(ctx context.Context, tokenID string, price, size float64) (*Fill, error)
	holdingsFn func(ctx context.Context, tokenID string) (float64, error)

	buys  int
	sells int
}

func (f *fakeVenue) Buy(ctx context.Context, tokenID string, price, size float64) (*Fill, error) {
	f.buys++
	if f.buyFn == nil {
		return &Fill{OrderID: "buy-1", Price: price, Size: size}, nil
	}
	return f.buyFn(ctx, tokenID, price, size)
}

func (f *fakeVenue) Sell(ctx context.Context, tokenID string, price, size float64) (*Fill, error) {
	f.sells++
	if f.sellFn == nil {
		return &Fill{OrderID: "sell-1", Price: price, Size: size}, nil
	}
	return f.sellFn(ctx, tokenID, price, size)
}

func (f *fakeVenue) Holdings(ctx context.Context, tokenID string) (float64, error) {
	if f.holdingsFn == nil {
		return 0, errors.New("holdings unavailable")
	}
	return f.holdingsFn(ctx, tokenID)
}

func testWindow() *domain.MarketWindow {
	open := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.MarketWindow{
		WindowID:    "w-test",
		Slug:        "btc-updown-15m-1748779200",
		Strike:      100000,
		UpTokenID:   "token-up",
		DownTokenID: "token-down",
		OpenTime:    open,
		CloseTime:   open.Add(15 * time.Minute),
	}
}

func newMachine(t *testing.T, venue Venue) *Machine {
	t.Helper()
	m, err := NewMachine(testWindow(), venue, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func openPosition(t *testing.T, m *Machine) {
	t.Helper()
	opened, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.70, 1000)
	if err != nil || !opened {
		t.Fatalf("TryEnter: opened=%t err=%v", opened, err)
	}
}

func TestTryEnter_OpensFromFill(t *testing.T) {
	venue := &fakeVenue{
		buyFn: func(_ context.Context, tokenID string, price, size float64) (*Fill, error) {
			if tokenID != "token-up" {
				return nil, fmt.Errorf("wrong token %s", tokenID)
			}
			// Partial fill at a slightly better price than quoted.
			return &Fill{OrderID: "o1", Price: 0.69, Size: size * 0.8}, nil
		},
	}
	m := newMachine(t, venue)

	opened, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.70, 5000)
	if err != nil || !opened {
		t.Fatalf("TryEnter: opened=%t err=%v", opened, err)
	}
	if m.State() != domain.StateOpen {
		t.Fatalf("expected OPEN, got %s", m.State())
	}

	pos := m.Position()
	if pos == nil {
		t.Fatal("expected a position")
	}
	// Entry comes from the fill, not the quote at decision time.
	if pos.EntryPrice != 0.69 {
		t.Errorf("entry price %f, want fill price 0.69", pos.EntryPrice)
	}
	wantSize := truncateSize(100.0/0.70) * 0.8
	if pos.EntrySize != wantSize {
		t.Errorf("entry size %f, want filled %f", pos.EntrySize, wantSize)
	}
	if pos.OpenedAtMs != 5000 {
		t.Errorf("opened_at %d, want 5000", pos.OpenedAtMs)
	}
	if len(pos.PositionID) != 64 {
		t.Errorf("position id %q is not a 64-char hash", pos.PositionID)
	}
}

func TestTryEnter_FailureReturnsToFlat(t *testing.T) {
	venue := &fakeVenue{
		buyFn: func(context.Context, string, float64, float64) (*Fill, error) {
			return nil, fmt.Errorf("insufficient funds: %w", ErrRejected)
		},
	}
	m := newMachine(t, venue)

	opened, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.70, 1000)
	if opened || err == nil {
		t.Fatal("expected entry failure")
	}
	if m.State() != domain.StateFlat {
		t.Fatalf("expected FLAT after failed entry, got %s", m.State())
	}
	if m.Position() != nil {
		t.Error("no position may exist after a failed entry")
	}
	if m.FailedEntries() != 1 {
		t.Errorf("failed entries %d, want 1", m.FailedEntries())
	}

	// A later qualifying tick may try again and succeed.
	venue.buyFn = nil
	opened, err = m.TryEnter(context.Background(), domain.DirectionUp, 0.72, 2000)
	if err != nil || !opened {
		t.Fatalf("second entry: opened=%t err=%v", opened, err)
	}
	if m.State() != domain.StateOpen {
		t.Fatalf("expected OPEN, got %s", m.State())
	}
}

func TestTryEnter_NeverTwicePerWindow(t *testing.T) {
	venue := &fakeVenue{}
	m := newMachine(t, venue)
	openPosition(t, m)

	if _, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.70, 2000); err == nil {
		t.Fatal("entry from OPEN must be rejected")
	}
	if venue.buys != 1 {
		t.Errorf("venue saw %d buys, want exactly 1", venue.buys)
	}

	m.Settle(100500, 900000)
	if _, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.70, 3000); err == nil {
		t.Fatal("entry from CLOSED must be rejected")
	}
}

func TestTryEnter_PendingEntryVisibleDuringCall(t *testing.T) {
	var seen domain.PositionState
	venue := &fakeVenue{}
	m := newMachine(t, venue)
	venue.buyFn = func(_ context.Context, _ string, price, size float64) (*Fill, error) {
		seen = m.State()
		return &Fill{Price: price, Size: size}, nil
	}

	openPosition(t, m)
	if seen != domain.StatePendingEntry {
		t.Errorf("state during order placement was %s, want PENDING_ENTRY", seen)
	}
}

func TestEntrySize_PadsToMinimumNotional(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradeNotional = 0.5 // below the venue minimum
	var gotSize float64
	venue := &fakeVenue{
		buyFn: func(_ context.Context, _ string, price, size float64) (*Fill, error) {
			gotSize = size
			return &Fill{Price: price, Size: size}, nil
		},
	}
	m, err := NewMachine(testWindow(), venue, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	if _, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.70, 1000); err != nil {
		t.Fatalf("TryEnter: %v", err)
	}
	if notional := gotSize * 0.70; notional < cfg.MinOrderNotional {
		t.Errorf("order notional %f below the venue minimum %f", notional, cfg.MinOrderNotional)
	}
}

func TestExitTrigger_PriorityOrder(t *testing.T) {
	m := newMachine(t, &fakeVenue{})
	openPosition(t, m) // UP at 0.70, strike 100000

	cases := []struct {
		name string
		in   ExitInput
		want domain.CloseReason
	}{
		{
			// Take-profit and barrier both hold; take-profit wins.
			name: "take profit first",
			in:   ExitInput{ContractBid: fptr(0.96), Underlying: fptr(99000)},
			want: domain.CloseReasonTakeProfit,
		},
		{
			// Stop-loss and barrier both hold; stop-loss wins.
			name: "stop loss before barrier",
			in:   ExitInput{ContractBid: fptr(0.40), Underlying: fptr(99000)},
			want: domain.CloseReasonStopLoss,
		},
		{
			name: "barrier on underlying cross",
			in:   ExitInput{ContractBid: fptr(0.65), Underlying: fptr(99999)},
			want: domain.CloseReasonStrikeBarrier,
		},
		{
			name: "no trigger",
			in:   ExitInput{ContractBid: fptr(0.75), Underlying: fptr(100500)},
			want: "",
		},
	}
	for _, tc := range cases {
		if got := m.ExitTrigger(tc.in); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExitTrigger_StopLossBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossDrawdown = 0.25
	m, err := NewMachine(testWindow(), &fakeVenue{}, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if _, err := m.TryEnter(context.Background(), domain.DirectionUp, 0.5, 1000); err != nil {
		t.Fatalf("TryEnter: %v", err)
	}

	// Drawdown exactly at the configured fraction does not fire; the
	// condition is strictly greater-than.
	if got := m.ExitTrigger(ExitInput{ContractBid: fptr(0.375), Underlying: fptr(100500)}); got != "" {
		t.Errorf("drawdown at the boundary fired %q", got)
	}
	if got := m.ExitTrigger(ExitInput{ContractBid: fptr(0.37), Underlying: fptr(100500)}); got != domain.CloseReasonStopLoss {
		t.Errorf("drawdown past the boundary got %q, want STOP_LOSS", got)
	}
}

func TestExitTrigger_MissingDataSkipsTriggers(t *testing.T) {
	m := newMachine(t, &fakeVenue{})
	openPosition(t, m)

	// No contract bid: price triggers are skipped, the barrier still
	// fires on the underlying alone.
	if got := m.ExitTrigger(ExitInput{Underlying: fptr(99000)}); got != domain.CloseReasonStrikeBarrier {
		t.Errorf("expected barrier with missing bid, got %q", got)
	}

	// Nothing available: no trigger, never a guess.
	if got := m.ExitTrigger(ExitInput{}); got != "" {
		t.Errorf("expected no trigger without data, got %q", got)
	}
}

func TestAttemptClose_UsesLiveBalance(t *testing.T) {
	var soldSize float64
	venue := &fakeVenue{
		holdingsFn: func(context.Context, string) (float64, error) {
			return 1234567, nil // micro-units
		},
		sellFn: func(_ context.Context, _ string, price, size float64) (*Fill, error) {
			soldSize = size
			return &Fill{Price: price, Size: size}, nil
		},
	}
	m := newMachine(t, venue)
	openPosition(t, m)

	err := m.AttemptClose(context.Background(), domain.CloseReasonTakeProfit, 0.96, 600000)
	if err != nil {
		t.Fatalf("AttemptClose: %v", err)
	}
	// 1234567 micro-units -> 1.234567 shares -> truncated to 1.2345.
	if soldSize != 1.2345 {
		t.Errorf("sold %f, want normalized live balance 1.2345", soldSize)
	}

	pos := m.Position()
	if !pos.Closed || m.State() != domain.StateClosed {
		t.Fatal("position should be closed")
	}
	if pos.CloseReason != domain.CloseReasonTakeProfit {
		t.Errorf("close reason %s, want TAKE_PROFIT", pos.CloseReason)
	}
	if pos.CloseSize != 1.2345 || pos.ClosePrice != 0.96 {
		t.Errorf("close fill %f@%f recorded wrong", pos.CloseSize, pos.ClosePrice)
	}
}

func TestAttemptClose_FallsBackToRecordedSize(t *testing.T) {
	var soldSize float64
	venue := &fakeVenue{
		// Holdings errors by default.
		sellFn: func(_ context.Context, _ string, price, size float64) (*Fill, error) {
			soldSize = size
			return &Fill{Price: price, Size: size}, nil
		},
	}
	m := newMachine(t, venue)
	openPosition(t, m)

	if err := m.AttemptClose(context.Background(), domain.CloseReasonStopLoss, 0.40, 600000); err != nil {
		t.Fatalf("AttemptClose: %v", err)
	}
	if want := truncateSize(m.Position().EntrySize); soldSize != want {
		t.Errorf("sold %f, want recorded size %f", soldSize, want)
	}
}

func TestAttemptClose_LadderOnBalanceExceeded(t *testing.T) {
	full := 10.0
	var sizes []float64
	venue := &fakeVenue{
		holdingsFn: func(context.Context, string) (float64, error) { return full, nil },
		sellFn: func(_ context.Context, _ string, price, size float64) (*Fill, error) {
			sizes = append(sizes, size)
			if size > 9.85 {
				return nil, fmt.Errorf("not enough balance / allowance: %w", ErrBalanceExceeded)
			}
			return &Fill{Price: price, Size: size}, nil
		},
	}
	m := newMachine(t, venue)
	openPosition(t, m)

	if err := m.AttemptClose(context.Background(), domain.CloseReasonTakeProfit, 0.95, 600000); err != nil {
		t.Fatalf("AttemptClose: %v", err)
	}
	// 10.0 and 9.9 rejected, 9.8 accepted.
	want := []float64{10.0, 9.9, 9.8}
	if len(sizes) != len(want) {
		t.Fatalf("ladder sizes %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("ladder sizes %v, want %v", sizes, want)
		}
	}
	if m.Position().CloseSize != 9.8 {
		t.Errorf("close size %f, want the accepted rung 9.8", m.Position().CloseSize)
	}
}

func TestAttemptClose_RejectionDoesNotWalkLadder(t *testing.T) {
	venue := &fakeVenue{
		holdingsFn: func(context.Context, string) (float64, error) { return 10, nil },
		sellFn: func(context.Context, string, float64, float64) (*Fill, error) {
			return nil, fmt.Errorf("market closed: %w", ErrRejected)
		},
	}
	m := newMachine(t, venue)
	openPosition(t, m)

	err := m.AttemptClose(context.Background(), domain.CloseReasonStopLoss, 0.40, 600000)
	if err == nil {
		t.Fatal("expected close failure")
	}
	if venue.sells != 1 {
		t.Errorf("venue saw %d sells, want 1: only balance errors walk the ladder", venue.sells)
	}
}

func TestAttemptClose_FailureKeepsPositionOpen(t *testing.T) {
	venue := &fakeVenue{
		holdingsFn: func(context.Context, string) (float64, error) { return 10, nil },
		sellFn: func(context.Context, string, float64, float64) (*Fill, error) {
			return nil, ErrRejected
		},
	}
	m := newMachine(t, venue)
	openPosition(t, m)

	if err := m.AttemptClose(context.Background(), domain.CloseReasonStopLoss, 0.40, 600000); err == nil {
		t.Fatal("expected close failure")
	}
	if m.State() != domain.StateOpen {
		t.Fatalf("expected OPEN after failed close, got %s", m.State())
	}
	pos := m.Position()
	if pos.Closed {
		t.Error("position must not be marked closed")
	}
	if pos.CloseAttempts != 1 {
		t.Errorf("close attempts %d, want exactly 1", pos.CloseAttempts)
	}

	// The trigger persists; a later tick retries and succeeds.
	venue.sellFn = nil
	if err := m.AttemptClose(context.Background(), domain.CloseReasonStopLoss, 0.40, 601000); err != nil {
		t.Fatalf("retry close: %v", err)
	}
	if m.State() != domain.StateClosed || !m.Position().Closed {
		t.Fatal("expected the retried close to succeed")
	}
	if m.Position().CloseAttempts != 1 {
		t.Errorf("successful close must not increment attempts, got %d", m.Position().CloseAttempts)
	}
}

func TestAttemptClose_NoBidFailsAttempt(t *testing.T) {
	venue := &fakeVenue{
		holdingsFn: func(context.Context, string) (float64, error) { return 10, nil },
	}
	m := newMachine(t, venue)
	openPosition(t, m)

	err := m.AttemptClose(context.Background(), domain.CloseReasonStrikeBarrier, 0, 600000)
	if !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
	if venue.sells != 0 {
		t.Error("no order may be placed without a bid")
	}
	if m.State() != domain.StateOpen || m.Position().CloseAttempts != 1 {
		t.Error("failed attempt must keep the position open and count once")
	}
}

func TestSettle_WinAndLoss(t *testing.T) {
	m := newMachine(t, &fakeVenue{})
	openPosition(t, m) // UP at 0.70

	pos := m.Settle(100200, 900000) // above strike: UP wins
	if pos == nil || !pos.Settled || pos.Won == nil || !*pos.Won {
		t.Fatal("expected a settled winning position")
	}
	entrySize := pos.EntrySize
	if want := entrySize * (1 - 0.70); pos.PnL != want {
		t.Errorf("win pnl %f, want %f", pos.PnL, want)
	}
	if pos.ClosePrice != 1 || pos.CloseReason != domain.CloseReasonExpiry {
		t.Errorf("settlement fields wrong: price=%f reason=%s", pos.ClosePrice, pos.CloseReason)
	}

	// Settle is idempotent once closed.
	again := m.Settle(0, 900001)
	if again != pos {
		t.Error("second settle must return the same terminal position")
	}

	// Losing side: final price at the strike counts against UP.
	m2 := newMachine(t, &fakeVenue{})
	openPosition(t, m2)
	pos2 := m2.Settle(100000, 900000)
	if pos2.Won == nil || *pos2.Won {
		t.Fatal("final price at the strike must lose for UP")
	}
	if want := -pos2.Cost(); pos2.PnL != want {
		t.Errorf("loss pnl %f, want %f", pos2.PnL, want)
	}
	if pos2.ClosePrice != 0 {
		t.Errorf("losing settlement price %f, want 0", pos2.ClosePrice)
	}
}

func TestSettle_FlatResolvesNoSignal(t *testing.T) {
	m := newMachine(t, &fakeVenue{})

	if pos := m.Settle(100500, 900000); pos != nil {
		t.Fatal("flat machine must settle to no position")
	}
	if m.State() != domain.StateClosed {
		t.Fatalf("expected CLOSED after expiry, got %s", m.State())
	}
}

func TestNormalizeHoldings(t *testing.T) {
	cases := []struct {
		raw  float64
		want float64
	}{
		{1234567, 1.2345},  // micro-units, truncated down
		{142.85719, 142.8571}, // plain shares, truncated down
		{999.99999, 999.9999},
		{1000.5, 0.001},    // just over the unit threshold: treated as micro
		{0, 0},
		{-5, 0},
	}
	for _, tc := range cases {
		if got := normalizeHoldings(tc.raw); got != tc.want {
			t.Errorf("normalizeHoldings(%f) = %f, want %f", tc.raw, got, tc.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero notional", func(c *Config) { c.TradeNotional = 0 }},
		{"negative min order", func(c *Config) { c.MinOrderNotional = -1 }},
		{"take profit above 1", func(c *Config) { c.TakeProfitPrice = 1.1 }},
		{"zero stop loss", func(c *Config) { c.StopLossDrawdown = 0 }},
		{"stop loss at 1", func(c *Config) { c.StopLossDrawdown = 1 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
