package backtest

import (
	"context"
	"errors"
	"testing"

	"updown-trader/internal/position"
)

func TestSimVenue_FillsAndTracksHoldings(t *testing.T) {
	v := NewSimVenue()
	ctx := context.Background()

	fill, err := v.Buy(ctx, "tok", 0.65, 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if fill.OrderID != "sim-1" || fill.Price != 0.65 || fill.Size != 100 {
		t.Errorf("unexpected fill: %+v", fill)
	}

	if _, err := v.Buy(ctx, "tok", 0.70, 50); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	held, err := v.Holdings(ctx, "tok")
	if err != nil || held != 150 {
		t.Fatalf("holdings = %f, %v, want 150", held, err)
	}

	fill, err = v.Sell(ctx, "tok", 0.90, 120)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if fill.OrderID != "sim-3" || fill.Size != 120 {
		t.Errorf("unexpected sell fill: %+v", fill)
	}
	held, _ = v.Holdings(ctx, "tok")
	if !almostEqual(held, 30, 1e-9) {
		t.Errorf("holdings after sell = %f, want 30", held)
	}

	bought, sold := v.Turnover()
	if !almostEqual(bought, 0.65*100+0.70*50, 1e-9) {
		t.Errorf("bought notional = %f", bought)
	}
	if !almostEqual(sold, 0.90*120, 1e-9) {
		t.Errorf("sold notional = %f", sold)
	}
}

func TestSimVenue_RejectsOverselling(t *testing.T) {
	v := NewSimVenue()
	ctx := context.Background()

	if _, err := v.Buy(ctx, "tok", 0.50, 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, err := v.Sell(ctx, "tok", 0.60, 10.1)
	if !errors.Is(err, position.ErrBalanceExceeded) {
		t.Fatalf("expected ErrBalanceExceeded, got %v", err)
	}

	// The balance is untouched by the rejected order.
	held, _ := v.Holdings(ctx, "tok")
	if held != 10 {
		t.Errorf("holdings after rejection = %f, want 10", held)
	}
	if _, err := v.Sell(ctx, "tok", 0.60, 10); err != nil {
		t.Errorf("full-balance sell should fill: %v", err)
	}
}

func TestSimVenue_HonorsContextCancellation(t *testing.T) {
	v := NewSimVenue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := v.Buy(ctx, "tok", 0.50, 10); err == nil {
		t.Error("buy should fail on a cancelled context")
	}
	if _, err := v.Sell(ctx, "tok", 0.50, 10); err == nil {
		t.Error("sell should fail on a cancelled context")
	}
}
