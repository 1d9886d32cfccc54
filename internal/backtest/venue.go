// Package backtest replays historical candle data through the same
// indicator, scoring, gate and position components the live loop runs,
// against a simulated venue. Contract quotes are synthesized from the
// underlying price; no order book exists in a replay, so the depth
// component and constraint stay disabled by default.
package backtest

import (
	"context"
	"fmt"
	"sync"

	"updown-trader/internal/position"
)

// SimVenue fills every order instantly and fully at the requested
// price. It implements position.Venue for backtests and paper trading.
type SimVenue struct {
	mu       sync.Mutex
	holdings map[string]float64
	orders   int

	bought float64 // cumulative buy notional
	sold   float64 // cumulative sell notional
}

// NewSimVenue creates an empty simulated venue.
func NewSimVenue() *SimVenue {
	return &SimVenue{holdings: make(map[string]float64)}
}

var _ position.Venue = (*SimVenue)(nil)

// Buy credits the token balance and fills at the requested price.
func (v *SimVenue) Buy(ctx context.Context, tokenID string, price, size float64) (*position.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.orders++
	v.holdings[tokenID] += size
	v.bought += price * size
	return &position.Fill{
		OrderID: fmt.Sprintf("sim-%d", v.orders),
		Price:   price,
		Size:    size,
	}, nil
}

// Sell debits the token balance. Selling more than held is rejected
// with ErrBalanceExceeded, the same way the live venue rejects it.
func (v *SimVenue) Sell(ctx context.Context, tokenID string, price, size float64) (*position.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	held := v.holdings[tokenID]
	if size > held+1e-9 {
		return nil, fmt.Errorf("sell %.4f exceeds held %.4f: %w", size, held, position.ErrBalanceExceeded)
	}

	v.orders++
	v.holdings[tokenID] = held - size
	v.sold += price * size
	return &position.Fill{
		OrderID: fmt.Sprintf("sim-%d", v.orders),
		Price:   price,
		Size:    size,
	}, nil
}

// Holdings returns the current balance for a token.
func (v *SimVenue) Holdings(_ context.Context, tokenID string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.holdings[tokenID], nil
}

// Turnover returns the cumulative buy and sell notional.
func (v *SimVenue) Turnover() (bought, sold float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bought, v.sold
}
