package position

import (
	"context"
	"errors"
)

// Venue behavior errors. Implementations wrap these so the machine can
// classify failures without knowing the transport.
var (
	// ErrRejected marks an application-level order rejection, terminal
	// for the attempt.
	ErrRejected = errors.New("order rejected")

	// ErrBalanceExceeded marks a close rejection caused by selling more
	// than the venue thinks we hold. The close ladder steps down on it.
	ErrBalanceExceeded = errors.New("balance exceeded")

	// ErrNoLiquidity marks an empty opposing book side.
	ErrNoLiquidity = errors.New("no liquidity")

	// ErrFillTimeout marks an order that was accepted but never
	// confirmed filled within the polling budget.
	ErrFillTimeout = errors.New("fill not confirmed in time")
)

// Fill is the confirmed result of an executed order.
type Fill struct {
	OrderID string
	Price   float64
	Size    float64
}

// Venue is the order-execution collaborator the machine drives. Both
// the live exchange client and the backtest simulator implement it.
type Venue interface {
	// Buy places a limit buy and blocks until the fill is confirmed.
	Buy(ctx context.Context, tokenID string, price, size float64) (*Fill, error)

	// Sell places a limit sell and blocks until the fill is confirmed.
	Sell(ctx context.Context, tokenID string, price, size float64) (*Fill, error)

	// Holdings returns the current tradable balance for a token as the
	// venue reports it, before unit normalization.
	Holdings(ctx context.Context, tokenID string) (float64, error)
}
