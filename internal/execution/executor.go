package execution

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"updown-trader/internal/httpx"
	"updown-trader/internal/observability"
	"updown-trader/internal/position"
)

// Executor places orders on the live CLOB. Placement runs under the
// shared retry policy; fill confirmation happens once per accepted
// order, never re-placing it.
type Executor struct {
	client *Client
	retry  httpx.RetryPolicy
	log    zerolog.Logger
}

var _ position.Venue = (*Executor)(nil)

// NewExecutor creates a live venue executor.
func NewExecutor(client *Client, retry httpx.RetryPolicy, log zerolog.Logger) *Executor {
	return &Executor{
		client: client,
		retry:  retry,
		log:    log.With().Str("component", "executor").Logger(),
	}
}

// Buy implements position.Venue.
func (e *Executor) Buy(ctx context.Context, tokenID string, price, size float64) (*position.Fill, error) {
	return e.submit(ctx, tokenID, SideBuy, price, size)
}

// Sell implements position.Venue.
func (e *Executor) Sell(ctx context.Context, tokenID string, price, size float64) (*position.Fill, error) {
	return e.submit(ctx, tokenID, SideSell, price, size)
}

// Holdings implements position.Venue.
func (e *Executor) Holdings(ctx context.Context, tokenID string) (float64, error) {
	return e.client.BalanceAllowance(ctx, tokenID)
}

func (e *Executor) submit(ctx context.Context, tokenID, side string, price, size float64) (*position.Fill, error) {
	req := orderRequest{
		TokenID:  tokenID,
		Price:    price,
		Size:     size,
		Side:     side,
		ClientID: uuid.NewString(),
	}

	var orderID string
	err := e.retry.Do(ctx, func() error {
		id, err := e.client.placeOrder(ctx, req)
		if err != nil {
			if httpx.Transient(err) {
				return err
			}
			// Venue rejections and other application errors never
			// succeed on a resubmit of the same order.
			return httpx.Permanent(err)
		}
		orderID = id
		return nil
	})
	if err != nil {
		observability.RecordOrder(side, "rejected")
		e.log.Warn().Err(err).
			Str("side", side).
			Float64("price", price).
			Float64("size", size).
			Msg("order placement failed")
		return nil, err
	}

	fill, err := e.client.waitForFill(ctx, orderID, req)
	if err != nil {
		observability.RecordOrder(side, "unfilled")
		e.log.Warn().Err(err).Str("order_id", orderID).Msg("fill unconfirmed")
		return nil, err
	}

	observability.RecordOrder(side, "filled")
	e.log.Info().
		Str("order_id", fill.OrderID).
		Str("side", side).
		Float64("price", fill.Price).
		Float64("size", fill.Size).
		Msg("order filled")
	return fill, nil
}
