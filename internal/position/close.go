package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"updown-trader/internal/domain"
)

// closeLadder is the fraction of the sellable balance each rung of a
// close attempt offers. Later rungs are tried only on balance-exceeded
// rejections, which happen when the venue's view of our balance lags
// the fill that opened the position.
var closeLadder = []float64{1.0, 0.99, 0.98, 0.95, 0.93, 0.90}

// Venues that account balances in integer micro-units report values
// above this threshold; real share counts for this strategy never do.
const microUnitThreshold = 1000

var microUnitsPerShare = decimal.NewFromInt(1_000_000)

// truncateSize cuts a share quantity down to 4 decimal places. Always
// downward: rounding up would offer more than we hold.
func truncateSize(v float64) float64 {
	return decimal.NewFromFloat(v).Truncate(4).InexactFloat64()
}

// normalizeHoldings converts a raw venue balance into a tradable share
// count: micro-unit integers are scaled down, then truncated to the
// venue's safe precision.
func normalizeHoldings(raw float64) float64 {
	d := decimal.NewFromFloat(raw)
	if raw > microUnitThreshold {
		d = d.Div(microUnitsPerShare)
	}
	size := d.Truncate(4).InexactFloat64()
	if size < 0 {
		return 0
	}
	return size
}

// AttemptClose tries to close the open position at the given best bid.
// Sizing always starts from the venue's live balance rather than the
// recorded entry size, to tolerate partial fills; if the balance read
// fails the recorded size is the fallback. A non-positive bid records a
// failed attempt (nothing to sell into). Failure leaves the position
// Open with the attempt counter incremented; the trigger re-fires on
// later ticks and the position is never dropped.
func (m *Machine) AttemptClose(ctx context.Context, reason domain.CloseReason, bid float64, nowMs int64) error {
	if m.state != domain.StateOpen {
		return fmt.Errorf("close from state %s", m.state)
	}

	m.state = domain.StatePendingClose
	fill, err := m.executeClose(ctx, bid)
	if err != nil {
		m.state = domain.StateOpen
		m.pos.CloseAttempts++
		m.log.Warn().Err(err).
			Str("reason", string(reason)).
			Int("close_attempts", m.pos.CloseAttempts).
			Msg("close attempt failed")
		return fmt.Errorf("close attempt: %w", err)
	}

	m.pos.Closed = true
	m.pos.ClosePrice = fill.Price
	m.pos.CloseSize = fill.Size
	m.pos.ClosedAtMs = nowMs
	m.pos.CloseReason = reason
	m.pos.PnL = fill.Size*fill.Price - m.pos.Cost()
	m.state = domain.StateClosed

	m.log.Info().
		Str("reason", string(reason)).
		Float64("close_price", fill.Price).
		Float64("close_size", fill.Size).
		Float64("pnl", m.pos.PnL).
		Msg("position closed")
	return nil
}

func (m *Machine) executeClose(ctx context.Context, bid float64) (*Fill, error) {
	if bid <= 0 {
		return nil, ErrNoLiquidity
	}

	size := m.sellableSize(ctx)
	if size <= 0 {
		return nil, fmt.Errorf("no sellable balance")
	}

	var lastErr error
	for _, pct := range closeLadder {
		rung := truncateSize(size * pct)
		if rung <= 0 {
			break
		}
		fill, err := m.venue.Sell(ctx, m.pos.TokenID, bid, rung)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		if !errors.Is(err, ErrBalanceExceeded) {
			return nil, err
		}
		m.log.Debug().Float64("pct", pct).Msg("balance exceeded, stepping ladder down")
	}
	return nil, lastErr
}

// sellableSize returns the live tradable balance, falling back to the
// recorded entry size when the venue cannot be read.
func (m *Machine) sellableSize(ctx context.Context) float64 {
	raw, err := m.venue.Holdings(ctx, m.pos.TokenID)
	if err != nil {
		m.log.Warn().Err(err).Msg("balance read failed, using recorded size")
		return truncateSize(m.pos.EntrySize)
	}
	return normalizeHoldings(raw)
}
