package backtest

import (
	"math"

	"updown-trader/internal/domain"
)

// Quote price bounds. Binary contract prices live strictly inside (0,1).
const (
	quoteMin = 0.01
	quoteMax = 0.99
)

// zClamp caps the normalized edge fed into the midpoint. Beyond three
// expected moves a contract is priced as settled.
const zClamp = 3.0

// QuoteModel synthesizes contract quotes for a replay. The midpoint
// moves off 0.5 by Slope per unit of normalized edge, where the edge is
// the distance to strike measured against the expected remaining move,
// the same measure the barrier component scores. The slope is shallow
// on purpose: live venue quotes damp short-horizon moves well below
// their model-implied probability, and that lag is the inefficiency the
// strategy trades. A probability-faithful midpoint would price the
// favored side out of the entry band precisely when the score peaks.
type QuoteModel struct {
	// Spread is the full bid/ask spread.
	Spread float64

	// Slope is the midpoint shift per unit of normalized edge.
	Slope float64

	// BarrierMultiplier scales the expected move, matching the scorer's.
	BarrierMultiplier float64
}

// DefaultQuoteModel returns the canonical replay pricing model.
func DefaultQuoteModel() QuoteModel {
	return QuoteModel{
		Spread:            0.04,
		Slope:             0.10,
		BarrierMultiplier: 1.5,
	}
}

// Quote prices one contract side at an instant. Returns nil when no ATR
// is available or the window has expired; a missing quote degrades the
// tick exactly like an unreachable live pricer.
func (m QuoteModel) Quote(tokenID string, dir domain.Direction, price, strike float64, atr *float64, minutesLeft float64, nowMs int64) *domain.Quote {
	if atr == nil || *atr <= 0 || minutesLeft <= 0 {
		return nil
	}

	maxMove := *atr * math.Sqrt(minutesLeft) * m.BarrierMultiplier
	if maxMove <= 0 {
		return nil
	}

	edge := price - strike
	if dir == domain.DirectionDown {
		edge = -edge
	}

	z := edge / maxMove
	if z > zClamp {
		z = zClamp
	} else if z < -zClamp {
		z = -zClamp
	}
	mid := 0.5 + m.Slope*z

	half := m.Spread / 2
	return &domain.Quote{
		TokenID:     tokenID,
		Bid:         clampQuote(mid - half),
		Ask:         clampQuote(mid + half),
		TimestampMs: nowMs,
	}
}

func clampQuote(p float64) float64 {
	if p < quoteMin {
		return quoteMin
	}
	if p > quoteMax {
		return quoteMax
	}
	return p
}
