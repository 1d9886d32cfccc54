package position

import "updown-trader/internal/domain"

// ExitInput carries the live quantities exit evaluation inspects. Nil
// pointers mean the fetch failed this tick; a trigger whose quantity is
// missing is skipped until the next tick rather than guessed.
type ExitInput struct {
	// ContractBid is the best bid of the held token, the price a close
	// would execute against.
	ContractBid *float64

	// Underlying is the current reference price of the underlying asset.
	Underlying *float64
}

// ExitTrigger evaluates the exit conditions for an Open position in
// fixed priority order and returns the reason of the first satisfied
// trigger, or "" when none fire. Evaluation stops at the first match.
func (m *Machine) ExitTrigger(in ExitInput) domain.CloseReason {
	if m.state != domain.StateOpen {
		return ""
	}

	// 1. Take-profit: the contract already trades near certainty.
	if in.ContractBid != nil && *in.ContractBid >= m.cfg.TakeProfitPrice {
		return domain.CloseReasonTakeProfit
	}

	// 2. Stop-loss: the contract fell too far below entry.
	if in.ContractBid != nil && m.pos.Drawdown(*in.ContractBid) > m.cfg.StopLossDrawdown {
		return domain.CloseReasonStopLoss
	}

	// 3. Strike barrier: the underlying crossed to the losing side.
	if in.Underlying != nil {
		u := *in.Underlying
		if m.pos.Direction == domain.DirectionUp && u < m.window.Strike ||
			m.pos.Direction == domain.DirectionDown && u > m.window.Strike {
			return domain.CloseReasonStrikeBarrier
		}
	}

	return ""
}
