package domain

import "fmt"

// PositionState is the lifecycle state of the per-window position machine.
type PositionState string

// Position lifecycle states.
const (
	StateFlat         PositionState = "FLAT"
	StatePendingEntry PositionState = "PENDING_ENTRY"
	StateOpen         PositionState = "OPEN"
	StatePendingClose PositionState = "PENDING_CLOSE"
	StateClosed       PositionState = "CLOSED"
)

// CloseReason identifies which trigger (or terminal event) closed a position.
type CloseReason string

// Close reason codes, in exit-trigger priority order.
const (
	CloseReasonTakeProfit    CloseReason = "TAKE_PROFIT"
	CloseReasonStopLoss      CloseReason = "STOP_LOSS"
	CloseReasonStrikeBarrier CloseReason = "STRIKE_BARRIER"
	CloseReasonExpiry        CloseReason = "EXPIRY_SETTLED"
)

// Position is the unit the state machine owns. Exactly zero or one
// Position exists per MarketWindow. Created on confirmed entry fill;
// mutated only by the state machine; immutable once Closed is set.
type Position struct {
	PositionID string // deterministic hash
	WindowID   string
	TokenID    string // contract token actually held
	Direction  Direction

	// Entry, from the actual fill rather than quoted prices.
	EntryPrice float64 // contract price paid per share
	EntrySize  float64 // shares
	OpenedAtMs int64

	// Close bookkeeping.
	Closed        bool
	CloseAttempts int
	ClosePrice    float64 // executed close price, or 0/1 payout on settlement
	CloseSize     float64
	ClosedAtMs    int64
	CloseReason   CloseReason
	Settled       bool // resolved by expiry settlement, not an executed order
	Won           *bool
	PnL           float64 // realized, in quote currency
}

// Cost returns the entry notional (shares x entry price).
func (p *Position) Cost() float64 {
	return p.EntrySize * p.EntryPrice
}

// Validate checks structural invariants of an open position.
func (p *Position) Validate() error {
	if p == nil {
		return fmt.Errorf("position is nil")
	}
	if p.PositionID == "" || p.WindowID == "" || p.TokenID == "" {
		return fmt.Errorf("position ids are incomplete")
	}
	if p.Direction != DirectionUp && p.Direction != DirectionDown {
		return fmt.Errorf("invalid direction %q", p.Direction)
	}
	if p.EntryPrice <= 0 || p.EntryPrice >= 1 {
		return fmt.Errorf("entry price %f outside (0,1)", p.EntryPrice)
	}
	if p.EntrySize <= 0 {
		return fmt.Errorf("entry size %f not positive", p.EntrySize)
	}
	return nil
}

// Drawdown returns the fractional fall of the contract price from entry.
// Zero when the price is at or above entry.
func (p *Position) Drawdown(contractPrice float64) float64 {
	if p.EntryPrice <= 0 || contractPrice >= p.EntryPrice {
		return 0
	}
	return (p.EntryPrice - contractPrice) / p.EntryPrice
}
