// Package position owns the lifecycle of at most one position per market
// window: entry, fill confirmation, exit supervision, close attempts and
// expiry settlement. A fresh machine is created for every window; the
// only state that survives a window lives in the session counters the
// scheduler owns.
package position

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
	"updown-trader/internal/idhash"
)

// minOrderBuffer pads the minimum-notional share computation so rounding
// on the venue side cannot push the order under the minimum.
const minOrderBuffer = 1.05

// Config holds the sizing and exit parameters for one machine.
type Config struct {
	// TradeNotional is the target position cost in collateral units.
	TradeNotional float64

	// MinOrderNotional is the venue's minimum order value. Orders are
	// padded above it when TradeNotional alone would undershoot.
	MinOrderNotional float64

	// TakeProfitPrice closes the position once the held contract bids at
	// or above it.
	TakeProfitPrice float64

	// StopLossDrawdown closes the position once the contract price has
	// fallen by more than this fraction from the entry price.
	StopLossDrawdown float64
}

// DefaultConfig returns the canonical machine parameters.
func DefaultConfig() Config {
	return Config{
		TradeNotional:    100,
		MinOrderNotional: 1.00,
		TakeProfitPrice:  0.95,
		StopLossDrawdown: 0.30,
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.TradeNotional <= 0 {
		return fmt.Errorf("trade notional must be positive")
	}
	if c.MinOrderNotional < 0 {
		return fmt.Errorf("min order notional must be non-negative")
	}
	if c.TakeProfitPrice <= 0 || c.TakeProfitPrice > 1 {
		return fmt.Errorf("take-profit price %f outside (0,1]", c.TakeProfitPrice)
	}
	if c.StopLossDrawdown <= 0 || c.StopLossDrawdown >= 1 {
		return fmt.Errorf("stop-loss drawdown %f outside (0,1)", c.StopLossDrawdown)
	}
	return nil
}

// Machine is the per-window position state machine. Not safe for
// concurrent use; the scheduler guarantees strictly sequential ticks.
type Machine struct {
	cfg    Config
	window *domain.MarketWindow
	venue  Venue
	log    zerolog.Logger

	state domain.PositionState
	pos   *domain.Position

	failedEntries int
}

// NewMachine creates a machine for one window, starting Flat.
func NewMachine(window *domain.MarketWindow, venue Venue, cfg Config, log zerolog.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("position config: %w", err)
	}
	if window == nil {
		return nil, fmt.Errorf("position machine needs a window")
	}
	if venue == nil {
		return nil, fmt.Errorf("position machine needs a venue")
	}
	return &Machine{
		cfg:    cfg,
		window: window,
		venue:  venue,
		log:    log.With().Str("window_id", window.WindowID).Logger(),
		state:  domain.StateFlat,
	}, nil
}

// State returns the current state.
func (m *Machine) State() domain.PositionState { return m.state }

// Position returns the live position, nil while no fill has confirmed.
func (m *Machine) Position() *domain.Position { return m.pos }

// FailedEntries returns how many entry attempts did not reach a fill.
func (m *Machine) FailedEntries() int { return m.failedEntries }

// TryEnter attempts to open a position in the given direction at the
// quoted ask. The scheduler calls it only when the score cleared the
// threshold and the gate passed. Any failure returns the machine to
// Flat; the same tick never retries, a later tick must qualify again.
// Once a fill confirms, the machine never accepts another entry.
func (m *Machine) TryEnter(ctx context.Context, dir domain.Direction, ask float64, nowMs int64) (bool, error) {
	if m.state != domain.StateFlat {
		return false, fmt.Errorf("entry from state %s", m.state)
	}
	if ask <= 0 || ask >= 1 {
		return false, fmt.Errorf("entry ask %f outside (0,1)", ask)
	}

	size := m.entrySize(ask)
	if size <= 0 {
		return false, fmt.Errorf("entry size computed as %f", size)
	}
	tokenID := m.window.TokenFor(dir)

	m.state = domain.StatePendingEntry
	m.log.Info().
		Str("direction", string(dir)).
		Float64("ask", ask).
		Float64("size", size).
		Msg("placing entry order")

	fill, err := m.venue.Buy(ctx, tokenID, ask, size)
	if err != nil {
		m.state = domain.StateFlat
		m.failedEntries++
		m.log.Warn().Err(err).Int("failed_entries", m.failedEntries).Msg("entry failed")
		return false, fmt.Errorf("entry order: %w", err)
	}

	pos := &domain.Position{
		PositionID: idhash.ComputePositionID(m.window.WindowID, tokenID, nowMs),
		WindowID:   m.window.WindowID,
		TokenID:    tokenID,
		Direction:  dir,
		EntryPrice: fill.Price,
		EntrySize:  fill.Size,
		OpenedAtMs: nowMs,
	}
	if err := pos.Validate(); err != nil {
		// The fill came back malformed; treat like a failed entry rather
		// than carrying an invalid position.
		m.state = domain.StateFlat
		m.failedEntries++
		return false, fmt.Errorf("fill produced invalid position: %w", err)
	}

	m.pos = pos
	m.state = domain.StateOpen
	m.log.Info().
		Str("position_id", pos.PositionID).
		Float64("fill_price", fill.Price).
		Float64("fill_size", fill.Size).
		Str("order_id", fill.OrderID).
		Msg("position opened")
	return true, nil
}

// entrySize converts the configured notional into shares at the quoted
// ask, padding up to the venue minimum when needed.
func (m *Machine) entrySize(ask float64) float64 {
	size := m.cfg.TradeNotional / ask
	if m.cfg.MinOrderNotional > 0 && size*ask < m.cfg.MinOrderNotional {
		size = m.cfg.MinOrderNotional * minOrderBuffer / ask
	}
	return truncateSize(size)
}

// Settle resolves the window at expiry. A machine still Flat records a
// no-signal outcome (nil). A machine still holding a position resolves
// it by binary settlement at the final reference price: a win pays one
// collateral unit per share. Settle is idempotent once Closed.
func (m *Machine) Settle(finalPrice float64, nowMs int64) *domain.Position {
	switch m.state {
	case domain.StateClosed:
		return m.pos
	case domain.StateFlat, domain.StatePendingEntry:
		m.state = domain.StateClosed
		m.log.Info().Msg("window expired with no position")
		return nil
	}

	won := m.pos.Direction == domain.DirectionUp && finalPrice > m.window.Strike ||
		m.pos.Direction == domain.DirectionDown && finalPrice < m.window.Strike

	m.pos.Settled = true
	m.pos.Won = &won
	m.pos.Closed = true
	m.pos.CloseReason = domain.CloseReasonExpiry
	m.pos.CloseSize = m.pos.EntrySize
	m.pos.ClosedAtMs = nowMs
	if won {
		m.pos.ClosePrice = 1
		m.pos.PnL = m.pos.EntrySize * (1 - m.pos.EntryPrice)
	} else {
		m.pos.ClosePrice = 0
		m.pos.PnL = -m.pos.Cost()
	}
	m.state = domain.StateClosed

	m.log.Info().
		Bool("won", won).
		Float64("final_price", finalPrice).
		Float64("strike", m.window.Strike).
		Float64("pnl", m.pos.PnL).
		Msg("position settled at expiry")
	return m.pos
}
