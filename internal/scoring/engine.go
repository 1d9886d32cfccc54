// Package scoring converts the current market picture into a bounded
// composite score. Each component contributes a weighted integer; the
// contract-price kill-switch overrides the total once, after summation.
package scoring

import (
	"fmt"
	"math"

	"updown-trader/internal/domain"
)

// Input is everything one evaluation consumes. Nil pointers mark
// quantities whose source was unavailable this tick; the affected
// component scores zero rather than failing the evaluation.
type Input struct {
	Price       float64 // current reference price
	Strike      float64
	Indicators  *domain.IndicatorSet
	MinutesLeft float64

	ContractPrice *float64 // best ask of the favored side
	DepthRatio    *float64 // supporting/opposing book volume ratio
}

// Favored returns the direction the current price favors: above the
// strike favors the Up contract, at or below favors Down.
func Favored(price, strike float64) domain.Direction {
	if price > strike {
		return domain.DirectionUp
	}
	return domain.DirectionDown
}

// Engine computes score breakdowns for one weight configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates a scoring engine after validating the configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Threshold returns the configured entry threshold.
func (e *Engine) Threshold() int { return e.cfg.EntryThreshold }

// Evaluate produces the breakdown for the direction favored by the
// current price. Deterministic: no state is carried between calls.
func (e *Engine) Evaluate(in Input) *domain.ScoreBreakdown {
	dir := Favored(in.Price, in.Strike)

	b := &domain.ScoreBreakdown{
		Direction: dir,
		Band:      e.bandComponent(dir, in),
		Barrier:   e.barrierComponent(in),
		Depth:     e.depthComponent(in),
		Price:     e.priceComponent(in),
	}

	killed := e.cfg.KillCeiling > 0 &&
		in.ContractPrice != nil && *in.ContractPrice > e.cfg.KillCeiling
	b.Finalize(killed)
	return b
}

// bandComponent scores the strike's position inside the Bollinger
// channel: position = clamp((strike-lower)/(upper-lower), 0, 1). An Up
// bet wants the strike deep in the lower half (full weight at 0, zero
// from the midpoint up); Down mirrors around the midpoint.
func (e *Engine) bandComponent(dir domain.Direction, in Input) domain.Component {
	c := domain.Component{Weight: e.cfg.BandWeight}
	if c.Weight == 0 || !in.Indicators.HasBands() {
		return c
	}
	bands := *in.Indicators.Bands
	width := bands.Width()
	if width <= 0 {
		return c
	}

	pos := clamp((in.Strike-bands.Lower)/width, 0, 1)
	if dir == domain.DirectionDown {
		// Mirror so the favorable extreme is always position 0.
		pos = 1 - pos
	}

	if e.cfg.Stepped {
		switch {
		case pos < 0.2:
			c.Score = c.Weight
		case pos < 0.4:
			c.Score = c.Weight / 2
		}
		c.Raw = float64(c.Score)
		return c
	}

	c.Raw = float64(c.Weight) * (1 - pos/0.5)
	c.Score = roundClamped(c.Raw, c.Weight)
	return c
}

// barrierComponent scores how far the price already sits from the strike
// relative to the move volatility could still produce:
// maxMove = ATR * sqrt(minutesLeft) * multiplier. Zero inside maxMove,
// full weight from 1.5x maxMove.
func (e *Engine) barrierComponent(in Input) domain.Component {
	c := domain.Component{Weight: e.cfg.BarrierWeight}
	if c.Weight == 0 || !in.Indicators.HasATR() || in.MinutesLeft <= 0 {
		return c
	}

	maxMove := *in.Indicators.ATR * math.Sqrt(in.MinutesLeft) * e.cfg.BarrierMultiplier
	if maxMove <= 0 {
		return c
	}
	dist := math.Abs(in.Price - in.Strike)

	if e.cfg.Stepped {
		switch {
		case dist > maxMove*1.5:
			c.Score = c.Weight
		case dist > maxMove:
			c.Score = (c.Weight * 3) / 5
		case dist > maxMove*0.8:
			c.Score = c.Weight / 5
		}
		c.Raw = float64(c.Score)
		return c
	}

	c.Raw = float64(c.Weight) * (dist - maxMove) / (0.5 * maxMove)
	if dist < maxMove {
		// The strike is still within reach; no partial credit below.
		c.Score = 0
		return c
	}
	c.Score = roundClamped(c.Raw, c.Weight)
	return c
}

// depthComponent maps the supporting/opposing volume ratio linearly from
// the configured floor to the cap.
func (e *Engine) depthComponent(in Input) domain.Component {
	c := domain.Component{Weight: e.cfg.DepthWeight}
	if c.Weight == 0 || in.DepthRatio == nil {
		return c
	}
	ratio := *in.DepthRatio

	if e.cfg.Stepped {
		switch {
		case ratio >= 2.0:
			c.Score = c.Weight
		case ratio >= 1.2:
			c.Score = (c.Weight * 2) / 3
		case ratio >= 0.8:
			c.Score = c.Weight / 3
		}
		c.Raw = float64(c.Score)
		return c
	}

	c.Raw = float64(c.Weight) * (ratio - e.cfg.DepthFloor) / (e.cfg.DepthCap - e.cfg.DepthFloor)
	c.Score = roundClamped(c.Raw, c.Weight)
	return c
}

// priceComponent rewards cheaper favorable contracts: full weight at the
// low bound falling linearly to zero at the high bound. The kill-switch
// itself is applied by Evaluate after summation, never here.
func (e *Engine) priceComponent(in Input) domain.Component {
	c := domain.Component{Weight: e.cfg.PriceWeight}
	if c.Weight == 0 || in.ContractPrice == nil {
		return c
	}
	price := *in.ContractPrice

	if e.cfg.Stepped {
		switch {
		case price >= 0.30 && price <= 0.50:
			c.Score = c.Weight
		case price > 0.50 && price <= 0.70:
			c.Score = (c.Weight * 2) / 3
		case price > 0.70 && price <= 0.85:
			c.Score = c.Weight / 3
		}
		c.Raw = float64(c.Score)
		return c
	}

	c.Raw = float64(c.Weight) * (e.cfg.PriceHigh - price) / (e.cfg.PriceHigh - e.cfg.PriceLow)
	c.Score = roundClamped(c.Raw, c.Weight)
	return c
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// roundClamped rounds a raw component value to the nearest integer score
// within [0, weight].
func roundClamped(raw float64, weight int) int {
	return int(math.Round(clamp(raw, 0, float64(weight))))
}
