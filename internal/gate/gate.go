// Package gate holds the hard entry constraints. Constraints are
// evaluated independently of the score: a failing constraint blocks
// entry for the tick no matter how high the score is, and a blocked
// tick is recorded as blocked, never as a signal.
package gate

import (
	"fmt"
	"strings"
)

// ConstraintResult is the pass/fail row for one named constraint.
type ConstraintResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result is the outcome of one gate evaluation.
type Result struct {
	Constraints []ConstraintResult
}

// Passed reports whether every constraint passed.
func (r *Result) Passed() bool {
	for _, c := range r.Constraints {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Failures returns the names of the failed constraints, comma-joined.
// Empty when the gate passed.
func (r *Result) Failures() string {
	var names []string
	for _, c := range r.Constraints {
		if !c.Pass {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ",")
}

// Config holds the constraint thresholds.
type Config struct {
	// Favored contract ask must sit inside [PriceFloor, PriceCeiling].
	PriceFloor   float64
	PriceCeiling float64

	// Supporting/opposing depth ratio must reach MinDepthRatio. Zero
	// disables the constraint, for venues without underlying book data.
	MinDepthRatio float64
}

// DefaultConfig returns the canonical constraint set.
func DefaultConfig() Config {
	return Config{
		PriceFloor:    0.60,
		PriceCeiling:  0.85,
		MinDepthRatio: 2.0,
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.PriceFloor <= 0 || c.PriceFloor >= 1 {
		return fmt.Errorf("price floor %f outside (0,1)", c.PriceFloor)
	}
	if c.PriceCeiling <= c.PriceFloor || c.PriceCeiling >= 1 {
		return fmt.Errorf("price ceiling %f outside (floor,1)", c.PriceCeiling)
	}
	if c.MinDepthRatio < 0 {
		return fmt.Errorf("min depth ratio %f must be non-negative", c.MinDepthRatio)
	}
	return nil
}

// Input carries the observable quantities the constraints inspect.
// Nil pointers mean the quantity could not be fetched this tick; the
// affected constraint fails rather than being skipped.
type Input struct {
	ContractPrice *float64
	DepthRatio    *float64
}

// Gate evaluates the configured constraints.
type Gate struct {
	cfg Config
}

// NewGate creates a gate after validating the configuration.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gate config: %w", err)
	}
	return &Gate{cfg: cfg}, nil
}

// Config returns the gate's configuration.
func (g *Gate) Config() Config { return g.cfg }

// Evaluate runs every constraint and returns the full row set. All
// constraints are always evaluated; the gate never short-circuits, so
// the result names every failure, not just the first.
func (g *Gate) Evaluate(in Input) *Result {
	rows := []ConstraintResult{
		g.priceFloor(in),
		g.priceCeiling(in),
	}
	if g.cfg.MinDepthRatio > 0 {
		rows = append(rows, g.depthFloor(in))
	}
	return &Result{Constraints: rows}
}

func (g *Gate) priceFloor(in Input) ConstraintResult {
	r := ConstraintResult{
		Name:      "contract_price_floor",
		Threshold: fmt.Sprintf(">= %.2f", g.cfg.PriceFloor),
		Actual:    "unavailable",
	}
	if in.ContractPrice != nil {
		r.Actual = fmt.Sprintf("%.4f", *in.ContractPrice)
		r.Pass = *in.ContractPrice >= g.cfg.PriceFloor
	}
	return r
}

func (g *Gate) priceCeiling(in Input) ConstraintResult {
	r := ConstraintResult{
		Name:      "contract_price_ceiling",
		Threshold: fmt.Sprintf("<= %.2f", g.cfg.PriceCeiling),
		Actual:    "unavailable",
	}
	if in.ContractPrice != nil {
		r.Actual = fmt.Sprintf("%.4f", *in.ContractPrice)
		r.Pass = *in.ContractPrice <= g.cfg.PriceCeiling
	}
	return r
}

func (g *Gate) depthFloor(in Input) ConstraintResult {
	r := ConstraintResult{
		Name:      "depth_ratio_floor",
		Threshold: fmt.Sprintf(">= %.2f", g.cfg.MinDepthRatio),
		Actual:    "unavailable",
	}
	if in.DepthRatio != nil {
		r.Actual = fmt.Sprintf("%.2f", *in.DepthRatio)
		r.Pass = *in.DepthRatio >= g.cfg.MinDepthRatio
	}
	return r
}
