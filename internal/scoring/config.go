package scoring

import "fmt"

// Preset names accepted in configuration.
const (
	PresetLinear  = "linear"
	PresetStepped = "stepped"
	PresetNoBook  = "nobook"
)

// Config holds one weight configuration for the scoring engine.
// Weights are integers; the canonical set sums to 100 so the total reads
// as a percentage-like confidence value.
type Config struct {
	Name string

	BandWeight    int
	BarrierWeight int
	DepthWeight   int
	PriceWeight   int

	EntryThreshold int

	// Barrier: maxMove = ATR * sqrt(minutesLeft) * BarrierMultiplier.
	BarrierMultiplier float64

	// Depth ratio mapped linearly from floor (score 0) to cap (full weight).
	DepthFloor float64
	DepthCap   float64

	// Contract price mapped linearly from full weight at PriceLow down to
	// zero at PriceHigh.
	PriceLow  float64
	PriceHigh float64

	// KillCeiling forces the total to the sentinel once the favored
	// contract trades above it. Zero disables the kill-switch.
	KillCeiling float64

	// Stepped switches the band, barrier, depth and price curves from
	// linear interpolation to the banded fixed scores.
	Stepped bool
}

// DefaultConfig returns the canonical linear configuration.
func DefaultConfig() Config {
	return Config{
		Name:              PresetLinear,
		BandWeight:        30,
		BarrierWeight:     25,
		DepthWeight:       15,
		PriceWeight:       30,
		EntryThreshold:    75,
		BarrierMultiplier: 1.5,
		DepthFloor:        0.3,
		DepthCap:          3.0,
		PriceLow:          0.30,
		PriceHigh:         0.85,
		KillCeiling:       0.95,
	}
}

// SteppedConfig returns the banded configuration used by an earlier
// revision of the strategy: fixed score steps per component and a lower
// kill ceiling.
func SteppedConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = PresetStepped
	cfg.KillCeiling = 0.92
	cfg.Stepped = true
	return cfg
}

// NoBookConfig returns the linear configuration with the order-book
// component disabled, for venues where underlying depth is unavailable.
// The freed weight moves to the price component.
func NoBookConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = PresetNoBook
	cfg.DepthWeight = 0
	cfg.PriceWeight = 45
	cfg.EntryThreshold = 65
	return cfg
}

// ByName resolves a preset name to its configuration.
func ByName(name string) (Config, error) {
	switch name {
	case "", PresetLinear:
		return DefaultConfig(), nil
	case PresetStepped:
		return SteppedConfig(), nil
	case PresetNoBook:
		return NoBookConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown scoring preset %q", name)
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.BandWeight < 0 || c.BarrierWeight < 0 || c.DepthWeight < 0 || c.PriceWeight < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if c.BandWeight+c.BarrierWeight+c.DepthWeight+c.PriceWeight == 0 {
		return fmt.Errorf("at least one component weight must be positive")
	}
	if c.EntryThreshold <= 0 {
		return fmt.Errorf("entry threshold must be positive")
	}
	if c.BarrierMultiplier <= 0 {
		return fmt.Errorf("barrier multiplier must be positive")
	}
	if c.DepthWeight > 0 && c.DepthCap <= c.DepthFloor {
		return fmt.Errorf("depth cap %f must exceed floor %f", c.DepthCap, c.DepthFloor)
	}
	if c.PriceWeight > 0 && c.PriceHigh <= c.PriceLow {
		return fmt.Errorf("price high %f must exceed low %f", c.PriceHigh, c.PriceLow)
	}
	if c.KillCeiling != 0 && (c.KillCeiling <= 0 || c.KillCeiling >= 1) {
		return fmt.Errorf("kill ceiling %f outside (0,1)", c.KillCeiling)
	}
	return nil
}
