package domain

// Bands holds one Bollinger Band computation.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width returns the channel width (upper - lower).
func (b Bands) Width() float64 {
	return b.Upper - b.Lower
}

// IndicatorSet is the transient per-tick indicator snapshot. Nil fields
// mean the price history was too short for that indicator; downstream
// logic treats missing values as a first-class state, not an error.
type IndicatorSet struct {
	Bands *Bands
	ATR   *float64
	RSI   *float64 // diagnostic only, never scored
}

// HasBands reports whether Bollinger values are available.
func (s *IndicatorSet) HasBands() bool {
	return s != nil && s.Bands != nil
}

// HasATR reports whether an ATR value is available.
func (s *IndicatorSet) HasATR() bool {
	return s != nil && s.ATR != nil
}
