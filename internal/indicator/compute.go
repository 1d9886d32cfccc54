package indicator

import "updown-trader/internal/domain"

// Params holds the indicator periods and multipliers for one snapshot.
type Params struct {
	BollingerPeriod int
	BollingerStdDev float64
	ATRPeriod       int
	RSIPeriod       int
}

// DefaultParams returns the canonical indicator parameters.
func DefaultParams() Params {
	return Params{
		BollingerPeriod: 20,
		BollingerStdDev: 1.75,
		ATRPeriod:       14,
		RSIPeriod:       14,
	}
}

// Compute assembles the per-tick IndicatorSet from a candle series.
// Indicators whose history requirement is not met are left nil; the
// set itself is always returned.
func Compute(series domain.CandleSeries, p Params) *domain.IndicatorSet {
	set := &domain.IndicatorSet{}
	if len(series) == 0 {
		return set
	}

	closes := series.Closes()

	if bands, ok := Bollinger(closes, p.BollingerPeriod, p.BollingerStdDev); ok {
		set.Bands = &bands
	}
	if atr, ok := ATR(series.Highs(), series.Lows(), closes, p.ATRPeriod); ok {
		set.ATR = &atr
	}
	if rsi, ok := RSI(closes, p.RSIPeriod); ok {
		set.RSI = &rsi
	}

	return set
}
