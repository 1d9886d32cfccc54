package domain

// Candle is one OHLC sample from the reference price history.
// Produced by the price feed; never mutated once received.
type Candle struct {
	TimestampMs int64   // candle open time (ms)
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// CandleSeries is an ordered (oldest-first) fixed-length sliding window
// of candles. It is the only state the indicator functions consume.
type CandleSeries []Candle

// Closes returns the close column.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high column.
func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows returns the low column.
func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Rebase shifts all OHLC values by offset so the series lines up with a
// reference price source that differs from the exchange by a constant.
// Returns a new series; the receiver is not modified.
func (s CandleSeries) Rebase(offset float64) CandleSeries {
	if offset == 0 {
		return s
	}
	out := make(CandleSeries, len(s))
	for i, c := range s {
		c.Open += offset
		c.High += offset
		c.Low += offset
		c.Close += offset
		out[i] = c
	}
	return out
}
