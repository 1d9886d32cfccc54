// Package indicator provides pure technical-indicator functions over
// ordered OHLC history. All functions are deterministic and stateless:
// identical inputs produce bit-identical outputs, and series shorter
// than the required period report ok=false instead of extrapolating.
package indicator

import (
	"math"

	"updown-trader/internal/domain"
)

// Bollinger computes one Bollinger Band snapshot from the last period
// closes. The middle band is the arithmetic mean, the deviation is the
// population standard deviation of the same window, and the outer bands
// sit mult deviations away. ok is false when len(closes) < period.
func Bollinger(closes []float64, period int, mult float64) (domain.Bands, bool) {
	if period <= 0 || len(closes) < period {
		return domain.Bands{}, false
	}

	window := closes[len(closes)-period:]

	var sum float64
	for _, c := range window {
		sum += c
	}
	mean := sum / float64(period)

	var sqDiff float64
	for _, c := range window {
		d := c - mean
		sqDiff += d * d
	}
	dev := math.Sqrt(sqDiff / float64(period))

	return domain.Bands{
		Upper:  mean + mult*dev,
		Middle: mean,
		Lower:  mean - mult*dev,
	}, true
}

// ATR computes the average true range: the plain arithmetic mean of the
// last period true ranges, where the true range at i is
// max(high-low, |high-prevClose|, |low-prevClose|). True ranges need a
// previous close, so at least period+1 samples are required.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}

	var sum float64
	for i := n - period; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		sum += tr
	}

	return sum / float64(period), true
}

// RSI computes the relative strength index over the last period deltas
// using simple averages of gains and losses. Requires period+1 closes.
// All gains maps to 100, all losses to 0.
func RSI(closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := n - period; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	if losses == 0 {
		if gains == 0 {
			return 50, true
		}
		return 100, true
	}

	rs := gains / losses
	return 100 - 100/(1+rs), true
}
