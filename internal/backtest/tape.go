package backtest

import (
	"sort"

	"updown-trader/internal/domain"
)

const minuteMs = 60_000

// tape is the candle history cursor for one replay. Only candles whose
// interval has fully elapsed at the queried instant are visible, so a
// tick can never read a close that was not yet known at that point of
// the replay.
type tape struct {
	candles domain.CandleSeries // oldest first
}

func newTape(candles domain.CandleSeries) *tape {
	sorted := make(domain.CandleSeries, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })
	return &tape{candles: sorted}
}

// completed returns how many candles have fully closed by nowMs.
func (t *tape) completed(nowMs int64) int {
	return sort.Search(len(t.candles), func(i int) bool {
		return t.candles[i].TimestampMs > nowMs-minuteMs
	})
}

// priceAt returns the close of the last completed candle at nowMs.
func (t *tape) priceAt(nowMs int64) (float64, bool) {
	n := t.completed(nowMs)
	if n == 0 {
		return 0, false
	}
	return t.candles[n-1].Close, true
}

// seriesAt returns up to limit completed candles ending at nowMs,
// oldest first. ok is false only when nothing has completed yet; a
// short series is returned as-is and reads as insufficient downstream.
func (t *tape) seriesAt(nowMs int64, limit int) (domain.CandleSeries, bool) {
	n := t.completed(nowMs)
	if n == 0 {
		return nil, false
	}
	start := n - limit
	if start < 0 {
		start = 0
	}
	return t.candles[start:n], true
}
