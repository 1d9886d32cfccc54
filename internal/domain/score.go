package domain

// Component is one weighted scoring term. Raw keeps the unclamped linear
// value for diagnostics; Score is the rounded value clamped to [0, Weight]
// that enters the total.
type Component struct {
	Weight int
	Raw    float64
	Score  int
}

// KillSentinel is the raw total forced by the contract-price kill-switch.
const KillSentinel = -100

// ScoreBreakdown is the per-tick scoring result for one direction.
type ScoreBreakdown struct {
	Direction Direction

	Band    Component // strike position inside the Bollinger channel
	Barrier Component // ATR-scaled distance between price and strike
	Depth   Component // order-book support/resistance ratio
	Price   Component // contract price value term

	// RawTotal is the component sum before display flooring; the
	// kill-switch overwrites it with KillSentinel after summation.
	RawTotal float64
	// Total is the externally visible score: RawTotal floored at zero.
	Total  int
	Killed bool
}

// sumComponents recomputes RawTotal and Total from the component scores.
// Callers apply the kill-switch after this, never inside a component.
func (b *ScoreBreakdown) sumComponents() {
	b.RawTotal = float64(b.Band.Score + b.Barrier.Score + b.Depth.Score + b.Price.Score)
	if b.RawTotal < 0 {
		b.Total = 0
	} else {
		b.Total = int(b.RawTotal)
	}
}

// Finalize computes the totals and applies the kill-switch override once,
// after summation.
func (b *ScoreBreakdown) Finalize(killed bool) {
	b.sumComponents()
	if killed {
		b.Killed = true
		b.RawTotal = KillSentinel
		b.Total = 0
	}
}
