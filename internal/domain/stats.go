package domain

// WindowStatistics accumulates scoring activity over one window's trading
// sub-interval. Created at window start, appended to every evaluated tick,
// flushed once at window resolution; never read back into control logic.
// All fields are exported so a mid-window snapshot can be serialized and
// resumed without losing totals.
type WindowStatistics struct {
	WindowID string `json:"window_id"`

	// Running sums of the rounded component scores.
	BandSum    int `json:"band_sum"`
	BarrierSum int `json:"barrier_sum"`
	DepthSum   int `json:"depth_sum"`
	PriceSum   int `json:"price_sum"`
	TotalSum   int `json:"total_sum"`

	Evaluations int `json:"evaluations"`
	Signals     int `json:"signals"`
	Blocked     int `json:"blocked"` // score passed but a constraint failed
	MaxTotal    int `json:"max_total"`
}

// NewWindowStatistics creates an empty accumulator for a window.
func NewWindowStatistics(windowID string) *WindowStatistics {
	return &WindowStatistics{WindowID: windowID}
}

// Record appends one evaluated tick. A blocked tick still counts as an
// evaluation; signal and blocked are mutually exclusive for one tick.
func (s *WindowStatistics) Record(b *ScoreBreakdown, signal, blocked bool) {
	s.Evaluations++
	if b != nil {
		s.BandSum += b.Band.Score
		s.BarrierSum += b.Barrier.Score
		s.DepthSum += b.Depth.Score
		s.PriceSum += b.Price.Score
		s.TotalSum += b.Total
		if b.Total > s.MaxTotal {
			s.MaxTotal = b.Total
		}
	}
	if signal {
		s.Signals++
	}
	if blocked {
		s.Blocked++
	}
}

// Mean returns sum/evaluations, or 0 with no evaluations.
func mean(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// AvgBand returns the mean band component score per evaluation.
func (s *WindowStatistics) AvgBand() float64 { return mean(s.BandSum, s.Evaluations) }

// AvgBarrier returns the mean barrier component score per evaluation.
func (s *WindowStatistics) AvgBarrier() float64 { return mean(s.BarrierSum, s.Evaluations) }

// AvgDepth returns the mean depth component score per evaluation.
func (s *WindowStatistics) AvgDepth() float64 { return mean(s.DepthSum, s.Evaluations) }

// AvgPrice returns the mean price component score per evaluation.
func (s *WindowStatistics) AvgPrice() float64 { return mean(s.PriceSum, s.Evaluations) }

// AvgTotal returns the mean total score per evaluation.
func (s *WindowStatistics) AvgTotal() float64 { return mean(s.TotalSum, s.Evaluations) }

// SessionStats are the cumulative counters carried across windows. They are
// an explicit value owned by the scheduler loop, used purely for reporting.
type SessionStats struct {
	Windows         int     `json:"windows"`
	Evaluations     int     `json:"evaluations"`
	Signals         int     `json:"signals"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	NoSignal        int     `json:"no_signal"`
	SettledByExpiry int     `json:"settled_by_expiry"`
	GrossPnL        float64 `json:"gross_pnl"`
}

// RecordWindow folds one resolved window into the session counters.
// pos is nil when the window expired without a position.
func (s *SessionStats) RecordWindow(stats *WindowStatistics, pos *Position) {
	s.Windows++
	if stats != nil {
		s.Evaluations += stats.Evaluations
		s.Signals += stats.Signals
	}
	if pos == nil {
		s.NoSignal++
		return
	}
	s.GrossPnL += pos.PnL
	if pos.Settled {
		s.SettledByExpiry++
	}
	switch {
	case pos.PnL > 0:
		s.Wins++
	case pos.PnL < 0:
		s.Losses++
	}
}

// WinRate returns wins / (wins+losses), or 0 with no decided positions.
func (s *SessionStats) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided)
}
