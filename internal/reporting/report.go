package reporting

import "time"

// Report is the session summary built from stored window records.
type Report struct {
	GeneratedAt  time.Time
	RangeStartMs int64
	RangeEndMs   int64

	Summary      SessionSummary
	Windows      []WindowRow
	CloseReasons []CloseReasonRow
}

// SessionSummary aggregates every window in the report range.
type SessionSummary struct {
	Windows  int
	Traded   int // windows where a position existed
	Wins     int
	Losses   int
	Flat     int
	NoSignal int

	WinRate  float64 // wins / (wins + losses)
	TotalPnL float64
	AvgPnL   float64 // per traded window
	BestPnL  float64
	WorstPnL float64

	Evaluations int
	Signals     int
	Blocked     int
	SignalRate  float64 // signals / evaluations
	MaxScore    int
	AvgScore    float64 // evaluation-weighted mean total score

	SettledByExpiry int
	CloseAttempts   int
}

// WindowRow is one window in the report, in open-time order.
type WindowRow struct {
	Slug    string
	OpenMs  int64
	Strike  float64
	Outcome string

	Evaluations int
	Signals     int
	Blocked     int
	MaxScore    int
	AvgTotal    float64

	Traded      bool
	Direction   string // empty when no position
	EntryPrice  float64
	EntrySize   float64
	ClosePrice  float64
	CloseReason string
	PnL         float64
	FinalPrice  float64
}

// CloseReasonRow groups traded windows by how the position ended.
type CloseReasonRow struct {
	Reason   string
	Count    int
	Wins     int
	TotalPnL float64
}
