package domain

// WindowRecord is the durable summary of one resolved window.
// Written once at window resolution; the engine never reads it back.
type WindowRecord struct {
	WindowID string // deterministic hash
	Slug     string
	Strike   float64
	OpenMs   int64 // window open (ms)
	CloseMs  int64 // window expiry (ms)

	// Scoring activity over the trading sub-interval.
	Evaluations int
	Signals     int
	Blocked     int
	MaxScore    int
	AvgBand     float64
	AvgBarrier  float64
	AvgDepth    float64
	AvgPrice    float64
	AvgTotal    float64

	// Position outcome. Nullable fields absent when no position existed.
	PositionID    *string
	Direction     *string
	EntryPrice    *float64
	EntrySize     *float64
	ClosePrice    *float64
	CloseReason   *string
	CloseAttempts int
	Settled       bool
	PnL           *float64
	Outcome       string // "WIN" | "LOSS" | "FLAT" | "NO_SIGNAL"

	FinalPrice *float64 // final reference price at expiry, when known
	CreatedMs  int64
}

// Window outcome classes.
const (
	OutcomeWin      = "WIN"
	OutcomeLoss     = "LOSS"
	OutcomeFlat     = "FLAT"      // position closed at breakeven
	OutcomeNoSignal = "NO_SIGNAL" // window expired with no position
)

// OutcomeFor classifies a resolved window by its position result.
func OutcomeFor(pos *Position) string {
	switch {
	case pos == nil:
		return OutcomeNoSignal
	case pos.PnL > 0:
		return OutcomeWin
	case pos.PnL < 0:
		return OutcomeLoss
	default:
		return OutcomeFlat
	}
}

// BuildWindowRecord assembles the durable summary row for one resolved
// window. pos and finalPrice are nil when absent.
func BuildWindowRecord(w *MarketWindow, stats *WindowStatistics, pos *Position, finalPrice *float64, createdMs int64) *WindowRecord {
	rec := &WindowRecord{
		WindowID:    w.WindowID,
		Slug:        w.Slug,
		Strike:      w.Strike,
		OpenMs:      w.OpenTime.UnixMilli(),
		CloseMs:     w.CloseTime.UnixMilli(),
		Evaluations: stats.Evaluations,
		Signals:     stats.Signals,
		Blocked:     stats.Blocked,
		MaxScore:    stats.MaxTotal,
		AvgBand:     stats.AvgBand(),
		AvgBarrier:  stats.AvgBarrier(),
		AvgDepth:    stats.AvgDepth(),
		AvgPrice:    stats.AvgPrice(),
		AvgTotal:    stats.AvgTotal(),
		Outcome:     OutcomeFor(pos),
		FinalPrice:  finalPrice,
		CreatedMs:   createdMs,
	}

	if pos != nil {
		rec.PositionID = &pos.PositionID
		dir := string(pos.Direction)
		rec.Direction = &dir
		rec.EntryPrice = &pos.EntryPrice
		rec.EntrySize = &pos.EntrySize
		rec.CloseAttempts = pos.CloseAttempts
		rec.Settled = pos.Settled
		if pos.Closed {
			rec.ClosePrice = &pos.ClosePrice
			reason := string(pos.CloseReason)
			rec.CloseReason = &reason
			pnl := pos.PnL
			rec.PnL = &pnl
		}
	}
	return rec
}

// TickRecord is one evaluated tick, persisted for offline analysis.
// High-volume append-only data; keyed by (window_id, timestamp_ms).
type TickRecord struct {
	WindowID    string
	TimestampMs int64

	Price       float64 // reference price used for this tick
	Strike      float64
	MinutesLeft float64

	// Indicator snapshot; zero with IndicatorsOK=false means insufficient.
	IndicatorsOK bool
	BandUpper    float64
	BandMiddle   float64
	BandLower    float64
	ATR          float64
	RSI          float64

	Direction     string
	BandScore     int
	BarrierScore  int
	DepthScore    int
	PriceScore    int
	Total         int
	RawTotal      float64
	Killed        bool
	GatePassed    bool
	GateFailures  string // comma-joined names of failed constraints
	ContractPrice float64
	DepthRatio    float64

	Action string // action taken after evaluation
}

// FillIndicators copies the available indicator values into the record.
func (r *TickRecord) FillIndicators(set *IndicatorSet) {
	if set.HasBands() {
		r.IndicatorsOK = true
		r.BandUpper = set.Bands.Upper
		r.BandMiddle = set.Bands.Middle
		r.BandLower = set.Bands.Lower
	}
	if set.HasATR() {
		r.ATR = *set.ATR
	}
	if set.RSI != nil {
		r.RSI = *set.RSI
	}
}

// Tick action codes.
const (
	TickActionNone        = "NONE"
	TickActionEntry       = "ENTRY"
	TickActionEntryFailed = "ENTRY_FAILED"
	TickActionBlocked     = "BLOCKED"
	TickActionCloseTry    = "CLOSE_ATTEMPT"
	TickActionClosed      = "CLOSED"
	TickActionSettlement  = "SETTLEMENT"
)
