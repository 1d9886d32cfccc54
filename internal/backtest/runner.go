package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
	"updown-trader/internal/gate"
	"updown-trader/internal/idhash"
	"updown-trader/internal/indicator"
	"updown-trader/internal/market"
	"updown-trader/internal/position"
	"updown-trader/internal/scoring"
	"updown-trader/internal/storage"
)

// CandleLoader supplies the historical minute candles for a replay.
type CandleLoader interface {
	HistoryRange(ctx context.Context, startMs, endMs int64) (domain.CandleSeries, error)
}

// Options configures a Runner. Zero config blocks take the replay
// defaults noted on each field.
type Options struct {
	Candles CandleLoader

	// Optional record sinks, same contract as the live engine's.
	WindowStore storage.WindowRecordStore
	TickStore   storage.TickRecordStore

	Scoring   scoring.Config  // default: nobook preset
	Gate      gate.Config     // default: canonical prices, depth constraint off
	Position  position.Config // default: canonical sizing and exits
	Indicator indicator.Params
	Quotes    QuoteModel

	TickStep      time.Duration // default 5s of replay time per tick
	CandleHistory int           // default 60 one-minute candles

	MinMinutesLeft float64 // default 1
	MaxMinutesLeft float64 // default 14

	SlugPrefix string // default "btc-updown-15m"
	Logger     zerolog.Logger
}

// Result is the aggregate outcome of one replay.
type Result struct {
	StartMs int64
	EndMs   int64

	Skipped int // windows without enough prior history to price

	Session domain.SessionStats
	Records []*domain.WindowRecord
}

// Runner replays quarter-hour windows over a candle range.
type Runner struct {
	candles CandleLoader
	venue   *SimVenue

	windowStore storage.WindowRecordStore
	tickStore   storage.TickRecordStore

	scorer *scoring.Engine
	gate   *gate.Gate
	posCfg position.Config
	params indicator.Params
	quotes QuoteModel

	tickStep      time.Duration
	candleHistory int
	minMinutes    float64
	maxMinutes    float64

	slugPrefix string
	log        zerolog.Logger
}

// NewRunner creates a replay runner after validating every block.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Candles == nil {
		return nil, fmt.Errorf("backtest needs a candle loader")
	}

	if opts.Scoring == (scoring.Config{}) {
		opts.Scoring = scoring.NoBookConfig()
	}
	scorer, err := scoring.NewEngine(opts.Scoring)
	if err != nil {
		return nil, err
	}

	if opts.Gate == (gate.Config{}) {
		opts.Gate = gate.DefaultConfig()
		// A replay has no underlying book; the depth constraint would
		// block every entry.
		opts.Gate.MinDepthRatio = 0
	}
	g, err := gate.NewGate(opts.Gate)
	if err != nil {
		return nil, err
	}

	if opts.Position == (position.Config{}) {
		opts.Position = position.DefaultConfig()
	}
	if err := opts.Position.Validate(); err != nil {
		return nil, fmt.Errorf("position config: %w", err)
	}

	r := &Runner{
		candles:       opts.Candles,
		venue:         NewSimVenue(),
		windowStore:   opts.WindowStore,
		tickStore:     opts.TickStore,
		scorer:        scorer,
		gate:          g,
		posCfg:        opts.Position,
		params:        opts.Indicator,
		quotes:        opts.Quotes,
		tickStep:      opts.TickStep,
		candleHistory: opts.CandleHistory,
		minMinutes:    opts.MinMinutesLeft,
		maxMinutes:    opts.MaxMinutesLeft,
		slugPrefix:    opts.SlugPrefix,
		log:           opts.Logger.With().Str("component", "backtest").Logger(),
	}

	if r.quotes == (QuoteModel{}) {
		r.quotes = DefaultQuoteModel()
	}
	if r.tickStep <= 0 {
		r.tickStep = 5 * time.Second
	}
	if r.candleHistory <= 0 {
		r.candleHistory = 60
	}
	if r.minMinutes <= 0 {
		r.minMinutes = 1
	}
	if r.maxMinutes <= 0 {
		r.maxMinutes = 14
	}
	if r.params == (indicator.Params{}) {
		r.params = indicator.DefaultParams()
	}
	if r.slugPrefix == "" {
		r.slugPrefix = "btc-updown-15m"
	}
	return r, nil
}

// Venue returns the simulated venue backing the replay.
func (r *Runner) Venue() *SimVenue { return r.venue }

// Run replays every whole window inside [startMs, endMs].
// Steps:
//  1. Load candles, with indicator lookback before the first window
//  2. Walk quarter-hour windows; strike = close of the prior candle
//  3. Tick each window from open to settlement in replay time
//  4. Persist window and tick records, fold session counters
func (r *Runner) Run(ctx context.Context, startMs, endMs int64) (*Result, error) {
	if startMs >= endMs {
		return nil, fmt.Errorf("replay range start %d not before end %d", startMs, endMs)
	}

	firstOpen := market.QuarterStart(time.UnixMilli(startMs))
	if firstOpen.UnixMilli() < startMs {
		firstOpen = firstOpen.Add(market.WindowLength)
	}

	lookback := time.Duration(r.candleHistory+1) * time.Minute
	candles, err := r.candles.HistoryRange(ctx, firstOpen.Add(-lookback).UnixMilli(), endMs)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle history in range")
	}
	t := newTape(candles)

	res := &Result{StartMs: startMs, EndMs: endMs}
	r.log.Info().
		Time("first_open", firstOpen).
		Int("candles", len(candles)).
		Str("scoring_preset", r.scorer.Config().Name).
		Msg("replay started")

	for open := firstOpen; open.Add(market.WindowLength).UnixMilli() <= endMs; open = open.Add(market.WindowLength) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		strike, ok := t.priceAt(open.UnixMilli())
		if !ok {
			res.Skipped++
			continue
		}
		w := r.buildWindow(open, strike)

		rec, err := r.simulateWindow(ctx, w, t, &res.Session)
		if err != nil {
			return res, err
		}
		res.Records = append(res.Records, rec)
	}

	r.log.Info().
		Int("windows", res.Session.Windows).
		Int("skipped", res.Skipped).
		Int("wins", res.Session.Wins).
		Int("losses", res.Session.Losses).
		Float64("gross_pnl", res.Session.GrossPnL).
		Msg("replay finished")
	return res, nil
}

// buildWindow synthesizes the market window a venue would have listed
// for this quarter-hour.
func (r *Runner) buildWindow(open time.Time, strike float64) *domain.MarketWindow {
	slug := fmt.Sprintf("%s-%d", r.slugPrefix, open.Unix())
	return &domain.MarketWindow{
		WindowID:    idhash.ComputeWindowID(slug),
		Slug:        slug,
		Question:    fmt.Sprintf("Up or down from %.2f by %s?", strike, open.Add(market.WindowLength).Format(time.RFC3339)),
		Strike:      strike,
		UpTokenID:   slug + "-up",
		DownTokenID: slug + "-down",
		OpenTime:    open,
		CloseTime:   open.Add(market.WindowLength),
	}
}
