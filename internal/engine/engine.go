// Package engine runs the trading loop: one 15-minute window at a time,
// evaluated on fixed-interval ticks. Each tick fans out the independent
// market reads concurrently, scores the snapshot, consults the gate and
// drives the per-window position machine. Ticks are strictly sequential;
// a tick that overruns the interval delays the next one, it is never
// overlapped.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
	"updown-trader/internal/gate"
	"updown-trader/internal/indicator"
	"updown-trader/internal/position"
	"updown-trader/internal/scoring"
	"updown-trader/internal/storage"
)

// PriceFeed supplies the reference price and candle history.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (float64, bool)
	RecentCandles(ctx context.Context, limit int) (domain.CandleSeries, bool)
}

// ContractPricer supplies top-of-book quotes for contract tokens.
type ContractPricer interface {
	Quote(ctx context.Context, tokenID string) (*domain.Quote, error)
}

// UnderlyingBook supplies depth snapshots of the underlying pair.
type UnderlyingBook interface {
	BookSnapshot(ctx context.Context) (*domain.BookSnapshot, error)
}

// WindowFinder resolves the currently tradable market window, (nil, nil)
// when none is listed yet.
type WindowFinder interface {
	FindActiveWindow(ctx context.Context, now time.Time) (*domain.MarketWindow, error)
}

// Options configures an Engine. Zero durations and counts take the
// defaults noted on each field.
type Options struct {
	Finder WindowFinder
	Feed   PriceFeed
	Pricer ContractPricer
	Book   UnderlyingBook // optional; nil leaves the depth component unavailable
	Venue  position.Venue

	// Optional reporting sinks; the engine only ever writes to them.
	WindowStore storage.WindowRecordStore
	TickStore   storage.TickRecordStore

	Scoring   scoring.Config
	Gate      gate.Config
	Position  position.Config
	Indicator indicator.Params

	TickInterval   time.Duration // default 5s
	NextWindowWait time.Duration // default 10s
	FetchTimeout   time.Duration // default 4s, per fanned-out call
	FetchLimit     int           // default 4 concurrent reads

	CandleHistory int // default 60 one-minute candles

	// Entry evaluation runs only while minutes-to-expiry is inside
	// [MinMinutesLeft, MaxMinutesLeft]. Exit supervision and settlement
	// ignore the bounds.
	MinMinutesLeft float64 // default 1
	MaxMinutesLeft float64 // default 14

	Clock  func() time.Time // test seam; default time.Now
	Logger zerolog.Logger
}

// Engine owns the scheduler loop and the session counters.
type Engine struct {
	finder WindowFinder
	feed   PriceFeed
	pricer ContractPricer
	book   UnderlyingBook
	venue  position.Venue

	windowStore storage.WindowRecordStore
	tickStore   storage.TickRecordStore

	scorer *scoring.Engine
	gate   *gate.Gate
	posCfg position.Config
	params indicator.Params

	tickInterval   time.Duration
	nextWindowWait time.Duration
	fetchTimeout   time.Duration
	fetchLimit     int
	candleHistory  int
	minMinutes     float64
	maxMinutes     float64

	now func() time.Time
	log zerolog.Logger

	session domain.SessionStats
}

// New creates an engine after validating every configuration block.
func New(opts Options) (*Engine, error) {
	if opts.Finder == nil {
		return nil, fmt.Errorf("engine needs a window finder")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("engine needs a price feed")
	}
	if opts.Pricer == nil {
		return nil, fmt.Errorf("engine needs a contract pricer")
	}
	if opts.Venue == nil {
		return nil, fmt.Errorf("engine needs a venue")
	}

	scorer, err := scoring.NewEngine(opts.Scoring)
	if err != nil {
		return nil, err
	}
	g, err := gate.NewGate(opts.Gate)
	if err != nil {
		return nil, err
	}
	if err := opts.Position.Validate(); err != nil {
		return nil, fmt.Errorf("position config: %w", err)
	}

	e := &Engine{
		finder:         opts.Finder,
		feed:           opts.Feed,
		pricer:         opts.Pricer,
		book:           opts.Book,
		venue:          opts.Venue,
		windowStore:    opts.WindowStore,
		tickStore:      opts.TickStore,
		scorer:         scorer,
		gate:           g,
		posCfg:         opts.Position,
		params:         opts.Indicator,
		tickInterval:   opts.TickInterval,
		nextWindowWait: opts.NextWindowWait,
		fetchTimeout:   opts.FetchTimeout,
		fetchLimit:     opts.FetchLimit,
		candleHistory:  opts.CandleHistory,
		minMinutes:     opts.MinMinutesLeft,
		maxMinutes:     opts.MaxMinutesLeft,
		now:            opts.Clock,
		log:            opts.Logger.With().Str("component", "engine").Logger(),
	}

	if e.tickInterval <= 0 {
		e.tickInterval = 5 * time.Second
	}
	if e.nextWindowWait <= 0 {
		e.nextWindowWait = 10 * time.Second
	}
	if e.fetchTimeout <= 0 {
		e.fetchTimeout = 4 * time.Second
	}
	if e.fetchLimit <= 0 {
		e.fetchLimit = 4
	}
	if e.candleHistory <= 0 {
		e.candleHistory = 60
	}
	if e.minMinutes <= 0 {
		e.minMinutes = 1
	}
	if e.maxMinutes <= 0 {
		e.maxMinutes = 14
	}
	if e.params == (indicator.Params{}) {
		e.params = indicator.DefaultParams()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Session returns a copy of the cumulative session counters.
func (e *Engine) Session() domain.SessionStats { return e.session }

// Run drives the loop until the context is cancelled: discover the
// active window, trade it to resolution, repeat. Returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().
		Dur("tick_interval", e.tickInterval).
		Dur("next_window_wait", e.nextWindowWait).
		Str("scoring_preset", e.scorer.Config().Name).
		Msg("engine started")

	for {
		window, err := e.awaitWindow(ctx)
		if err != nil {
			e.log.Info().
				Int("windows", e.session.Windows).
				Float64("gross_pnl", e.session.GrossPnL).
				Msg("engine stopped")
			return err
		}
		if err := e.runWindow(ctx, window); err != nil {
			e.log.Info().
				Int("windows", e.session.Windows).
				Float64("gross_pnl", e.session.GrossPnL).
				Msg("engine stopped")
			return err
		}
	}
}

// awaitWindow polls the directory until a tradable window appears or the
// context ends. Lookup failures are logged and retried; only cancellation
// escapes.
func (e *Engine) awaitWindow(ctx context.Context) (*domain.MarketWindow, error) {
	for {
		window, err := e.finder.FindActiveWindow(ctx, e.now())
		if err != nil {
			e.log.Warn().Err(err).Msg("window lookup failed")
		} else if window != nil {
			return window, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.nextWindowWait):
		}
	}
}

// runWindow trades one window to resolution. The first tick runs
// immediately; later ticks follow the ticker, which drops firings a slow
// tick missed.
func (e *Engine) runWindow(ctx context.Context, window *domain.MarketWindow) error {
	machine, err := position.NewMachine(window, e.venue, e.posCfg, e.log)
	if err != nil {
		return err
	}

	r := &windowRun{
		window:  window,
		machine: machine,
		stats:   domain.NewWindowStatistics(window.WindowID),
	}
	e.log.Info().
		Str("window_id", window.WindowID).
		Str("slug", window.Slug).
		Float64("strike", window.Strike).
		Time("close_time", window.CloseTime).
		Msg("trading window")

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		e.safeTick(ctx, r)
		if r.done {
			break
		}
		select {
		case <-ctx.Done():
			e.abandonWindow(r)
			return ctx.Err()
		case <-ticker.C:
		}
	}

	e.resolveWindow(ctx, r)
	return nil
}
