package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"updown-trader/internal/domain"
	"updown-trader/internal/gate"
	"updown-trader/internal/indicator"
	"updown-trader/internal/position"
	"updown-trader/internal/scoring"
	"updown-trader/internal/storage/memory"
)

var windowOpen = time.Date(2025, time.August, 25, 6, 45, 0, 0, time.UTC)

func testWindow() *domain.MarketWindow {
	return &domain.MarketWindow{
		WindowID:    "w-test",
		Slug:        "btc-updown-15m-1756104300",
		Question:    "Bitcoin Up or Down?",
		Strike:      109000,
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		OpenTime:    windowOpen,
		CloseTime:   windowOpen.Add(15 * time.Minute),
	}
}

// alternatingCandles builds n one-minute candles whose closes alternate
// two dollars below and above last, ending two above so the alignment
// shift is exercised. The spread gives a flat true range of ten.
func alternatingCandles(n int, last float64) domain.CandleSeries {
	series := make(domain.CandleSeries, n)
	for i := range series {
		c := last - 2
		if i%2 == 1 {
			c = last + 2
		}
		series[i] = domain.Candle{
			TimestampMs: windowOpen.Add(time.Duration(i-n) * time.Minute).UnixMilli(),
			Open:        c,
			High:        c + 5,
			Low:         c - 5,
			Close:       c,
			Volume:      12,
		}
	}
	return series
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type fakeFinder struct {
	windows []*domain.MarketWindow
	errs    []error
	calls   int
	onEmpty func()
}

func (f *fakeFinder) FindActiveWindow(_ context.Context, _ time.Time) (*domain.MarketWindow, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.windows) == 0 {
		if f.onEmpty != nil {
			f.onEmpty()
		}
		return nil, nil
	}
	w := f.windows[0]
	f.windows = f.windows[1:]
	return w, nil
}

type fakeFeed struct {
	price    float64
	priceOK  bool
	series   domain.CandleSeries
	seriesOK bool
}

func (f *fakeFeed) LatestPrice(_ context.Context) (float64, bool) { return f.price, f.priceOK }

func (f *fakeFeed) RecentCandles(_ context.Context, _ int) (domain.CandleSeries, bool) {
	return f.series, f.seriesOK
}

type fakePricer struct {
	quotes map[string]*domain.Quote
	err    error
	panics bool
}

func (p *fakePricer) Quote(_ context.Context, tokenID string) (*domain.Quote, error) {
	if p.panics {
		panic("malformed quote payload")
	}
	if p.err != nil {
		return nil, p.err
	}
	q, ok := p.quotes[tokenID]
	if !ok {
		return nil, errors.New("no quote for token")
	}
	return q, nil
}

type fakeBook struct {
	book *domain.BookSnapshot
	err  error
}

func (b *fakeBook) BookSnapshot(_ context.Context) (*domain.BookSnapshot, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.book, nil
}

type fakeVenue struct {
	buyErr  error
	sellErr error
	holdErr error

	holdings float64

	buys  int
	sells int

	lastBuyPrice, lastBuySize   float64
	lastSellPrice, lastSellSize float64
}

func (v *fakeVenue) Buy(_ context.Context, _ string, price, size float64) (*position.Fill, error) {
	v.buys++
	v.lastBuyPrice, v.lastBuySize = price, size
	if v.buyErr != nil {
		return nil, v.buyErr
	}
	return &position.Fill{OrderID: "buy-1", Price: price, Size: size}, nil
}

func (v *fakeVenue) Sell(_ context.Context, _ string, price, size float64) (*position.Fill, error) {
	v.sells++
	v.lastSellPrice, v.lastSellSize = price, size
	if v.sellErr != nil {
		return nil, v.sellErr
	}
	return &position.Fill{OrderID: "sell-1", Price: price, Size: size}, nil
}

func (v *fakeVenue) Holdings(_ context.Context, _ string) (float64, error) {
	if v.holdErr != nil {
		return 0, v.holdErr
	}
	return v.holdings, nil
}

// fixtures bundles the collaborators in their clean-signal configuration:
// price 300 above the strike, sixty candles of calm history, a supportive
// underlying book and a cheap favored contract.
type fixtures struct {
	finder *fakeFinder
	feed   *fakeFeed
	pricer *fakePricer
	book   *fakeBook
	venue  *fakeVenue
}

func defaultFixtures() *fixtures {
	return &fixtures{
		finder: &fakeFinder{},
		feed: &fakeFeed{
			price:    109300,
			priceOK:  true,
			series:   alternatingCandles(60, 109300),
			seriesOK: true,
		},
		pricer: &fakePricer{quotes: map[string]*domain.Quote{
			"tok-up":   {TokenID: "tok-up", Bid: 0.55, Ask: 0.65, TimestampMs: 1},
			"tok-down": {TokenID: "tok-down", Bid: 0.30, Ask: 0.40, TimestampMs: 1},
		}},
		book: &fakeBook{book: &domain.BookSnapshot{
			Symbol: "BTCUSDT",
			Bids:   []domain.PriceLevel{{Price: 109295, Size: 50}},
			Asks:   []domain.PriceLevel{{Price: 109400, Size: 100}},
		}},
		venue: &fakeVenue{holdings: 153.8461},
	}
}

func newTestEngine(t *testing.T, f *fixtures, opts Options) *Engine {
	t.Helper()
	opts.Finder = f.finder
	opts.Feed = f.feed
	opts.Pricer = f.pricer
	opts.Book = f.book
	opts.Venue = f.venue
	if opts.Scoring.Name == "" {
		opts.Scoring = scoring.DefaultConfig()
	}
	if opts.Gate == (gate.Config{}) {
		opts.Gate = gate.DefaultConfig()
	}
	if opts.Position == (position.Config{}) {
		opts.Position = position.DefaultConfig()
	}
	opts.Logger = zerolog.Nop()
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func newRun(t *testing.T, e *Engine, w *domain.MarketWindow) *windowRun {
	t.Helper()
	machine, err := position.NewMachine(w, e.venue, e.posCfg, zerolog.Nop())
	require.NoError(t, err)
	return &windowRun{
		window:  w,
		machine: machine,
		stats:   domain.NewWindowStatistics(w.WindowID),
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	f := defaultFixtures()
	base := Options{
		Scoring:  scoring.DefaultConfig(),
		Gate:     gate.DefaultConfig(),
		Position: position.DefaultConfig(),
	}

	opts := base
	opts.Feed, opts.Pricer, opts.Venue = f.feed, f.pricer, f.venue
	_, err := New(opts)
	assert.ErrorContains(t, err, "window finder")

	opts = base
	opts.Finder, opts.Pricer, opts.Venue = f.finder, f.pricer, f.venue
	_, err = New(opts)
	assert.ErrorContains(t, err, "price feed")

	opts = base
	opts.Finder, opts.Feed, opts.Venue = f.finder, f.feed, f.venue
	_, err = New(opts)
	assert.ErrorContains(t, err, "contract pricer")

	opts = base
	opts.Finder, opts.Feed, opts.Pricer = f.finder, f.feed, f.pricer
	_, err = New(opts)
	assert.ErrorContains(t, err, "venue")
}

func TestNew_RejectsInvalidConfigs(t *testing.T) {
	f := defaultFixtures()

	opts := Options{
		Finder: f.finder, Feed: f.feed, Pricer: f.pricer, Venue: f.venue,
		Scoring:  scoring.DefaultConfig(),
		Gate:     gate.Config{PriceFloor: 0.9, PriceCeiling: 0.5},
		Position: position.DefaultConfig(),
	}
	_, err := New(opts)
	assert.ErrorContains(t, err, "gate config")

	opts.Gate = gate.DefaultConfig()
	opts.Position = position.Config{TradeNotional: -1}
	_, err = New(opts)
	assert.ErrorContains(t, err, "position config")
}

func TestNew_AppliesDefaults(t *testing.T) {
	f := defaultFixtures()
	e := newTestEngine(t, f, Options{})

	assert.Equal(t, 5*time.Second, e.tickInterval)
	assert.Equal(t, 10*time.Second, e.nextWindowWait)
	assert.Equal(t, 4*time.Second, e.fetchTimeout)
	assert.Equal(t, 4, e.fetchLimit)
	assert.Equal(t, 60, e.candleHistory)
	assert.Equal(t, 1.0, e.minMinutes)
	assert.Equal(t, 14.0, e.maxMinutes)
	assert.Equal(t, indicator.DefaultParams(), e.params)
	assert.NotNil(t, e.now)
}

func TestEngine_AwaitWindowRetriesLookupFailure(t *testing.T) {
	f := defaultFixtures()
	w := testWindow()
	f.finder.errs = []error{errors.New("directory down")}
	f.finder.windows = []*domain.MarketWindow{w}

	e := newTestEngine(t, f, Options{NextWindowWait: time.Millisecond})

	got, err := e.awaitWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w, got)
	assert.Equal(t, 2, f.finder.calls)
}

func TestEngine_AwaitWindowStopsOnCancel(t *testing.T) {
	f := defaultFixtures()
	e := newTestEngine(t, f, Options{NextWindowWait: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.awaitWindow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.finder.calls)
}

// An already-expired window settles on its first tick, resolves, and the
// loop goes back to the directory; cancelling there stops the run.
func TestEngine_RunResolvesExpiredWindow(t *testing.T) {
	f := defaultFixtures()
	w := testWindow()
	w.OpenTime = time.Now().Add(-31 * time.Minute)
	w.CloseTime = time.Now().Add(-16 * time.Minute)
	f.finder.windows = []*domain.MarketWindow{w}
	f.feed.price = 109400

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.finder.onEmpty = cancel

	windows := memory.NewWindowRecordStore()
	ticks := memory.NewTickRecordStore()
	e := newTestEngine(t, f, Options{
		WindowStore:    windows,
		TickStore:      ticks,
		TickInterval:   time.Millisecond,
		NextWindowWait: time.Millisecond,
	})

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, f.finder.calls)

	session := e.Session()
	assert.Equal(t, 1, session.Windows)
	assert.Equal(t, 1, session.NoSignal)
	assert.Zero(t, session.Signals)

	rec, err := windows.GetByID(context.Background(), w.WindowID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoSignal, rec.Outcome)
	require.NotNil(t, rec.FinalPrice)
	assert.InDelta(t, 109400, *rec.FinalPrice, 1e-9)
	assert.Nil(t, rec.PositionID)

	rows, err := ticks.GetByWindowID(context.Background(), w.WindowID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TickActionSettlement, rows[0].Action)
}
