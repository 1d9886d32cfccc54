package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"updown-trader/internal/domain"
	"updown-trader/internal/feed"
	"updown-trader/internal/gate"
	"updown-trader/internal/indicator"
	"updown-trader/internal/observability"
	"updown-trader/internal/position"
	"updown-trader/internal/scoring"
)

// windowRun is the per-window loop state. Everything in it dies with the
// window except what resolveWindow folds into the session.
type windowRun struct {
	window  *domain.MarketWindow
	machine *position.Machine
	stats   *domain.WindowStatistics
	ticks   []*domain.TickRecord

	pos        *domain.Position // settlement result, nil when no position existed
	finalPrice *float64
	done       bool
}

// snapshot holds whatever the fanned-out reads produced this tick. Each
// field is written by exactly one worker; absence degrades the tick, it
// never fails it.
type snapshot struct {
	price    float64
	priceOK  bool
	series   domain.CandleSeries
	seriesOK bool
	up       *domain.Quote
	down     *domain.Quote
	book     *domain.BookSnapshot
}

// quoteFor returns the fetched quote for a direction.
func (s *snapshot) quoteFor(dir domain.Direction) *domain.Quote {
	if dir == domain.DirectionUp {
		return s.up
	}
	return s.down
}

// safeTick runs one tick with panic recovery at the boundary: a tick
// poisoned by a malformed payload is skipped and the loop continues.
func (e *Engine) safeTick(ctx context.Context, r *windowRun) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			e.log.Error().Interface("panic", v).Str("window_id", r.window.WindowID).Msg("tick panicked, skipped")
			observability.RecordTickError("panic")
		}
		observability.RecordTick(time.Since(start).Seconds())
	}()

	e.tick(ctx, r)
	observability.DefaultMetrics.LastSuccessfulTick.Set(float64(e.now().Unix()))
}

// tick advances the window by one step: settle after expiry, supervise
// an open position, or evaluate an entry inside the trading sub-window.
func (e *Engine) tick(ctx context.Context, r *windowRun) {
	now := e.now()

	if r.window.Expired(now) {
		e.settleTick(ctx, r, now)
		return
	}

	switch r.machine.State() {
	case domain.StateOpen:
		e.superviseTick(ctx, r, now)
	case domain.StateFlat:
		minutesLeft := r.window.MinutesToExpiry(now)
		if minutesLeft > e.maxMinutes || minutesLeft < e.minMinutes {
			e.log.Debug().Float64("minutes_left", minutesLeft).Msg("outside trading sub-window")
			return
		}
		e.evaluateTick(ctx, r, now)
	default:
		// Closed before expiry: wait for settlement.
	}
}

// evaluateTick runs the entry pipeline: snapshot, indicators, score,
// gate, and on a clean signal the entry attempt. Partial data degrades
// the evaluation; only a missing reference price skips the tick.
func (e *Engine) evaluateTick(ctx context.Context, r *windowRun, now time.Time) {
	snap := e.fetchSnapshot(ctx, r.window)
	if !snap.priceOK {
		e.log.Warn().Msg("no reference price, tick skipped")
		observability.RecordTickError("price")
		return
	}

	series := snap.series
	if snap.seriesOK {
		series = feed.Align(series, snap.price)
	}
	set := indicator.Compute(series, e.params)
	e.logDiagnostics(r.window, snap.price, set)

	dir := scoring.Favored(snap.price, r.window.Strike)
	minutesLeft := r.window.MinutesToExpiry(now)

	var contractPrice *float64
	if q := snap.quoteFor(dir); q.HasAsk() {
		ask := q.Ask
		contractPrice = &ask
	}

	var depthRatio *float64
	scan, scanOK := scoring.ScanDepth(snap.book, snap.price, set.ATR, dir)
	if scanOK {
		ratio := scan.Ratio
		depthRatio = &ratio
	}

	breakdown := e.scorer.Evaluate(scoring.Input{
		Price:         snap.price,
		Strike:        r.window.Strike,
		Indicators:    set,
		MinutesLeft:   minutesLeft,
		ContractPrice: contractPrice,
		DepthRatio:    depthRatio,
	})
	observability.RecordEvaluation(breakdown.Total, breakdown.Killed)

	gateRes := e.gate.Evaluate(gate.Input{
		ContractPrice: contractPrice,
		DepthRatio:    depthRatio,
	})

	aboveThreshold := breakdown.Total >= e.scorer.Threshold()
	signal := aboveThreshold && gateRes.Passed()
	blocked := aboveThreshold && !gateRes.Passed()

	action := domain.TickActionNone
	switch {
	case blocked:
		action = domain.TickActionBlocked
		for _, c := range gateRes.Constraints {
			if !c.Pass {
				observability.RecordBlocked(c.Name)
			}
		}
		e.log.Info().
			Int("score", breakdown.Total).
			Str("failures", gateRes.Failures()).
			Msg("signal blocked by gate")
	case signal:
		observability.RecordSignal(string(dir))
		if _, err := r.machine.TryEnter(ctx, dir, *contractPrice, now.UnixMilli()); err != nil {
			action = domain.TickActionEntryFailed
			observability.RecordTickError("entry")
		} else {
			action = domain.TickActionEntry
			observability.DefaultMetrics.OpenPositions.Set(1)
		}
	}

	r.stats.Record(breakdown, signal, blocked)

	rec := e.newTickRecord(r, now, snap.price)
	rec.MinutesLeft = minutesLeft
	rec.FillIndicators(set)
	rec.Direction = string(dir)
	rec.BandScore = breakdown.Band.Score
	rec.BarrierScore = breakdown.Barrier.Score
	rec.DepthScore = breakdown.Depth.Score
	rec.PriceScore = breakdown.Price.Score
	rec.Total = breakdown.Total
	rec.RawTotal = breakdown.RawTotal
	rec.Killed = breakdown.Killed
	rec.GatePassed = gateRes.Passed()
	rec.GateFailures = gateRes.Failures()
	if contractPrice != nil {
		rec.ContractPrice = *contractPrice
	}
	if depthRatio != nil {
		rec.DepthRatio = *depthRatio
	}
	rec.Action = action
	r.ticks = append(r.ticks, rec)
}

// superviseTick watches an open position: exit triggers in priority
// order, close attempt on the first that fires. A failed close leaves
// the position open for the next tick.
func (e *Engine) superviseTick(ctx context.Context, r *windowRun, now time.Time) {
	snap := e.fetchSnapshot(ctx, r.window)
	pos := r.machine.Position()

	var bid *float64
	if q := snap.quoteFor(pos.Direction); q.HasBid() {
		v := q.Bid
		bid = &v
	}
	var underlying *float64
	if snap.priceOK {
		v := snap.price
		underlying = &v
	}

	action := domain.TickActionNone
	reason := r.machine.ExitTrigger(position.ExitInput{ContractBid: bid, Underlying: underlying})
	if reason != "" {
		bidVal := 0.0
		if bid != nil {
			bidVal = *bid
		}
		err := r.machine.AttemptClose(ctx, reason, bidVal, now.UnixMilli())
		observability.RecordCloseAttempt(err == nil)
		if err != nil {
			action = domain.TickActionCloseTry
		} else {
			action = domain.TickActionClosed
			observability.DefaultMetrics.OpenPositions.Set(0)
		}
	}

	rec := e.newTickRecord(r, now, snap.price)
	rec.MinutesLeft = r.window.MinutesToExpiry(now)
	rec.Direction = string(pos.Direction)
	if bid != nil {
		rec.ContractPrice = *bid
	}
	rec.Action = action
	r.ticks = append(r.ticks, rec)
}

// settleTick resolves the window at expiry. Settlement needs the final
// reference price; while it is unavailable the tick retries, the
// position is never abandoned.
func (e *Engine) settleTick(ctx context.Context, r *windowRun, now time.Time) {
	cctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	price, ok := e.feed.LatestPrice(cctx)
	cancel()
	if !ok {
		e.log.Warn().Msg("no final price for settlement, retrying")
		observability.RecordTickError("settlement_price")
		return
	}

	pos := r.machine.Settle(price, now.UnixMilli())
	r.pos = pos
	final := price
	r.finalPrice = &final
	observability.DefaultMetrics.OpenPositions.Set(0)

	rec := e.newTickRecord(r, now, price)
	rec.MinutesLeft = r.window.MinutesToExpiry(now)
	if pos != nil {
		rec.Direction = string(pos.Direction)
	}
	rec.Action = domain.TickActionSettlement
	r.ticks = append(r.ticks, rec)

	r.done = true
}

// newTickRecord starts a record with the fields every path shares.
func (e *Engine) newTickRecord(r *windowRun, now time.Time, price float64) *domain.TickRecord {
	return &domain.TickRecord{
		WindowID:    r.window.WindowID,
		TimestampMs: now.UnixMilli(),
		Price:       price,
		Strike:      r.window.Strike,
	}
}

// logDiagnostics emits the per-tick indicator line. RSI is diagnostic
// only; it never enters the score.
func (e *Engine) logDiagnostics(w *domain.MarketWindow, price float64, set *domain.IndicatorSet) {
	ev := e.log.Debug().Float64("price", price).Float64("strike", w.Strike)
	if set.HasBands() {
		ev = ev.Float64("bb_upper", set.Bands.Upper).Float64("bb_lower", set.Bands.Lower)
	}
	if set.HasATR() {
		ev = ev.Float64("atr", *set.ATR)
	}
	if set.RSI != nil {
		ev = ev.Float64("rsi", *set.RSI)
	}
	ev.Msg("tick indicators")
}

// fetchSnapshot issues the independent reads concurrently, bounded by
// the fetch limit, each under its own timeout. It always returns; the
// snapshot records what arrived.
func (e *Engine) fetchSnapshot(ctx context.Context, w *domain.MarketWindow) *snapshot {
	snap := &snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchLimit)

	g.Go(e.guarded(gctx, "price", func(cctx context.Context) {
		snap.price, snap.priceOK = e.feed.LatestPrice(cctx)
	}))
	g.Go(e.guarded(gctx, "candles", func(cctx context.Context) {
		snap.series, snap.seriesOK = e.feed.RecentCandles(cctx, e.candleHistory)
	}))
	g.Go(e.guarded(gctx, "up_quote", func(cctx context.Context) {
		q, err := e.pricer.Quote(cctx, w.UpTokenID)
		if err != nil {
			e.log.Debug().Err(err).Msg("up quote unavailable")
			return
		}
		snap.up = q
	}))
	g.Go(e.guarded(gctx, "down_quote", func(cctx context.Context) {
		q, err := e.pricer.Quote(cctx, w.DownTokenID)
		if err != nil {
			e.log.Debug().Err(err).Msg("down quote unavailable")
			return
		}
		snap.down = q
	}))
	if e.book != nil {
		g.Go(e.guarded(gctx, "book", func(cctx context.Context) {
			b, err := e.book.BookSnapshot(cctx)
			if err != nil {
				e.log.Debug().Err(err).Msg("depth snapshot unavailable")
				return
			}
			snap.book = b
		}))
	}

	_ = g.Wait()
	return snap
}

// guarded wraps one fanned-out read with its timeout and a local panic
// recovery. A provider that panics on a malformed payload costs this
// tick its value, not the process.
func (e *Engine) guarded(ctx context.Context, name string, f func(context.Context)) func() error {
	return func() error {
		defer func() {
			if v := recover(); v != nil {
				e.log.Error().Interface("panic", v).Str("read", name).Msg("fetch panicked")
				observability.RecordTickError(name)
			}
		}()
		cctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
		f(cctx)
		return nil
	}
}
