package backtest

import (
	"context"
	"fmt"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/gate"
	"updown-trader/internal/indicator"
	"updown-trader/internal/position"
	"updown-trader/internal/scoring"
)

// simulateWindow ticks one window from open to settlement in replay
// time and returns its durable record. The step sequence matches the
// live loop: evaluate entries inside the trading sub-window, supervise
// an open position, settle at expiry.
func (r *Runner) simulateWindow(ctx context.Context, w *domain.MarketWindow, t *tape, session *domain.SessionStats) (*domain.WindowRecord, error) {
	machine, err := position.NewMachine(w, r.venue, r.posCfg, r.log)
	if err != nil {
		return nil, err
	}
	stats := domain.NewWindowStatistics(w.WindowID)
	var ticks []*domain.TickRecord
	var pos *domain.Position
	var finalPrice *float64

	for now := w.OpenTime; ; now = now.Add(r.tickStep) {
		if w.Expired(now) {
			price, ok := t.priceAt(now.UnixMilli())
			if !ok {
				// Tape ends before expiry: the window stays unresolved,
				// like a shutdown with an open position.
				pos = machine.Position()
				break
			}
			pos = machine.Settle(price, now.UnixMilli())
			p := price
			finalPrice = &p

			rec := newStepRecord(w, now, price)
			rec.MinutesLeft = w.MinutesToExpiry(now)
			if pos != nil {
				rec.Direction = string(pos.Direction)
			}
			rec.Action = domain.TickActionSettlement
			ticks = append(ticks, rec)
			break
		}

		switch machine.State() {
		case domain.StateOpen:
			ticks = append(ticks, r.superviseStep(ctx, machine, w, t, now))
		case domain.StateFlat:
			minutesLeft := w.MinutesToExpiry(now)
			if minutesLeft > r.maxMinutes || minutesLeft < r.minMinutes {
				continue
			}
			if rec := r.evaluateStep(ctx, machine, stats, w, t, now); rec != nil {
				ticks = append(ticks, rec)
			}
		default:
			// Closed before expiry: wait out the clock.
		}
	}

	session.RecordWindow(stats, pos)
	rec := domain.BuildWindowRecord(w, stats, pos, finalPrice, w.CloseTime.UnixMilli())

	if r.windowStore != nil {
		if err := r.windowStore.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("window record insert: %w", err)
		}
	}
	if r.tickStore != nil && len(ticks) > 0 {
		if err := r.tickStore.InsertBulk(ctx, ticks); err != nil {
			return nil, fmt.Errorf("tick records insert: %w", err)
		}
	}
	return rec, nil
}

// evaluateStep runs the entry pipeline against the tape. Returns nil
// when no reference price has formed yet.
func (r *Runner) evaluateStep(ctx context.Context, machine *position.Machine, stats *domain.WindowStatistics, w *domain.MarketWindow, t *tape, now time.Time) *domain.TickRecord {
	nowMs := now.UnixMilli()
	price, ok := t.priceAt(nowMs)
	if !ok {
		return nil
	}
	series, _ := t.seriesAt(nowMs, r.candleHistory)
	set := indicator.Compute(series, r.params)

	dir := scoring.Favored(price, w.Strike)
	minutesLeft := w.MinutesToExpiry(now)

	var contractPrice *float64
	q := r.quotes.Quote(w.TokenFor(dir), dir, price, w.Strike, set.ATR, minutesLeft, nowMs)
	if q.HasAsk() {
		ask := q.Ask
		contractPrice = &ask
	}

	breakdown := r.scorer.Evaluate(scoring.Input{
		Price:         price,
		Strike:        w.Strike,
		Indicators:    set,
		MinutesLeft:   minutesLeft,
		ContractPrice: contractPrice,
	})
	gateRes := r.gate.Evaluate(gate.Input{ContractPrice: contractPrice})

	aboveThreshold := breakdown.Total >= r.scorer.Threshold()
	signal := aboveThreshold && gateRes.Passed()
	blocked := aboveThreshold && !gateRes.Passed()

	action := domain.TickActionNone
	switch {
	case blocked:
		action = domain.TickActionBlocked
	case signal:
		if _, err := machine.TryEnter(ctx, dir, *contractPrice, nowMs); err != nil {
			action = domain.TickActionEntryFailed
		} else {
			action = domain.TickActionEntry
		}
	}

	stats.Record(breakdown, signal, blocked)

	rec := newStepRecord(w, now, price)
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
	rec.Action = action
	return rec
}

// superviseStep watches the open position against the tape, closing it
// when an exit trigger fires.
func (r *Runner) superviseStep(ctx context.Context, machine *position.Machine, w *domain.MarketWindow, t *tape, now time.Time) *domain.TickRecord {
	nowMs := now.UnixMilli()
	pos := machine.Position()
	price, priceOK := t.priceAt(nowMs)

	var bid, underlying *float64
	if priceOK {
		v := price
		underlying = &v

		series, _ := t.seriesAt(nowMs, r.candleHistory)
		set := indicator.Compute(series, r.params)
		q := r.quotes.Quote(w.TokenFor(pos.Direction), pos.Direction, price, w.Strike, set.ATR, w.MinutesToExpiry(now), nowMs)
		if q.HasBid() {
			b := q.Bid
			bid = &b
		}
	}

	action := domain.TickActionNone
	reason := machine.ExitTrigger(position.ExitInput{ContractBid: bid, Underlying: underlying})
	if reason != "" {
		bidVal := 0.0
		if bid != nil {
			bidVal = *bid
		}
		if err := machine.AttemptClose(ctx, reason, bidVal, nowMs); err != nil {
			action = domain.TickActionCloseTry
		} else {
			action = domain.TickActionClosed
		}
	}

	rec := newStepRecord(w, now, price)
	rec.MinutesLeft = w.MinutesToExpiry(now)
	rec.Direction = string(pos.Direction)
	if bid != nil {
		rec.ContractPrice = *bid
	}
	rec.Action = action
	return rec
}

// newStepRecord starts a tick record with the fields every path shares.
func newStepRecord(w *domain.MarketWindow, now time.Time, price float64) *domain.TickRecord {
	return &domain.TickRecord{
		WindowID:    w.WindowID,
		TimestampMs: now.UnixMilli(),
		Price:       price,
		Strike:      w.Strike,
	}
}
