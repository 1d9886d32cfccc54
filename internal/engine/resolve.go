package engine

import (
	"context"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/observability"
)

// storeTimeout bounds the record flush so a dead store cannot wedge the
// loop between windows.
const storeTimeout = 5 * time.Second

// resolveWindow folds a finished window into the session counters and
// flushes its records. Persistence is fire-and-forget: store failures
// are logged, never propagated into the loop.
func (e *Engine) resolveWindow(ctx context.Context, r *windowRun) {
	outcome := domain.OutcomeFor(r.pos)
	observability.RecordSettlement(outcome)
	e.session.RecordWindow(r.stats, r.pos)

	e.flushRecords(ctx, r, outcome)

	ev := e.log.Info().
		Str("window_id", r.window.WindowID).
		Str("outcome", outcome).
		Int("evaluations", r.stats.Evaluations).
		Int("signals", r.stats.Signals).
		Int("blocked", r.stats.Blocked).
		Int("max_score", r.stats.MaxTotal)
	if r.pos != nil {
		ev = ev.Float64("pnl", r.pos.PnL).Str("close_reason", string(r.pos.CloseReason))
	}
	ev.Msg("window resolved")
}

// abandonWindow flushes a window interrupted by shutdown. An open
// position is recorded as it stands so nothing is lost; it simply never
// resolves in this session.
func (e *Engine) abandonWindow(r *windowRun) {
	r.pos = r.machine.Position()
	if r.machine.State() == domain.StateOpen {
		e.log.Warn().
			Str("window_id", r.window.WindowID).
			Str("position_id", r.pos.PositionID).
			Msg("shutting down with open position")
	}
	e.session.RecordWindow(r.stats, r.pos)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	e.flushRecords(ctx, r, domain.OutcomeFor(r.pos))

	e.log.Info().Str("window_id", r.window.WindowID).Msg("window abandoned at shutdown")
}

// flushRecords writes the window summary and the buffered tick rows.
func (e *Engine) flushRecords(ctx context.Context, r *windowRun, outcome string) {
	if e.windowStore != nil {
		rec := domain.BuildWindowRecord(r.window, r.stats, r.pos, r.finalPrice, e.now().UnixMilli())
		start := time.Now()
		err := e.windowStore.Insert(ctx, rec)
		observability.RecordDBQuery("window_store", "insert", time.Since(start).Seconds(), err)
		if err != nil {
			e.log.Error().Err(err).Str("window_id", r.window.WindowID).Msg("window record insert failed")
		}
	}

	if e.tickStore != nil && len(r.ticks) > 0 {
		start := time.Now()
		err := e.tickStore.InsertBulk(ctx, r.ticks)
		observability.RecordDBQuery("tick_store", "insert_bulk", time.Since(start).Seconds(), err)
		if err != nil {
			e.log.Error().Err(err).
				Str("window_id", r.window.WindowID).
				Int("ticks", len(r.ticks)).
				Msg("tick records insert failed")
		}
	}
}
