// Package feed supplies the reference price and candle history from a
// preference-ordered list of providers. A provider failure is normal
// operation, not an error: callers receive ok-shaped results and decide
// how to degrade.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
	"updown-trader/internal/observability"
)

// ErrUnavailable marks a source that could not produce a value this
// call. The composite falls through to the next source on any error;
// the sentinel exists so sources can fail without inventing reasons.
var ErrUnavailable = errors.New("source unavailable")

// Source provides the latest reference price from one provider.
type Source interface {
	Name() string
	LatestPrice(ctx context.Context) (float64, error)
}

// CandleSource provides recent fixed-interval OHLC history.
type CandleSource interface {
	RecentCandles(ctx context.Context, limit int) (domain.CandleSeries, error)
}

// Feed combines ranked price sources with one candle source.
//
// Fallback policy: LatestPrice asks each source in rank order and
// returns the first answer; a tick where every source fails gets
// (0, false) and the caller skips price-dependent work for that tick.
// Stale values are never reused across ticks.
type Feed struct {
	sources []Source
	candles CandleSource
	log     zerolog.Logger
}

// New creates a feed; sources are ranked in the order given.
func New(log zerolog.Logger, candles CandleSource, sources ...Source) *Feed {
	return &Feed{
		sources: sources,
		candles: candles,
		log:     log.With().Str("component", "feed").Logger(),
	}
}

// LatestPrice returns the reference price from the first source that
// answers.
func (f *Feed) LatestPrice(ctx context.Context) (float64, bool) {
	for _, s := range f.sources {
		start := time.Now()
		price, err := s.LatestPrice(ctx)
		observability.RecordPriceFetch(s.Name(), time.Since(start).Seconds(), err)
		if err != nil {
			f.log.Debug().Err(err).Str("source", s.Name()).Msg("price source failed")
			continue
		}
		if price <= 0 {
			f.log.Debug().Str("source", s.Name()).Float64("price", price).Msg("implausible price dropped")
			continue
		}
		return price, true
	}
	f.log.Warn().Msg("all price sources failed")
	return 0, false
}

// RecentCandles returns up to limit most recent candles, oldest first.
func (f *Feed) RecentCandles(ctx context.Context, limit int) (domain.CandleSeries, bool) {
	if f.candles == nil {
		return nil, false
	}
	series, err := f.candles.RecentCandles(ctx, limit)
	if err != nil {
		f.log.Debug().Err(err).Msg("candle fetch failed")
		return nil, false
	}
	if len(series) == 0 {
		return nil, false
	}
	return series, true
}

// AlignedCandles returns recent candles shifted so the newest close
// equals the reference price. The exchange history and the settlement
// oracle differ by a roughly constant basis; without the shift the
// bands sit beside the prices the strike is quoted in.
func (f *Feed) AlignedCandles(ctx context.Context, limit int, reference float64) (domain.CandleSeries, bool) {
	series, ok := f.RecentCandles(ctx, limit)
	if !ok {
		return nil, false
	}
	return Align(series, reference), true
}

// Align shifts a series so its newest close equals the reference price.
// Pure; callers that fetched price and candles concurrently align after
// the join. No-op on an empty series or non-positive reference.
func Align(series domain.CandleSeries, reference float64) domain.CandleSeries {
	if len(series) == 0 || reference <= 0 {
		return series
	}
	return series.Rebase(reference - series[len(series)-1].Close)
}
