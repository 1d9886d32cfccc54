// Package market resolves the currently tradable 15-minute up/down
// window on the venue. Window slugs are deterministic quarter-hour
// timestamps, so the directory computes the candidate slug from the
// clock, confirms it against the venue's Gamma API and scrapes the
// strike from the event page.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
	"updown-trader/internal/httpx"
	"updown-trader/internal/idhash"
	"updown-trader/internal/observability"
)

// WindowLength is the lifetime of one up/down market.
const WindowLength = 15 * time.Minute

// PriorClose supplies a fallback strike when the event page cannot be
// scraped: the reference close of the minute ending at window open.
type PriorClose func(ctx context.Context) (float64, bool)

// Options configures a Directory.
type Options struct {
	// GammaURL is the venue metadata API base.
	GammaURL string
	// SiteURL is the venue web site base, scraped for the strike.
	SiteURL string
	// SlugPrefix names the market family, e.g. "btc-updown-15m".
	SlugPrefix string
	// PriorClose is the strike fallback. Optional.
	PriorClose PriorClose
}

// Directory finds and resolves active windows.
type Directory struct {
	client     *httpx.Client
	gammaURL   string
	siteURL    string
	slugPrefix string
	priorClose PriorClose
	log        zerolog.Logger
}

// NewDirectory creates a Directory.
func NewDirectory(client *httpx.Client, opts Options, log zerolog.Logger) *Directory {
	if opts.GammaURL == "" {
		opts.GammaURL = "https://gamma-api.polymarket.com"
	}
	if opts.SiteURL == "" {
		opts.SiteURL = "https://polymarket.com"
	}
	if opts.SlugPrefix == "" {
		opts.SlugPrefix = "btc-updown-15m"
	}
	return &Directory{
		client:     client,
		gammaURL:   opts.GammaURL,
		siteURL:    opts.SiteURL,
		slugPrefix: opts.SlugPrefix,
		priorClose: opts.PriorClose,
		log:        log.With().Str("component", "market").Logger(),
	}
}

// QuarterStart returns the quarter-hour boundary containing t, in UTC.
// Window slugs carry this instant as their unix timestamp.
func QuarterStart(t time.Time) time.Time {
	return t.UTC().Truncate(WindowLength)
}

// SlugFor builds the venue slug for the window starting at start.
func (d *Directory) SlugFor(start time.Time) string {
	return fmt.Sprintf("%s-%d", d.slugPrefix, start.Unix())
}

// FindActiveWindow resolves the window whose quarter-hour contains now.
// Returns (nil, nil) when the venue has not listed the window yet or
// its strike cannot be determined; the caller polls again later. A
// non-nil error means the venue could not be reached at all.
func (d *Directory) FindActiveWindow(ctx context.Context, now time.Time) (*domain.MarketWindow, error) {
	start := QuarterStart(now)
	slug := d.SlugFor(start)

	event, err := d.lookupEvent(ctx, slug)
	if err != nil {
		observability.DefaultMetrics.WindowLookupErrors.Inc()
		return nil, fmt.Errorf("gamma lookup %s: %w", slug, err)
	}
	if event == nil {
		d.log.Debug().Str("slug", slug).Msg("window not listed yet")
		return nil, nil
	}

	question, upID, downID, ok := event.tokens()
	if !ok {
		d.log.Warn().Str("slug", slug).Msg("event listed without outcome token ids")
		return nil, nil
	}

	strike, ok := d.resolveStrike(ctx, slug, start)
	if !ok {
		d.log.Warn().Str("slug", slug).Msg("strike unresolved, window not tradable yet")
		return nil, nil
	}

	w := &domain.MarketWindow{
		WindowID:    idhash.ComputeWindowID(slug),
		Slug:        slug,
		Question:    question,
		Strike:      strike,
		UpTokenID:   upID,
		DownTokenID: downID,
		OpenTime:    start,
		CloseTime:   start.Add(WindowLength),
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("resolved window %s: %w", slug, err)
	}

	observability.RecordWindowResolved()
	d.log.Info().
		Str("slug", slug).
		Float64("strike", strike).
		Time("close_time", w.CloseTime).
		Msg("window resolved")
	return w, nil
}

// resolveStrike scrapes the event page for the price to beat, falling
// back to the prior window close from the feed.
func (d *Directory) resolveStrike(ctx context.Context, slug string, start time.Time) (float64, bool) {
	strike, err := d.scrapeStrike(ctx, slug, start)
	if err == nil {
		return strike, true
	}
	d.log.Debug().Err(err).Str("slug", slug).Msg("strike scrape failed")

	if d.priorClose != nil {
		if close, ok := d.priorClose(ctx); ok && close > 0 {
			d.log.Info().Float64("strike", close).Msg("using prior close as strike")
			return close, true
		}
	}
	return 0, false
}
