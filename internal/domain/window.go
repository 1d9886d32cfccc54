package domain

import (
	"fmt"
	"time"
)

// Direction identifies the contract side favored relative to the strike.
type Direction string

// Direction constants.
const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// MarketWindow represents one 15-minute binary up/down market.
// Immutable once resolved: the strike and timestamps never change
// for the life of the window.
type MarketWindow struct {
	WindowID    string    // deterministic hash of the venue slug
	Slug        string    // venue slug, e.g. "btc-updown-15m-1756104300"
	Question    string    // human-readable market question
	Strike      float64   // reference value the underlying resolves against
	UpTokenID   string    // contract token for the above-strike outcome
	DownTokenID string    // contract token for the below-strike outcome
	OpenTime    time.Time // window open
	CloseTime   time.Time // window expiry
}

// Validate checks structural invariants of a resolved window.
func (w *MarketWindow) Validate() error {
	if w == nil {
		return fmt.Errorf("window is nil")
	}
	if w.WindowID == "" {
		return fmt.Errorf("window_id is empty")
	}
	if w.Slug == "" {
		return fmt.Errorf("slug is empty")
	}
	if w.Strike <= 0 {
		return fmt.Errorf("strike must be positive, got %f", w.Strike)
	}
	if w.UpTokenID == "" || w.DownTokenID == "" {
		return fmt.Errorf("both outcome token ids are required")
	}
	if !w.CloseTime.After(w.OpenTime) {
		return fmt.Errorf("close_time %s not after open_time %s", w.CloseTime, w.OpenTime)
	}
	return nil
}

// TokenFor returns the contract token id for a direction.
func (w *MarketWindow) TokenFor(d Direction) string {
	if d == DirectionUp {
		return w.UpTokenID
	}
	return w.DownTokenID
}

// MinutesToExpiry returns the fractional minutes remaining until expiry.
// Negative once the window has expired.
func (w *MarketWindow) MinutesToExpiry(now time.Time) float64 {
	return w.CloseTime.Sub(now).Minutes()
}

// Expired reports whether the window has passed its close time.
func (w *MarketWindow) Expired(now time.Time) bool {
	return !now.Before(w.CloseTime)
}
