package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"updown-trader/internal/httpx"
)

// gammaEvent is the slice element returned by /events?slug=.
type gammaEvent struct {
	Slug    string        `json:"slug"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket carries per-outcome metadata. clobTokenIds arrives as a
// JSON array encoded inside a JSON string.
type gammaMarket struct {
	Question     string `json:"question"`
	ClobTokenIDs string `json:"clobTokenIds"`
}

// lookupEvent fetches the event for a slug. A missing listing is
// (nil, nil), not an error.
func (d *Directory) lookupEvent(ctx context.Context, slug string) (*gammaEvent, error) {
	u := fmt.Sprintf("%s/events?slug=%s", d.gammaURL, url.QueryEscape(slug))

	var events []gammaEvent
	if err := d.client.GetJSON(ctx, u, &events); err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// tokens extracts the question and the up/down token pair from the
// first market that carries both ids. Venue order is [up, down].
func (e *gammaEvent) tokens() (question, upID, downID string, ok bool) {
	for _, m := range e.Markets {
		if m.ClobTokenIDs == "" {
			continue
		}
		var ids []string
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
			continue
		}
		if len(ids) < 2 || ids[0] == "" || ids[1] == "" {
			continue
		}
		return m.Question, ids[0], ids[1], true
	}
	return "", "", "", false
}
