// Package execution talks to the venue's CLOB: depth snapshots, order
// placement with fill confirmation, and holdings. It is the only
// package that knows the venue's REST shapes; callers see domain types
// and the position package's error vocabulary.
package execution

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"updown-trader/internal/domain"
	"updown-trader/internal/httpx"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the CLOB REST base.
	BaseURL string
	// FillPollAttempts bounds how many times an accepted order is
	// polled for fill confirmation.
	FillPollAttempts int
	// FillPollInterval is the pause between fill polls.
	FillPollInterval time.Duration
}

// Client is the CLOB REST client.
type Client struct {
	http             *httpx.Client
	baseURL          string
	fillPollAttempts int
	fillPollInterval time.Duration
	log              zerolog.Logger
}

// NewClient creates a CLOB client.
func NewClient(httpClient *httpx.Client, opts Options, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://clob.polymarket.com"
	}
	if opts.FillPollAttempts == 0 {
		opts.FillPollAttempts = 20
	}
	if opts.FillPollInterval == 0 {
		opts.FillPollInterval = 500 * time.Millisecond
	}
	return &Client{
		http:             httpClient,
		baseURL:          opts.BaseURL,
		fillPollAttempts: opts.FillPollAttempts,
		fillPollInterval: opts.FillPollInterval,
		log:              log.With().Str("component", "execution").Logger(),
	}
}

// bookResponse mirrors GET /book. Prices and sizes arrive as strings
// and levels in no guaranteed order.
type bookResponse struct {
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book fetches the depth snapshot for one contract token, best levels
// first.
func (c *Client) Book(ctx context.Context, tokenID string) (*domain.BookSnapshot, error) {
	u := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, url.QueryEscape(tokenID))

	var resp bookResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("book %s: %w", tokenID, err)
	}

	snap := &domain.BookSnapshot{
		Symbol:      tokenID,
		Bids:        parseLevels(resp.Bids),
		Asks:        parseLevels(resp.Asks),
		TimestampMs: time.Now().UnixMilli(),
	}
	if ms, err := strconv.ParseInt(resp.Timestamp, 10, 64); err == nil && ms > 0 {
		snap.TimestampMs = ms
	}

	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })
	return snap, nil
}

// Quote fetches top of book for one contract token.
func (c *Client) Quote(ctx context.Context, tokenID string) (*domain.Quote, error) {
	book, err := c.Book(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	q := &domain.Quote{TokenID: tokenID, TimestampMs: book.TimestampMs}
	if bid, ok := book.BestBid(); ok {
		q.Bid = bid
	}
	if ask, ok := book.BestAsk(); ok {
		q.Ask = ask
	}
	return q, nil
}

func parseLevels(in []bookLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil || size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// balanceResponse mirrors GET /balance-allowance. The balance comes
// back in the venue's raw units.
type balanceResponse struct {
	Balance string `json:"balance"`
}

// BalanceAllowance returns the raw conditional-token balance, before
// unit normalization.
func (c *Client) BalanceAllowance(ctx context.Context, tokenID string) (float64, error) {
	u := fmt.Sprintf("%s/balance-allowance?asset_type=CONDITIONAL&token_id=%s",
		c.baseURL, url.QueryEscape(tokenID))

	var resp balanceResponse
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return 0, fmt.Errorf("balance %s: %w", tokenID, err)
	}
	raw, err := strconv.ParseFloat(resp.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("balance %s: parsing %q: %w", tokenID, resp.Balance, err)
	}
	return raw, nil
}
