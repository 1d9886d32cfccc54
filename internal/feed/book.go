package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/httpx"
)

// BinanceDepth fetches an order-book snapshot of the underlying pair.
// The depth-ratio component scans these levels around the reference
// price; the venue's own contract books are too thin to carry it.
type BinanceDepth struct {
	client  *httpx.Client
	baseURL string
	symbol  string
	levels  int
}

// NewBinanceDepth creates a depth source. levels must be one of the
// sizes Binance serves; 0 means the full 1000-level book.
func NewBinanceDepth(client *httpx.Client, baseURL, symbol string, levels int) *BinanceDepth {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if levels <= 0 {
		levels = 1000
	}
	return &BinanceDepth{client: client, baseURL: baseURL, symbol: symbol, levels: levels}
}

// BookSnapshot returns the current bids and asks, best levels first.
func (s *BinanceDepth) BookSnapshot(ctx context.Context) (*domain.BookSnapshot, error) {
	var resp struct {
		LastUpdateID int64      `json:"lastUpdateId"`
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
	}
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", s.baseURL, s.symbol, s.levels)
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	bids, err := parseDepthLevels(resp.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseDepthLevels(resp.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	return &domain.BookSnapshot{
		Symbol:      s.symbol,
		Bids:        bids,
		Asks:        asks,
		TimestampMs: time.Now().UnixMilli(),
	}, nil
}

// parseDepthLevels converts ["price","qty"] rows, keeping exchange order.
func parseDepthLevels(rows [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("row %d has %d fields", i, len(row))
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d price %q: %w", i, row[0], err)
		}
		size, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d size %q: %w", i, row[1], err)
		}
		if price <= 0 || size <= 0 {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}
