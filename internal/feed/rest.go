package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"updown-trader/internal/domain"
	"updown-trader/internal/httpx"
)

// Price plausibility bounds for the aggregator probe. Values outside
// them are treated as some other field that happened to parse.
const (
	probeMinPrice = 1_000
	probeMaxPrice = 1_000_000
)

// CoinbaseSource reads the spot price from Coinbase.
type CoinbaseSource struct {
	client  *httpx.Client
	baseURL string
	pair    string
}

// NewCoinbaseSource creates a Coinbase spot source for a pair such as
// "BTC-USD".
func NewCoinbaseSource(client *httpx.Client, baseURL, pair string) *CoinbaseSource {
	if baseURL == "" {
		baseURL = "https://api.coinbase.com"
	}
	return &CoinbaseSource{client: client, baseURL: baseURL, pair: pair}
}

func (s *CoinbaseSource) Name() string { return "coinbase" }

// LatestPrice implements Source.
func (s *CoinbaseSource) LatestPrice(ctx context.Context) (float64, error) {
	var resp struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	url := fmt.Sprintf("%s/v2/prices/%s/spot", s.baseURL, s.pair)
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Data.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("coinbase amount %q: %w", resp.Data.Amount, err)
	}
	return price, nil
}

// BinanceSource reads the last trade price from Binance.
type BinanceSource struct {
	client  *httpx.Client
	baseURL string
	symbol  string
}

// NewBinanceSource creates a Binance ticker source for a symbol such as
// "BTCUSDT".
func NewBinanceSource(client *httpx.Client, baseURL, symbol string) *BinanceSource {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceSource{client: client, baseURL: baseURL, symbol: symbol}
}

func (s *BinanceSource) Name() string { return "binance" }

// LatestPrice implements Source.
func (s *BinanceSource) LatestPrice(ctx context.Context) (float64, error) {
	var resp struct {
		Price string `json:"price"`
	}
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", s.baseURL, s.symbol)
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance price %q: %w", resp.Price, err)
	}
	return price, nil
}

// AggregatorSource reads the settlement oracle's published price. The
// endpoints expose loosely shaped JSON that changes without notice, so
// the source probes a set of known keys instead of binding to a schema,
// and rejects values outside plausibility bounds.
type AggregatorSource struct {
	client *httpx.Client
	urls   []string
}

// NewAggregatorSource creates an oracle source trying urls in order.
func NewAggregatorSource(client *httpx.Client, urls []string) *AggregatorSource {
	return &AggregatorSource{client: client, urls: urls}
}

func (s *AggregatorSource) Name() string { return "aggregator" }

// LatestPrice implements Source.
func (s *AggregatorSource) LatestPrice(ctx context.Context) (float64, error) {
	for _, url := range s.urls {
		body, err := s.client.GetBody(ctx, url)
		if err != nil {
			continue
		}
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			continue
		}
		if price, ok := probePrice(payload); ok {
			return price, nil
		}
	}
	return 0, fmt.Errorf("no aggregator endpoint answered: %w", ErrUnavailable)
}

// priceKeys are probed in order on every JSON object level.
var priceKeys = []string{"price", "currentPrice", "latestPrice", "answer", "value", "result"}

// probePrice walks a decoded JSON value looking for a plausible price:
// a known key holding a number (or numeric string), or the fixed-point
// answer/decimals pair some oracle endpoints publish.
func probePrice(v any) (float64, bool) {
	switch node := v.(type) {
	case map[string]any:
		for _, key := range priceKeys {
			if raw, ok := node[key]; ok {
				if price, ok := asPrice(raw); ok {
					return price, true
				}
			}
		}
		if raw, ok := node["answer"]; ok {
			if dec, ok2 := node["decimals"]; ok2 {
				if price, ok3 := scaledAnswer(raw, dec); ok3 {
					return price, true
				}
			}
		}
		for _, child := range node {
			if price, ok := probePrice(child); ok {
				return price, true
			}
		}
	case []any:
		for _, item := range node {
			if price, ok := probePrice(item); ok {
				return price, true
			}
		}
	}
	return 0, false
}

func asPrice(raw any) (float64, bool) {
	var price float64
	switch val := raw.(type) {
	case float64:
		price = val
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		price = parsed
	default:
		return 0, false
	}
	if price < probeMinPrice || price > probeMaxPrice {
		return 0, false
	}
	return price, true
}

func scaledAnswer(raw, dec any) (float64, bool) {
	answer, ok := toFloat(raw)
	if !ok {
		return 0, false
	}
	decimals, ok := toFloat(dec)
	if !ok || decimals < 0 || decimals > 30 {
		return 0, false
	}
	price := answer
	for i := 0; i < int(decimals); i++ {
		price /= 10
	}
	if price < probeMinPrice || price > probeMaxPrice {
		return 0, false
	}
	return price, true
}

func toFloat(raw any) (float64, bool) {
	switch val := raw.(type) {
	case float64:
		return val, true
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// BinanceKlines fetches 1-minute OHLC history from Binance.
type BinanceKlines struct {
	client   *httpx.Client
	baseURL  string
	symbol   string
	interval string
}

// NewBinanceKlines creates a kline history source.
func NewBinanceKlines(client *httpx.Client, baseURL, symbol, interval string) *BinanceKlines {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if interval == "" {
		interval = "1m"
	}
	return &BinanceKlines{client: client, baseURL: baseURL, symbol: symbol, interval: interval}
}

// RecentCandles implements CandleSource. Rows come back oldest first.
func (s *BinanceKlines) RecentCandles(ctx context.Context, limit int) (domain.CandleSeries, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		s.baseURL, s.symbol, s.interval, limit)

	var rows [][]any
	if err := s.client.GetJSON(ctx, url, &rows); err != nil {
		return nil, err
	}

	series := make(domain.CandleSeries, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i, err)
		}
		series = append(series, candle)
	}
	return series, nil
}

// historyPageLimit is the venue's maximum kline rows per request.
const historyPageLimit = 1000

// HistoryRange fetches every candle whose open time falls in
// [startMs, endMs], paging through the kline endpoint in venue-sized
// chunks. Rows come back oldest first. A range the venue has no data
// for returns an empty series, not an error.
func (s *BinanceKlines) HistoryRange(ctx context.Context, startMs, endMs int64) (domain.CandleSeries, error) {
	if startMs >= endMs {
		return nil, fmt.Errorf("kline range start %d not before end %d", startMs, endMs)
	}

	var series domain.CandleSeries
	cursor := startMs
	for cursor < endMs {
		url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
			s.baseURL, s.symbol, s.interval, cursor, endMs, historyPageLimit)

		var rows [][]any
		if err := s.client.GetJSON(ctx, url, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		for i, row := range rows {
			candle, err := parseKlineRow(row)
			if err != nil {
				return nil, fmt.Errorf("kline row %d: %w", i, err)
			}
			series = append(series, candle)
		}

		last := series[len(series)-1].TimestampMs
		if last < cursor {
			return nil, fmt.Errorf("kline page regressed to %d before cursor %d", last, cursor)
		}
		cursor = last + 1
		if len(rows) < historyPageLimit {
			break
		}
	}
	return series, nil
}

// Kline row layout: open time, open, high, low, close, volume, ...
const (
	klineOpenTime = iota
	klineOpen
	klineHigh
	klineLow
	klineClose
	klineVolume
	klineMinFields
)

func parseKlineRow(row []any) (domain.Candle, error) {
	if len(row) < klineMinFields {
		return domain.Candle{}, fmt.Errorf("row has %d fields, want at least %d", len(row), klineMinFields)
	}
	openTime, ok := row[klineOpenTime].(float64)
	if !ok {
		return domain.Candle{}, fmt.Errorf("open time %v is not a number", row[klineOpenTime])
	}

	fields := make([]float64, 0, 5)
	for _, idx := range []int{klineOpen, klineHigh, klineLow, klineClose, klineVolume} {
		str, ok := row[idx].(string)
		if !ok {
			return domain.Candle{}, fmt.Errorf("field %d %v is not a string", idx, row[idx])
		}
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("field %d %q: %w", idx, str, err)
		}
		fields = append(fields, val)
	}

	return domain.Candle{
		TimestampMs: int64(openTime),
		Open:        fields[0],
		High:        fields[1],
		Low:         fields[2],
		Close:       fields[3],
		Volume:      fields[4],
	}, nil
}
