package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"updown-trader/internal/observability"
)

// KlineStreamConfig configures WebSocket stream behavior.
type KlineStreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxAge is how old the cached price may be before the stream
	// reports itself unavailable and the REST fallbacks take over.
	MaxAge time.Duration
}

// DefaultKlineStreamConfig returns default stream configuration.
func DefaultKlineStreamConfig() KlineStreamConfig {
	return KlineStreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxAge:            15 * time.Second,
	}
}

// BinanceKlineEndpoint builds the stream URL for a symbol and interval.
// Binance addresses streams by URL path, so no subscribe handshake is
// needed after dialing.
func BinanceKlineEndpoint(symbol, interval string) string {
	return fmt.Sprintf("wss://stream.binance.com:9443/ws/%s@kline_%s",
		strings.ToLower(symbol), interval)
}

// KlineStream holds a live last-price cache fed by a Binance kline
// WebSocket stream. It implements Source so the composite can rank it
// ahead of the REST pollers; when the cache goes stale it returns
// ErrUnavailable and the composite falls through.
type KlineStream struct {
	endpoint string
	config   KlineStreamConfig
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// last price seen on the stream, guarded by cacheMu
	cacheMu   sync.RWMutex
	lastPrice float64
	lastAt    time.Time

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewKlineStream creates a stream client and connects to the endpoint.
func NewKlineStream(ctx context.Context, endpoint string, config *KlineStreamConfig, log zerolog.Logger) (*KlineStream, error) {
	cfg := DefaultKlineStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &KlineStream{
		endpoint: endpoint,
		config:   cfg,
		log:      log.With().Str("component", "kline_stream").Logger(),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes WebSocket connection.
func (s *KlineStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

func (s *KlineStream) Name() string { return "binance-ws" }

// LatestPrice implements Source from the cache. A price older than
// MaxAge counts as unavailable.
func (s *KlineStream) LatestPrice(_ context.Context) (float64, error) {
	s.cacheMu.RLock()
	price, at := s.lastPrice, s.lastAt
	s.cacheMu.RUnlock()

	if at.IsZero() {
		return 0, fmt.Errorf("no kline received yet: %w", ErrUnavailable)
	}
	if age := time.Since(at); age > s.config.MaxAge {
		return 0, fmt.Errorf("cached price is %s old: %w", age.Round(time.Millisecond), ErrUnavailable)
	}
	return price, nil
}

// Close closes the WebSocket connection.
func (s *KlineStream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and updates the cache.
func (s *KlineStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			// Increase delay for next reconnect (exponential backoff)
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to re-dial the stream endpoint. The stream name is
// part of the URL, so a successful dial needs no resubscription.
func (s *KlineStream) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	// Wait before reconnecting
	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		s.log.Warn().Err(err).Dur("delay", delay).Msg("stream reconnect failed")
		return
	}

	observability.DefaultMetrics.StreamReconnects.Inc()
	s.log.Info().Msg("stream reconnected")
}

// handleMessage parses an incoming kline event and refreshes the cache.
// Unparseable or foreign messages are ignored.
func (s *KlineStream) handleMessage(message []byte) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return
	}
	if event.Type != "kline" {
		return
	}

	price, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil || price <= 0 {
		return
	}

	s.cacheMu.Lock()
	s.lastPrice = price
	s.lastAt = time.Now()
	s.cacheMu.Unlock()
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *KlineStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// Stream message types

type klineEvent struct {
	Type  string       `json:"e"`
	Kline klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTimeMs int64  `json:"t"`
	Open       string `json:"o"`
	High       string `json:"h"`
	Low        string `json:"l"`
	Close      string `json:"c"`
	Volume     string `json:"v"`
	Final      bool   `json:"x"`
}
