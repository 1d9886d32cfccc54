// Package main runs the live trading loop: discover the active
// 15-minute window, evaluate it on ticks, trade it through the CLOB and
// settle at expiry, then move to the next window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"updown-trader/internal/backtest"
	"updown-trader/internal/config"
	"updown-trader/internal/domain"
	"updown-trader/internal/engine"
	"updown-trader/internal/execution"
	"updown-trader/internal/feed"
	"updown-trader/internal/httpx"
	"updown-trader/internal/market"
	"updown-trader/internal/observability"
	"updown-trader/internal/position"
	"updown-trader/internal/storage"
	chstore "updown-trader/internal/storage/clickhouse"
	"updown-trader/internal/storage/memory"
	"updown-trader/internal/storage/migrations"
	pgstore "updown-trader/internal/storage/postgres"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TRADER_CONFIG"), "Path to YAML config (empty for defaults)")
	paper := flag.Bool("paper", false, "Fill orders against an in-memory venue instead of the CLOB")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.App.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal cancels the context and lets the current window
	// resolve; a second signal, or a stuck shutdown, forces exit.
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		select {
		case <-sigCh:
			log.Error().Msg("second signal, exiting immediately")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Error().Msg("graceful shutdown timed out")
			os.Exit(1)
		case <-done:
		}
	}()

	windowStore, tickStore, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer closeStores()

	client := httpx.NewClient(httpx.Options{
		Timeout:        cfg.FetchTimeout(),
		RequestsPerSec: cfg.Feed.RequestsPerSec,
	})

	priceFeed, closeFeed, err := buildFeed(ctx, cfg, client, log)
	if err != nil {
		log.Fatal().Err(err).Msg("start price feed")
	}
	defer closeFeed()

	klines := feed.NewBinanceKlines(client, cfg.Feed.BinanceURL, cfg.Feed.Symbol, "1m")

	directory := market.NewDirectory(client, market.Options{
		GammaURL:   cfg.Market.GammaURL,
		SiteURL:    cfg.Market.SiteURL,
		SlugPrefix: cfg.Market.SlugPrefix,
		PriorClose: priorCloseFrom(klines),
	}, log)

	clob := execution.NewClient(client, execution.Options{
		BaseURL:          cfg.Clob.BaseURL,
		FillPollAttempts: cfg.Clob.FillPollAttempts,
		FillPollInterval: cfg.FillPollInterval(),
	}, log)

	var venue position.Venue
	if *paper {
		log.Info().Msg("paper mode: fills are simulated, quotes are live")
		venue = backtest.NewSimVenue()
	} else {
		venue = execution.NewExecutor(clob, httpx.DefaultRetryPolicy(), log)
	}

	var book engine.UnderlyingBook
	if cfg.Feed.DepthLevels > 0 {
		book = feed.NewBinanceDepth(client, cfg.Feed.BinanceURL, cfg.Feed.Symbol, cfg.Feed.DepthLevels)
	}

	scoringCfg, err := cfg.ScoringConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve scoring preset")
	}

	eng, err := engine.New(engine.Options{
		Finder:      directory,
		Feed:        priceFeed,
		Pricer:      clob,
		Book:        book,
		Venue:       venue,
		WindowStore: windowStore,
		TickStore:   tickStore,

		Scoring:   scoringCfg,
		Gate:      cfg.GateConfig(),
		Position:  cfg.PositionConfig(),
		Indicator: cfg.IndicatorParams(),

		TickInterval:   cfg.TickInterval(),
		NextWindowWait: cfg.NextWindowWait(),
		FetchTimeout:   cfg.FetchTimeout(),
		FetchLimit:     cfg.Engine.FetchLimit,
		CandleHistory:  cfg.Feed.CandleLimit,
		MinMinutesLeft: cfg.Engine.MinMinutesLeft,
		MaxMinutesLeft: cfg.Engine.MaxMinutesLeft,

		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	go serveMetrics(cfg.App.MetricsAddr, log)

	err = eng.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("engine failed")
	}

	printSession(eng.Session())
}

// newLogger builds the process logger: console output on a terminal,
// JSON otherwise. An unknown level falls back to info rather than
// refusing to start.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// openStores wires the record sinks from the configured DSNs. Either
// DSN may be empty; that sink then lives in memory and the records die
// with the process, which is fine for paper sessions.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.WindowRecordStore, storage.TickRecordStore, func(), error) {
	var (
		windows  storage.WindowRecordStore = memory.NewWindowRecordStore()
		ticks    storage.TickRecordStore   = memory.NewTickRecordStore()
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		windows = pgstore.NewWindowRecordStore(pool)
		log.Info().Msg("window records in postgres")
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		ticks = chstore.NewTickRecordStore(conn)
		log.Info().Msg("tick records in clickhouse")
	}

	return windows, ticks, cleanup, nil
}

// buildFeed assembles the ranked price sources. With use_stream set the
// kline WebSocket cache ranks first and REST answers only fill its gaps.
func buildFeed(ctx context.Context, cfg *config.Config, client *httpx.Client, log zerolog.Logger) (*feed.Feed, func(), error) {
	var sources []feed.Source
	closeFeed := func() {}

	if cfg.Feed.UseStream {
		stream, err := feed.NewKlineStream(ctx, feed.BinanceKlineEndpoint(cfg.Feed.Symbol, "1m"), nil, log)
		if err != nil {
			return nil, nil, fmt.Errorf("kline stream: %w", err)
		}
		sources = append(sources, stream)
		closeFeed = func() { _ = stream.Close() }
	}

	sources = append(sources,
		feed.NewBinanceSource(client, cfg.Feed.BinanceURL, cfg.Feed.Symbol),
		feed.NewCoinbaseSource(client, cfg.Feed.CoinbaseURL, cfg.Feed.Pair),
	)

	candles := feed.NewBinanceKlines(client, cfg.Feed.BinanceURL, cfg.Feed.Symbol, "1m")
	return feed.New(log, candles, sources...), closeFeed, nil
}

// priorCloseFrom adapts the kline source into the strike fallback: the
// close of the most recent completed minute candle.
func priorCloseFrom(klines *feed.BinanceKlines) market.PriorClose {
	return func(ctx context.Context) (float64, bool) {
		series, err := klines.RecentCandles(ctx, 2)
		if err != nil || len(series) == 0 {
			return 0, false
		}
		return series[len(series)-1].Close, true
	}
}

// serveMetrics exposes Prometheus metrics and a liveness probe.
func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// printSession writes the end-of-session counters to stdout.
func printSession(s domain.SessionStats) {
	fmt.Println()
	fmt.Println("=== Session ===")
	fmt.Printf("Windows:            %d\n", s.Windows)
	fmt.Printf("Evaluations:        %d\n", s.Evaluations)
	fmt.Printf("Signals:            %d\n", s.Signals)
	fmt.Printf("Wins / Losses:      %d / %d\n", s.Wins, s.Losses)
	fmt.Printf("No-signal windows:  %d\n", s.NoSignal)
	fmt.Printf("Settled by expiry:  %d\n", s.SettledByExpiry)
	fmt.Printf("Win rate:           %.1f%%\n", s.WinRate()*100)
	fmt.Printf("Gross PnL:          %.4f\n", s.GrossPnL)
}
