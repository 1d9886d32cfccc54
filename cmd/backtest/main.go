// Package main replays historical minute candles through the scoring,
// gate and position components against a simulated venue, and reports
// what the strategy would have done.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"updown-trader/internal/backtest"
	"updown-trader/internal/config"
	"updown-trader/internal/feed"
	"updown-trader/internal/httpx"
	"updown-trader/internal/reporting"
	"updown-trader/internal/scoring"
	"updown-trader/internal/storage"
	chstore "updown-trader/internal/storage/clickhouse"
	"updown-trader/internal/storage/memory"
	"updown-trader/internal/storage/migrations"
	pgstore "updown-trader/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TRADER_CONFIG"), "Path to YAML config (empty for defaults)")
	from := flag.String("from", "", "Replay range start, RFC3339 (e.g. 2026-08-24T00:00:00Z)")
	to := flag.String("to", "", "Replay range end, RFC3339 (default: now)")
	days := flag.Int("days", 1, "Replay the last N days when -from is not given")
	preset := flag.String("preset", "", "Scoring preset: linear, stepped, nobook (default nobook)")
	threshold := flag.Int("threshold", 0, "Entry threshold override (0 keeps the preset's own)")
	tickStep := flag.Duration("tick-step", 5*time.Second, "Replay time per tick")
	persist := flag.Bool("persist", false, "Write window and tick records to the configured databases")
	reportDir := flag.String("report-dir", "", "Write a session report to this directory (empty: skip)")
	outputJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.App.LogLevel)

	startMs, endMs, err := resolveRange(*from, *to, *days)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve replay range")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("stopping replay")
		cancel()
	}()

	windowStore, tickStore, closeStores, err := openStores(ctx, cfg, *persist, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer closeStores()

	scoringCfg, err := resolveScoring(*preset, *threshold)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve scoring preset")
	}

	client := httpx.NewClient(httpx.Options{
		Timeout:        cfg.FetchTimeout(),
		RequestsPerSec: cfg.Feed.RequestsPerSec,
	})
	klines := feed.NewBinanceKlines(client, cfg.Feed.BinanceURL, cfg.Feed.Symbol, "1m")

	runner, err := backtest.NewRunner(backtest.Options{
		Candles:     klines,
		WindowStore: windowStore,
		TickStore:   tickStore,

		Scoring:   scoringCfg,
		Position:  cfg.PositionConfig(),
		Indicator: cfg.IndicatorParams(),

		TickStep:       *tickStep,
		CandleHistory:  cfg.Feed.CandleLimit,
		MinMinutesLeft: cfg.Engine.MinMinutesLeft,
		MaxMinutesLeft: cfg.Engine.MaxMinutesLeft,
		SlugPrefix:     cfg.Market.SlugPrefix,

		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build replay runner")
	}

	res, err := runner.Run(ctx, startMs, endMs)
	if err != nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	bought, sold := runner.Venue().Turnover()
	if *outputJSON {
		printJSON(res, bought, sold)
	} else {
		printSummary(res, bought, sold)
	}

	if *reportDir != "" {
		rep, err := reporting.NewGenerator(windowStore).Generate(ctx, startMs, endMs)
		if err != nil {
			log.Fatal().Err(err).Msg("build report")
		}
		paths, err := reporting.WriteFiles(*reportDir, rep)
		if err != nil {
			log.Fatal().Err(err).Msg("write report")
		}
		for _, p := range paths {
			fmt.Printf("wrote %s\n", p)
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// resolveRange turns the flag trio into a millisecond range. An explicit
// -from wins over -days; -to defaults to now either way.
func resolveRange(from, to string, days int) (int64, int64, error) {
	end := time.Now().UTC()
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return 0, 0, fmt.Errorf("parse -to: %w", err)
		}
		end = t
	}

	var start time.Time
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return 0, 0, fmt.Errorf("parse -from: %w", err)
		}
		start = t
	} else {
		if days <= 0 {
			return 0, 0, fmt.Errorf("need -from or a positive -days")
		}
		start = end.Add(-time.Duration(days) * 24 * time.Hour)
	}

	return start.UnixMilli(), end.UnixMilli(), nil
}

// resolveScoring picks the preset for the replay. Without a book the
// nobook preset is the default; -preset can force the live presets for
// comparison runs.
func resolveScoring(preset string, threshold int) (scoring.Config, error) {
	cfg := scoring.NoBookConfig()
	if preset != "" {
		var err error
		cfg, err = scoring.ByName(preset)
		if err != nil {
			return scoring.Config{}, err
		}
	}
	if threshold > 0 {
		cfg.EntryThreshold = threshold
	}
	return cfg, nil
}

// openStores returns memory sinks unless -persist asked for the
// configured databases.
func openStores(ctx context.Context, cfg *config.Config, persist bool, log zerolog.Logger) (storage.WindowRecordStore, storage.TickRecordStore, func(), error) {
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
	if !persist {
		return windows, ticks, cleanup, nil
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
		log.Info().Msg("persisting window records to postgres")
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		ticks = chstore.NewTickRecordStore(conn)
		log.Info().Msg("persisting tick records to clickhouse")
	}

	return windows, ticks, cleanup, nil
}

// replaySummary is the JSON shape of one replay outcome.
type replaySummary struct {
	StartMs         int64   `json:"start_ms"`
	EndMs           int64   `json:"end_ms"`
	Windows         int     `json:"windows"`
	Skipped         int     `json:"skipped"`
	Evaluations     int     `json:"evaluations"`
	Signals         int     `json:"signals"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	NoSignal        int     `json:"no_signal"`
	SettledByExpiry int     `json:"settled_by_expiry"`
	WinRate         float64 `json:"win_rate"`
	GrossPnL        float64 `json:"gross_pnl"`
	Bought          float64 `json:"bought"`
	Sold            float64 `json:"sold"`
}

func printJSON(res *backtest.Result, bought, sold float64) {
	out, _ := json.MarshalIndent(replaySummary{
		StartMs:         res.StartMs,
		EndMs:           res.EndMs,
		Windows:         res.Session.Windows,
		Skipped:         res.Skipped,
		Evaluations:     res.Session.Evaluations,
		Signals:         res.Session.Signals,
		Wins:            res.Session.Wins,
		Losses:          res.Session.Losses,
		NoSignal:        res.Session.NoSignal,
		SettledByExpiry: res.Session.SettledByExpiry,
		WinRate:         res.Session.WinRate(),
		GrossPnL:        res.Session.GrossPnL,
		Bought:          bought,
		Sold:            sold,
	}, "", "  ")
	fmt.Println(string(out))
}

func printSummary(res *backtest.Result, bought, sold float64) {
	s := res.Session
	fmt.Println()
	fmt.Println("=== Replay ===")
	fmt.Printf("Range:              %s .. %s\n",
		time.UnixMilli(res.StartMs).UTC().Format(time.RFC3339),
		time.UnixMilli(res.EndMs).UTC().Format(time.RFC3339))
	fmt.Printf("Windows:            %d (%d skipped)\n", s.Windows, res.Skipped)
	fmt.Printf("Evaluations:        %d\n", s.Evaluations)
	fmt.Printf("Signals:            %d\n", s.Signals)
	fmt.Printf("Wins / Losses:      %d / %d\n", s.Wins, s.Losses)
	fmt.Printf("No-signal windows:  %d\n", s.NoSignal)
	fmt.Printf("Settled by expiry:  %d\n", s.SettledByExpiry)
	fmt.Printf("Win rate:           %.1f%%\n", s.WinRate()*100)
	fmt.Printf("Gross PnL:          %.4f\n", s.GrossPnL)
	fmt.Printf("Turnover:           %.4f bought / %.4f sold\n", bought, sold)
}
