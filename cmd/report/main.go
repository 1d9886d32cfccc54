// Package main renders the session report from stored window records:
// a Markdown summary plus a per-window CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"updown-trader/internal/config"
	"updown-trader/internal/reporting"
	pgstore "updown-trader/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("TRADER_CONFIG"), "Path to YAML config (empty for defaults)")
	outputDir := flag.String("output-dir", "", "Output directory (default: the configured report_dir)")
	from := flag.String("from", "", "Report range start, RFC3339")
	to := flag.String("to", "", "Report range end, RFC3339 (default: now)")
	recent := flag.Int("recent", 96, "Without -from, report the most recent N windows")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.App.LogLevel)

	if cfg.Storage.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required: window records live in postgres")
	}
	dir := *outputDir
	if dir == "" {
		dir = cfg.Storage.ReportDir
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	gen := reporting.NewGenerator(pgstore.NewWindowRecordStore(pool))

	var rep *reporting.Report
	if *from != "" {
		startMs, endMs, err := parseRange(*from, *to)
		if err != nil {
			log.Fatal().Err(err).Msg("parse report range")
		}
		rep, err = gen.Generate(ctx, startMs, endMs)
		if err != nil {
			log.Fatal().Err(err).Msg("build report")
		}
	} else {
		rep, err = gen.Recent(ctx, *recent)
		if err != nil {
			log.Fatal().Err(err).Msg("build report")
		}
	}

	paths, err := reporting.WriteFiles(dir, rep)
	if err != nil {
		log.Fatal().Err(err).Msg("write report")
	}

	s := rep.Summary
	fmt.Printf("%d windows, %d traded, win rate %.1f%%, total PnL %.4f\n",
		s.Windows, s.Traded, s.WinRate*100, s.TotalPnL)
	for _, p := range paths {
		fmt.Printf("wrote %s\n", p)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func parseRange(from, to string) (int64, int64, error) {
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -from: %w", err)
	}
	end := time.Now().UTC()
	if to != "" {
		end, err = time.Parse(time.RFC3339, to)
		if err != nil {
			return 0, 0, fmt.Errorf("parse -to: %w", err)
		}
	}
	return start.UnixMilli(), end.UnixMilli(), nil
}
