// Package config exposes the typed runtime configuration loaded from
// YAML. Secrets and connection strings are taken from the environment
// and override whatever the file says, so a config file never needs to
// hold credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"updown-trader/internal/gate"
	"updown-trader/internal/indicator"
	"updown-trader/internal/position"
	"updown-trader/internal/scoring"
)

// App captures process-wide settings.
type App struct {
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Market configures the venue window directory.
type Market struct {
	GammaURL   string `yaml:"gamma_url"`
	SiteURL    string `yaml:"site_url"`
	SlugPrefix string `yaml:"slug_prefix"`
}

// Feed configures the reference price and history sources.
type Feed struct {
	Symbol         string `yaml:"symbol"`       // exchange symbol, e.g. BTCUSDT
	Pair           string `yaml:"pair"`         // Coinbase pair, e.g. BTC-USD
	BinanceURL     string `yaml:"binance_url"`  // empty for the public API
	CoinbaseURL    string `yaml:"coinbase_url"` // empty for the public API
	UseStream      bool   `yaml:"use_stream"`   // rank a kline WebSocket cache first
	DepthLevels    int    `yaml:"depth_levels"` // underlying book levels to request
	CandleLimit    int    `yaml:"candle_limit"` // one-minute candles of history
	RequestsPerSec int    `yaml:"requests_per_sec"`
}

// Clob configures the execution client.
type Clob struct {
	BaseURL          string `yaml:"base_url"`
	FillPollAttempts int    `yaml:"fill_poll_attempts"`
	FillPollMs       int    `yaml:"fill_poll_ms"`
	// APIKey and APISecret come from CLOB_API_KEY / CLOB_API_SECRET;
	// the file fields exist for local simulators only.
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// Scoring selects a weight preset and optionally overrides its
// threshold. Weight surgery beyond that means defining a preset.
type Scoring struct {
	Preset         string `yaml:"preset"`
	EntryThreshold int    `yaml:"entry_threshold"` // 0 keeps the preset's own
}

// Gate mirrors the constraint thresholds in file form. An absent block
// means defaults; a present block replaces them wholesale.
type Gate struct {
	PriceFloor    float64 `yaml:"price_floor"`
	PriceCeiling  float64 `yaml:"price_ceiling"`
	MinDepthRatio float64 `yaml:"min_depth_ratio"`
}

// Position mirrors the sizing and exit parameters in file form.
type Position struct {
	TradeNotional    float64 `yaml:"trade_notional"`
	MinOrderNotional float64 `yaml:"min_order_notional"`
	TakeProfitPrice  float64 `yaml:"take_profit_price"`
	StopLossDrawdown float64 `yaml:"stop_loss_drawdown"`
}

// Indicator mirrors the indicator periods in file form.
type Indicator struct {
	BollingerPeriod int     `yaml:"bollinger_period"`
	BollingerStdDev float64 `yaml:"bollinger_std_dev"`
	ATRPeriod       int     `yaml:"atr_period"`
	RSIPeriod       int     `yaml:"rsi_period"`
}

// Engine configures the scheduler loop.
type Engine struct {
	TickIntervalMs   int     `yaml:"tick_interval_ms"`
	NextWindowWaitMs int     `yaml:"next_window_wait_ms"`
	FetchTimeoutMs   int     `yaml:"fetch_timeout_ms"`
	FetchLimit       int     `yaml:"fetch_limit"`
	MinMinutesLeft   float64 `yaml:"min_minutes_left"`
	MaxMinutesLeft   float64 `yaml:"max_minutes_left"`
}

// Storage selects the record backends. DSNs usually arrive through
// POSTGRES_DSN and CLICKHOUSE_DSN; empty DSNs fall back to memory.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	ReportDir     string `yaml:"report_dir"`
}

// Config is the whole runtime configuration tree.
type Config struct {
	App       App       `yaml:"app"`
	Market    Market    `yaml:"market"`
	Feed      Feed      `yaml:"feed"`
	Clob      Clob      `yaml:"clob"`
	Scoring   Scoring   `yaml:"scoring"`
	Gate      Gate      `yaml:"gate"`
	Position  Position  `yaml:"position"`
	Indicator Indicator `yaml:"indicator"`
	Engine    Engine    `yaml:"engine"`
	Storage   Storage   `yaml:"storage"`
}

// Default returns the configuration the trader runs with when no file
// is given: public endpoints, default presets, memory storage.
func Default() *Config {
	return &Config{
		App: App{
			Env:         "dev",
			LogLevel:    "info",
			MetricsAddr: ":9091",
		},
		Feed: Feed{
			Symbol: "BTCUSDT",
			Pair:   "BTC-USD",
		},
		Storage: Storage{
			ReportDir: "reports",
		},
	}
}

// Load reads a YAML file, applies environment overrides and validates
// the result. An empty path yields the default configuration with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment override file values. Only credentials
// and connection strings live here; behavioral knobs stay in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("CLOB_API_KEY"); v != "" {
		c.Clob.APIKey = v
	}
	if v := os.Getenv("CLOB_API_SECRET"); v != "" {
		c.Clob.APISecret = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.App.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
}

// Validate checks the tree, delegating to each block's own validation.
func (c *Config) Validate() error {
	if _, err := c.ScoringConfig(); err != nil {
		return err
	}
	if err := c.GateConfig().Validate(); err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if err := c.PositionConfig().Validate(); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if c.Feed.Symbol == "" {
		return fmt.Errorf("feed: symbol is required")
	}
	if c.Engine.MinMinutesLeft < 0 || c.Engine.MaxMinutesLeft < 0 {
		return fmt.Errorf("engine: sub-window bounds must be non-negative")
	}
	if c.Engine.MaxMinutesLeft > 0 && c.Engine.MinMinutesLeft > c.Engine.MaxMinutesLeft {
		return fmt.Errorf("engine: min_minutes_left %f above max_minutes_left %f",
			c.Engine.MinMinutesLeft, c.Engine.MaxMinutesLeft)
	}
	return nil
}

// ScoringConfig resolves the preset and applies the threshold override.
func (c *Config) ScoringConfig() (scoring.Config, error) {
	sc, err := scoring.ByName(c.Scoring.Preset)
	if err != nil {
		return scoring.Config{}, fmt.Errorf("scoring: %w", err)
	}
	if c.Scoring.EntryThreshold > 0 {
		sc.EntryThreshold = c.Scoring.EntryThreshold
	}
	return sc, nil
}

// GateConfig converts the file block, defaulting when absent.
func (c *Config) GateConfig() gate.Config {
	if c.Gate == (Gate{}) {
		return gate.DefaultConfig()
	}
	return gate.Config{
		PriceFloor:    c.Gate.PriceFloor,
		PriceCeiling:  c.Gate.PriceCeiling,
		MinDepthRatio: c.Gate.MinDepthRatio,
	}
}

// PositionConfig converts the file block, defaulting when absent.
func (c *Config) PositionConfig() position.Config {
	if c.Position == (Position{}) {
		return position.DefaultConfig()
	}
	return position.Config{
		TradeNotional:    c.Position.TradeNotional,
		MinOrderNotional: c.Position.MinOrderNotional,
		TakeProfitPrice:  c.Position.TakeProfitPrice,
		StopLossDrawdown: c.Position.StopLossDrawdown,
	}
}

// IndicatorParams converts the file block, defaulting when absent.
func (c *Config) IndicatorParams() indicator.Params {
	if c.Indicator == (Indicator{}) {
		return indicator.DefaultParams()
	}
	return indicator.Params{
		BollingerPeriod: c.Indicator.BollingerPeriod,
		BollingerStdDev: c.Indicator.BollingerStdDev,
		ATRPeriod:       c.Indicator.ATRPeriod,
		RSIPeriod:       c.Indicator.RSIPeriod,
	}
}

// TickInterval returns the engine tick interval, zero meaning default.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}

// NextWindowWait returns the directory poll interval, zero meaning default.
func (c *Config) NextWindowWait() time.Duration {
	return time.Duration(c.Engine.NextWindowWaitMs) * time.Millisecond
}

// FetchTimeout returns the per-read timeout, zero meaning default.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Engine.FetchTimeoutMs) * time.Millisecond
}

// FillPollInterval returns the fill confirmation poll pause.
func (c *Config) FillPollInterval() time.Duration {
	return time.Duration(c.Clob.FillPollMs) * time.Millisecond
}
