// Package config defines the top-level configuration for the pulse bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PULSEBOT_* environment variables.
type Config struct {
	Account  AccountConfig  `toml:"account"`
	Engine   EngineConfig   `toml:"engine"`
	Risk     RiskConfig     `toml:"risk"`
	Executor ExecutorConfig `toml:"executor"`
	Feed     FeedConfig     `toml:"feed"`
	Session  SessionConfig  `toml:"session"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AccountConfig seeds the trading account on first run.
type AccountConfig struct {
	ID             string  `toml:"id"`
	InitialCapital float64 `toml:"initial_capital"`
}

// EngineConfig holds the signal evaluation loop parameters.
type EngineConfig struct {
	// Assets is the asset universe the engine evaluates each tick.
	Assets []string `toml:"assets"`
	// Scorer selects the active scoring strategy: "momentum", "quant", or
	// "institutional".
	Scorer         string   `toml:"scorer"`
	Interval       duration `toml:"interval"`
	Bar            duration `toml:"bar"`
	SignalTTL      duration `toml:"signal_ttl"`
	PublishTimeout duration `toml:"publish_timeout"`
}

// RiskConfig holds position sizing and trade veto limits.
type RiskConfig struct {
	BasePositionPct        float64  `toml:"base_position_pct"`
	MaxPositionPct         float64  `toml:"max_position_pct"`
	MinTradeSize           float64  `toml:"min_trade_size"`
	MinConfidence          int      `toml:"min_confidence"`
	MaxTradesPerDay        int      `toml:"max_trades_per_day"`
	Cooldown               duration `toml:"cooldown"`
	MaxDailyLossPct        float64  `toml:"max_daily_loss_pct"`
	MaxDrawdownPct         float64  `toml:"max_drawdown_pct"`
	CapitalPreservationPct float64  `toml:"capital_preservation_pct"`
}

// ExecutorConfig holds the trade coordination loop parameters.
type ExecutorConfig struct {
	PollInterval duration `toml:"poll_interval"`
	// MaxSignalAge is the staleness bound: snapshot entries older than this
	// are rejected rather than traded.
	MaxSignalAge duration `toml:"max_signal_age"`
	// EntryPrice is the assumed binary contract entry price in paper mode.
	EntryPrice float64 `toml:"entry_price"`
	// WindowMinutes is the binary market window length.
	WindowMinutes int `toml:"window_minutes"`
	// Blackout blocks entries once the current window has less than this
	// much time left.
	Blackout duration `toml:"blackout"`
	// OpenDelay blocks entries for this long after a new window opens,
	// while the market re-prices.
	OpenDelay duration `toml:"open_delay"`
}

// FeedConfig holds the Binance market data parameters.
type FeedConfig struct {
	RestHost string `toml:"rest_host"`
	WsHost   string `toml:"ws_host"`
	// Symbols maps engine asset names to exchange symbols.
	Symbols map[string]string `toml:"symbols"`
	// BackfillMinutes of 1m klines are fetched on startup so scorers do not
	// start cold.
	BackfillMinutes int `toml:"backfill_minutes"`
}

// SessionConfig holds the high-liquidity session windows.
type SessionConfig struct {
	// Windows are UTC ranges like "08:00-16:00".
	Windows []string `toml:"windows"`
	// VolOverride treats any moment as in-session when the volatility ratio
	// exceeds this value.
	VolOverride float64 `toml:"vol_override"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIToken protects mutating endpoints. Empty disables auth.
	APIToken string `toml:"api_token"`
	// WebhookSecret is the HMAC key outcome webhooks must sign with.
	WebhookSecret string `toml:"webhook_secret"`
	// RateLimit caps requests per client IP per RateWindow. 0 disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Account: AccountConfig{
			ID:             "default",
			InitialCapital: 300,
		},
		Engine: EngineConfig{
			Assets:         []string{"BTC", "ETH"},
			Scorer:         "momentum",
			Interval:       duration{5 * time.Second},
			Bar:            duration{30 * time.Second},
			SignalTTL:      duration{90 * time.Second},
			PublishTimeout: duration{2 * time.Second},
		},
		Risk: RiskConfig{
			BasePositionPct:        0.03,
			MaxPositionPct:         0.15,
			MinTradeSize:           10,
			MinConfidence:          70,
			MaxTradesPerDay:        20,
			Cooldown:               duration{5 * time.Minute},
			MaxDailyLossPct:        0.15,
			MaxDrawdownPct:         0.20,
			CapitalPreservationPct: 0.30,
		},
		Executor: ExecutorConfig{
			PollInterval:  duration{10 * time.Second},
			MaxSignalAge:  duration{90 * time.Second},
			EntryPrice:    0.5,
			WindowMinutes: 15,
			Blackout:      duration{60 * time.Second},
			OpenDelay:     duration{10 * time.Second},
		},
		Feed: FeedConfig{
			RestHost: "https://api.binance.com",
			WsHost:   "wss://stream.binance.com:9443",
			Symbols: map[string]string{
				"BTC": "BTCUSDT",
				"ETH": "ETHUSDT",
			},
			BackfillMinutes: 15,
		},
		Session: SessionConfig{
			Windows:     []string{"08:00-16:00", "13:00-21:00"},
			VolOverride: 1.5,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pulsebot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   50,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"decision", "outcome", "halt", "daily_reset", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"signal": true,
	"paper":  true,
	"live":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validScorers enumerates the accepted values for Engine.Scorer.
var validScorers = map[string]bool{
	"momentum":      true,
	"quant":         true,
	"institutional": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: signal, paper, live)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Account
	if c.Account.InitialCapital <= 0 {
		errs = append(errs, "account: initial_capital must be > 0")
	}

	// Engine
	if len(c.Engine.Assets) == 0 {
		errs = append(errs, "engine: assets must not be empty")
	}
	if !validScorers[strings.ToLower(c.Engine.Scorer)] {
		errs = append(errs, fmt.Sprintf("engine: unknown scorer %q (valid: momentum, quant, institutional)", c.Engine.Scorer))
	}
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.Bar.Duration <= 0 {
		errs = append(errs, "engine: bar must be > 0")
	}
	if c.Engine.SignalTTL.Duration < c.Engine.Interval.Duration {
		errs = append(errs, "engine: signal_ttl must not be shorter than interval")
	}

	// Risk
	if c.Risk.BasePositionPct <= 0 || c.Risk.BasePositionPct > 1 {
		errs = append(errs, "risk: base_position_pct must be in (0, 1]")
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		errs = append(errs, "risk: max_position_pct must be in (0, 1]")
	}
	if c.Risk.BasePositionPct > c.Risk.MaxPositionPct {
		errs = append(errs, "risk: base_position_pct must not exceed max_position_pct")
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 100 {
		errs = append(errs, "risk: min_confidence must be 0-100")
	}
	if c.Risk.MaxTradesPerDay < 1 {
		errs = append(errs, "risk: max_trades_per_day must be >= 1")
	}
	if c.Risk.Cooldown.Duration <= 0 {
		errs = append(errs, "risk: cooldown must be > 0")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 1 {
		errs = append(errs, "risk: max_daily_loss_pct must be in (0, 1]")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 1 {
		errs = append(errs, "risk: max_drawdown_pct must be in (0, 1]")
	}
	if c.Risk.CapitalPreservationPct < 0 || c.Risk.CapitalPreservationPct >= 1 {
		errs = append(errs, "risk: capital_preservation_pct must be in [0, 1)")
	}

	// Executor
	if c.Executor.PollInterval.Duration <= 0 {
		errs = append(errs, "executor: poll_interval must be > 0")
	}
	if c.Executor.MaxSignalAge.Duration <= 0 {
		errs = append(errs, "executor: max_signal_age must be > 0")
	}
	if c.Executor.EntryPrice <= 0 || c.Executor.EntryPrice >= 1 {
		errs = append(errs, "executor: entry_price must be in (0, 1)")
	}
	if c.Executor.WindowMinutes < 1 {
		errs = append(errs, "executor: window_minutes must be >= 1")
	}
	if c.Executor.Blackout.Duration < 0 {
		errs = append(errs, "executor: blackout must not be negative")
	}
	if c.Executor.OpenDelay.Duration < 0 {
		errs = append(errs, "executor: open_delay must not be negative")
	}
	window := time.Duration(c.Executor.WindowMinutes) * time.Minute
	if c.Executor.Blackout.Duration+c.Executor.OpenDelay.Duration >= window {
		errs = append(errs, "executor: blackout plus open_delay must leave room inside the window")
	}

	// Feed
	if c.Feed.RestHost == "" {
		errs = append(errs, "feed: rest_host must not be empty")
	}
	if c.Feed.WsHost == "" {
		errs = append(errs, "feed: ws_host must not be empty")
	}
	for _, asset := range c.Engine.Assets {
		if c.Feed.Symbols[asset] == "" {
			errs = append(errs, fmt.Sprintf("feed: no symbol mapping for asset %q", asset))
		}
	}
	if c.Feed.BackfillMinutes < 0 {
		errs = append(errs, "feed: backfill_minutes must not be negative")
	}

	// Session
	for _, w := range c.Session.Windows {
		if err := checkSessionWindow(w); err != nil {
			errs = append(errs, fmt.Sprintf("session: bad window %q: %v", w, err))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 settings are only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
	}

	// Live mode needs the outcome webhook locked down.
	if strings.ToLower(c.Mode) == "live" && c.Server.Enabled && c.Server.WebhookSecret == "" {
		errs = append(errs, "server: webhook_secret is required in live mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkSessionWindow verifies the "HH:MM-HH:MM" shape without imposing any
// ordering: windows may wrap midnight.
func checkSessionWindow(w string) error {
	parts := strings.Split(w, "-")
	if len(parts) != 2 {
		return fmt.Errorf("want HH:MM-HH:MM")
	}
	for _, p := range parts {
		if _, err := time.Parse("15:04", strings.TrimSpace(p)); err != nil {
			return fmt.Errorf("bad time %q", p)
		}
	}
	return nil
}
