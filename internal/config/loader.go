package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PULSEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PULSEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Account ──
	setStr(&cfg.Account.ID, "PULSEBOT_ACCOUNT_ID")
	setFloat64(&cfg.Account.InitialCapital, "PULSEBOT_ACCOUNT_INITIAL_CAPITAL")

	// ── Engine ──
	setStringSlice(&cfg.Engine.Assets, "PULSEBOT_ENGINE_ASSETS")
	setStr(&cfg.Engine.Scorer, "PULSEBOT_ENGINE_SCORER")
	setDuration(&cfg.Engine.Interval, "PULSEBOT_ENGINE_INTERVAL")
	setDuration(&cfg.Engine.Bar, "PULSEBOT_ENGINE_BAR")
	setDuration(&cfg.Engine.SignalTTL, "PULSEBOT_ENGINE_SIGNAL_TTL")
	setDuration(&cfg.Engine.PublishTimeout, "PULSEBOT_ENGINE_PUBLISH_TIMEOUT")

	// ── Risk ──
	setFloat64(&cfg.Risk.BasePositionPct, "PULSEBOT_RISK_BASE_POSITION_PCT")
	setFloat64(&cfg.Risk.MaxPositionPct, "PULSEBOT_RISK_MAX_POSITION_PCT")
	setFloat64(&cfg.Risk.MinTradeSize, "PULSEBOT_RISK_MIN_TRADE_SIZE")
	setInt(&cfg.Risk.MinConfidence, "PULSEBOT_RISK_MIN_CONFIDENCE")
	setInt(&cfg.Risk.MaxTradesPerDay, "PULSEBOT_RISK_MAX_TRADES_PER_DAY")
	setDuration(&cfg.Risk.Cooldown, "PULSEBOT_RISK_COOLDOWN")
	setFloat64(&cfg.Risk.MaxDailyLossPct, "PULSEBOT_RISK_MAX_DAILY_LOSS_PCT")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "PULSEBOT_RISK_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.CapitalPreservationPct, "PULSEBOT_RISK_CAPITAL_PRESERVATION_PCT")

	// ── Executor ──
	setDuration(&cfg.Executor.PollInterval, "PULSEBOT_EXECUTOR_POLL_INTERVAL")
	setDuration(&cfg.Executor.MaxSignalAge, "PULSEBOT_EXECUTOR_MAX_SIGNAL_AGE")
	setFloat64(&cfg.Executor.EntryPrice, "PULSEBOT_EXECUTOR_ENTRY_PRICE")
	setInt(&cfg.Executor.WindowMinutes, "PULSEBOT_EXECUTOR_WINDOW_MINUTES")
	setDuration(&cfg.Executor.Blackout, "PULSEBOT_EXECUTOR_BLACKOUT")
	setDuration(&cfg.Executor.OpenDelay, "PULSEBOT_EXECUTOR_OPEN_DELAY")

	// ── Feed ──
	setStr(&cfg.Feed.RestHost, "PULSEBOT_FEED_REST_HOST")
	setStr(&cfg.Feed.WsHost, "PULSEBOT_FEED_WS_HOST")
	setInt(&cfg.Feed.BackfillMinutes, "PULSEBOT_FEED_BACKFILL_MINUTES")

	// ── Session ──
	setStringSlice(&cfg.Session.Windows, "PULSEBOT_SESSION_WINDOWS")
	setFloat64(&cfg.Session.VolOverride, "PULSEBOT_SESSION_VOL_OVERRIDE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PULSEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "PULSEBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PULSEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PULSEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PULSEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PULSEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PULSEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PULSEBOT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "PULSEBOT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "PULSEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PULSEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PULSEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PULSEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PULSEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PULSEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PULSEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PULSEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PULSEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PULSEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PULSEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PULSEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PULSEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PULSEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PULSEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PULSEBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PULSEBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "PULSEBOT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "PULSEBOT_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PULSEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PULSEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PULSEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIToken, "PULSEBOT_SERVER_API_TOKEN")
	setStr(&cfg.Server.WebhookSecret, "PULSEBOT_SERVER_WEBHOOK_SECRET")
	setInt(&cfg.Server.RateLimit, "PULSEBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PULSEBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PULSEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PULSEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PULSEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PULSEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PULSEBOT_MODE")
	setStr(&cfg.LogLevel, "PULSEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
