package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantpulse/pulsebot/internal/blob/s3"
	"github.com/quantpulse/pulsebot/internal/cache/redis"
	"github.com/quantpulse/pulsebot/internal/config"
	"github.com/quantpulse/pulsebot/internal/domain"
	"github.com/quantpulse/pulsebot/internal/notify"
	"github.com/quantpulse/pulsebot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores. Nil in signal mode, which runs without Postgres.
	AccountStore  domain.AccountStore
	DecisionStore domain.DecisionStore
	TradeStore    domain.TradeStore
	OutcomeStore  domain.OutcomeStore
	AuditStore    domain.AuditStore

	// Caches and messaging.
	PriceCache  domain.PriceCache
	SignalCache domain.SignalCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Raw clients, kept for the health probes.
	Postgres *postgres.Client
	Redis    *redis.Client

	// Cold storage.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications.
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that persist decisions and trades.
// Signal mode serves signals from memory and Redis only.
func needsPostgres(mode string) bool {
	switch mode {
	case "paper", "live":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// The archiver needs the concrete stores for their ListBefore methods,
	// which the domain interfaces do not carry.
	var (
		decisionStore *postgres.DecisionStore
		tradeStore    *postgres.TradeStore
		outcomeStore  *postgres.OutcomeStore
	)

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		decisionStore = postgres.NewDecisionStore(pool)
		tradeStore = postgres.NewTradeStore(pool)
		outcomeStore = postgres.NewOutcomeStore(pool)

		deps.Postgres = pgClient
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.DecisionStore = decisionStore
		deps.TradeStore = tradeStore
		deps.OutcomeStore = outcomeStore
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.SignalCache = redis.NewSignalCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 cold storage (only when archival is on and rows are persisted) ---
	if cfg.Archive.Enabled && needsPostgres(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			decisionStore,
			tradeStore,
			outcomeStore,
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
