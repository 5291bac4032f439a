package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/pulsebot/internal/config"
	"github.com/quantpulse/pulsebot/internal/crypto"
	"github.com/quantpulse/pulsebot/internal/executor"
	"github.com/quantpulse/pulsebot/internal/feed"
	"github.com/quantpulse/pulsebot/internal/notify"
	"github.com/quantpulse/pulsebot/internal/platform/binance"
	"github.com/quantpulse/pulsebot/internal/risk"
	"github.com/quantpulse/pulsebot/internal/server"
	"github.com/quantpulse/pulsebot/internal/server/handler"
	"github.com/quantpulse/pulsebot/internal/server/ws"
	"github.com/quantpulse/pulsebot/internal/service"
	"github.com/quantpulse/pulsebot/internal/signal"
)

// core bundles the always-on market data and signal pipeline shared by every
// operating mode.
type core struct {
	sampler *signal.Sampler
	engine  *signal.Engine
	feeder  *feed.Feeder
}

// ---------------------------------------------------------------------------
// Modes
// ---------------------------------------------------------------------------

// SignalMode runs the price feed and the signal engine with no risk account
// and no persistence. Signals are observable over the HTTP API, the WebSocket
// hub, and the Redis signal channel.
func (a *App) SignalMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting signal mode")

	core := a.buildCore(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return core.feeder.Run(ctx) })
	g.Go(func() error { return core.engine.Run(ctx) })

	a.startWatcher(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, core, nil)
	}

	return g.Wait()
}

// PaperMode runs the full decision pipeline against a simulated market: the
// coordinator asks the account service for approvals and the paper executor
// fills and settles positions from observed spot prices.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	core := a.buildCore(deps)

	svc, err := a.buildAccount(ctx, deps)
	if err != nil {
		return fmt.Errorf("paper mode: %w", err)
	}

	window := marketWindow(a.cfg.Executor)
	paper := executor.NewPaperExecutor(executor.PaperConfig{
		EntryPrice: a.cfg.Executor.EntryPrice,
		Window:     window,
	}, deps.TradeStore, svc, core.sampler, a.logger)

	coord := executor.NewCoordinator(executor.Config{
		PollInterval: a.cfg.Executor.PollInterval.Duration,
		MaxSignalAge: a.cfg.Executor.MaxSignalAge.Duration,
		Window:       window,
		Blackout:     a.cfg.Executor.Blackout.Duration,
		OpenDelay:    a.cfg.Executor.OpenDelay.Duration,
	}, core.engine, svc, paper, paper, deps.DecisionStore, deps.SignalBus, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return core.feeder.Run(ctx) })
	g.Go(func() error { return core.engine.Run(ctx) })
	g.Go(func() error { return coord.Run(ctx) })

	a.startCrons(ctx, g, deps, svc)
	a.startWatcher(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, core, svc)
	}

	return g.Wait()
}

// LiveMode runs the decision pipeline but hands approved decisions to the
// downstream execution service over the Redis decision stream instead of
// simulating fills. Settlement results come back through the signed outcome
// webhook or the outcome stream; both land in the same account service.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	core := a.buildCore(deps)

	svc, err := a.buildAccount(ctx, deps)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	live := executor.NewLiveExecutor(deps.SignalBus, a.logger)
	coord := executor.NewCoordinator(executor.Config{
		PollInterval: a.cfg.Executor.PollInterval.Duration,
		MaxSignalAge: a.cfg.Executor.MaxSignalAge.Duration,
		Window:       marketWindow(a.cfg.Executor),
		Blackout:     a.cfg.Executor.Blackout.Duration,
		OpenDelay:    a.cfg.Executor.OpenDelay.Duration,
	}, core.engine, svc, live, nil, deps.DecisionStore, deps.SignalBus, a.logger)

	outcomes := executor.NewOutcomeConsumer(deps.SignalBus, svc, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return core.feeder.Run(ctx) })
	g.Go(func() error { return core.engine.Run(ctx) })
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return outcomes.Run(ctx) })

	a.startCrons(ctx, g, deps, svc)
	a.startWatcher(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, core, svc)
	}

	return g.Wait()
}

// ---------------------------------------------------------------------------
// Shared construction
// ---------------------------------------------------------------------------

// buildCore assembles the sampler, scorer registry, engine, and Binance
// feeder from the configuration.
func (a *App) buildCore(deps *Dependencies) *core {
	cfg := a.cfg

	sampler := signal.NewSampler(signal.DefaultRetention)
	extract := signal.NewExtractor(sampler, signal.ExtractorConfig{})

	registry := signal.NewRegistry()
	registry.Register(signal.NewWeightedScorer(signal.MomentumProfile()))
	registry.Register(signal.NewQuantScorer())
	gates := signal.DefaultGateConfig()
	gates.Session = sessionPolicy(cfg.Session, a.logger)
	registry.Register(signal.NewInstitutionalScorer(gates))

	snapshot := signal.NewSnapshot(cfg.Engine.Assets)
	engine := signal.NewEngine(signal.EngineConfig{
		Assets:         cfg.Engine.Assets,
		Interval:       cfg.Engine.Interval.Duration,
		Bar:            cfg.Engine.Bar.Duration,
		SignalTTL:      cfg.Engine.SignalTTL.Duration,
		PublishTimeout: cfg.Engine.PublishTimeout.Duration,
	}, sampler, extract, registry, snapshot, deps.SignalCache, deps.SignalBus, a.logger)

	if err := engine.SetActive(cfg.Engine.Scorer); err != nil {
		a.logger.Warn("engine: configured scorer not registered, staying idle until one is selected",
			slog.String("scorer", cfg.Engine.Scorer),
			slog.String("error", err.Error()),
		)
	}

	rest := binance.NewRESTClient(cfg.Feed.RestHost)
	stream := binance.NewWSClient(cfg.Feed.WsHost)
	feeder := feed.NewFeeder(rest, stream, sampler, deps.PriceCache, deps.RateLimiter,
		cfg.Feed.Symbols, cfg.Feed.BackfillMinutes, a.logger)

	return &core{sampler: sampler, engine: engine, feeder: feeder}
}

// buildAccount assembles the risk manager and account service and loads the
// persisted account state.
func (a *App) buildAccount(ctx context.Context, deps *Dependencies) (*service.AccountService, error) {
	riskMgr := risk.NewManager(risk.Config{
		BasePositionPct:        a.cfg.Risk.BasePositionPct,
		MaxPositionPct:         a.cfg.Risk.MaxPositionPct,
		MinTradeSize:           a.cfg.Risk.MinTradeSize,
		MinConfidence:          a.cfg.Risk.MinConfidence,
		MaxTradesPerDay:        a.cfg.Risk.MaxTradesPerDay,
		Cooldown:               a.cfg.Risk.Cooldown.Duration,
		MaxDailyLossPct:        a.cfg.Risk.MaxDailyLossPct,
		MaxDrawdownPct:         a.cfg.Risk.MaxDrawdownPct,
		CapitalPreservationPct: a.cfg.Risk.CapitalPreservationPct,
	}, a.logger)

	svc := service.NewAccountService(service.AccountConfig{
		ID:             a.cfg.Account.ID,
		InitialCapital: a.cfg.Account.InitialCapital,
	}, deps.AccountStore, deps.OutcomeStore, deps.DecisionStore, riskMgr,
		deps.SignalBus, deps.AuditStore, deps.LockManager, a.logger)

	if err := svc.Load(ctx); err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return svc, nil
}

// startHTTPServer registers the API surface and runs the server until the
// context is cancelled. svc is nil in signal mode; the account, trade, and
// outcome endpoints are then absent or answer 501.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, core *core, svc *service.AccountService) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:       a.cfg.Mode,
		ScorerName: core.engine.ActiveName(),
		StartedAt:  time.Now().UTC(),
	})
	g.Go(func() error { return hub.Run(ctx) })

	// Assign through locals so a nil *AccountService never reaches an
	// interface field as a typed non-nil value.
	var (
		accountSvc handler.AccountService
		accountRdr handler.AccountReader
		sink       handler.OutcomeSink
	)
	if svc != nil {
		accountSvc = svc
		accountRdr = svc
		sink = svc
	}
	var db handler.Pinger
	if deps.Postgres != nil {
		db = deps.Postgres.Pool()
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(db, deps.Redis, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), core.engine, core.feeder, accountRdr),
		Signals: handler.NewSignalHandler(core.engine),
		Account: handler.NewAccountHandler(accountSvc, a.logger),
		Scorer:  handler.NewScorerHandler(core.engine, hub, a.logger),
	}
	if deps.DecisionStore != nil {
		handlers.Decisions = handler.NewDecisionHandler(deps.DecisionStore, a.logger)
	}
	if deps.TradeStore != nil {
		handlers.Trades = handler.NewTradeHandler(deps.TradeStore, a.logger)
	}
	if deps.OutcomeStore != nil {
		var verifier handler.WebhookVerifier
		if a.cfg.Server.WebhookSecret != "" {
			verifier = crypto.NewWebhookAuth(a.cfg.Server.WebhookSecret)
		}
		handlers.Outcomes = handler.NewOutcomeHandler(deps.OutcomeStore, sink, verifier, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIToken,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// startCrons schedules the UTC-midnight daily reset and, when archival is
// enabled, the cold storage upload.
func (a *App) startCrons(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.AccountService) {
	c := cron.New(cron.WithLocation(time.UTC))

	if _, err := c.AddFunc("0 0 * * *", func() {
		if err := svc.ResetDaily(ctx, time.Now().UTC()); err != nil {
			a.logger.Error("cron: daily reset failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		a.logger.Error("cron: daily reset registration failed", slog.String("error", err.Error()))
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		if _, err := c.AddFunc(a.cfg.Archive.Cron, func() {
			a.runArchive(ctx, deps)
		}); err != nil {
			a.logger.Error("cron: archive registration failed",
				slog.String("spec", a.cfg.Archive.Cron),
				slog.String("error", err.Error()),
			)
		}
	}

	c.Start()
	g.Go(func() error {
		<-ctx.Done()
		<-c.Stop().Done()
		return ctx.Err()
	})
}

// runArchive uploads rows older than the retention window to cold storage.
// Failures are logged and retried on the next scheduled run; rows stay in
// Postgres until an operator verifies the archive.
func (a *App) runArchive(ctx context.Context, deps *Dependencies) {
	retention := a.cfg.Archive.RetentionDays
	if retention <= 0 {
		retention = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retention)
	log := a.logger.With(slog.Time("cutoff", cutoff))

	if n, err := deps.Archiver.ArchiveDecisions(ctx, cutoff); err != nil {
		log.Error("archive: decisions failed", slog.String("error", err.Error()))
	} else {
		log.Info("archive: decisions uploaded", slog.Int64("rows", n))
	}
	if n, err := deps.Archiver.ArchiveTrades(ctx, cutoff); err != nil {
		log.Error("archive: trades failed", slog.String("error", err.Error()))
	} else {
		log.Info("archive: trades uploaded", slog.Int64("rows", n))
	}
	if n, err := deps.Archiver.ArchiveOutcomes(ctx, cutoff); err != nil {
		log.Error("archive: outcomes failed", slog.String("error", err.Error()))
	} else {
		log.Info("archive: outcomes uploaded", slog.Int64("rows", n))
	}
}

// startWatcher forwards bus events to the configured notification channels.
// Without any configured sender the watcher is not started.
func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	n := a.cfg.Notify
	configured := (n.TelegramToken != "" && n.TelegramChatID != "") || n.DiscordWebhookURL != ""
	if !configured {
		return
	}
	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error { return watcher.Run(ctx) })
}

// ---------------------------------------------------------------------------
// Config translation
// ---------------------------------------------------------------------------

// marketWindow converts the configured window length in minutes to a
// duration, defaulting to the 15-minute market.
func marketWindow(cfg config.ExecutorConfig) time.Duration {
	if cfg.WindowMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(cfg.WindowMinutes) * time.Minute
}

// sessionPolicy converts the configured "HH:MM-HH:MM" windows into the hour
// granular policy the institutional gates consume. End times round up to the
// next full hour and windows wrapping midnight split in two. When no window
// parses, the default London/New York policy applies.
func sessionPolicy(cfg config.SessionConfig, logger *slog.Logger) signal.SessionPolicy {
	policy := signal.DefaultSessionPolicy()
	if cfg.VolOverride > 0 {
		policy.VolOverride = cfg.VolOverride
	}

	var windows []signal.SessionWindow
	for _, raw := range cfg.Windows {
		lo, hi, ok := strings.Cut(raw, "-")
		if !ok {
			logger.Warn("session: skipping malformed window", slog.String("window", raw))
			continue
		}
		start, serr := time.Parse("15:04", strings.TrimSpace(lo))
		end, eerr := time.Parse("15:04", strings.TrimSpace(hi))
		if serr != nil || eerr != nil {
			logger.Warn("session: skipping malformed window", slog.String("window", raw))
			continue
		}

		sh := start.Hour()
		eh := end.Hour()
		if end.Minute() > 0 {
			eh++
		}
		if sh < eh {
			windows = append(windows, signal.SessionWindow{Start: sh, End: eh})
			continue
		}
		// Wraps midnight.
		windows = append(windows, signal.SessionWindow{Start: sh, End: 24})
		if eh > 0 {
			windows = append(windows, signal.SessionWindow{Start: 0, End: eh})
		}
	}
	if len(windows) > 0 {
		policy.Windows = windows
	}
	return policy
}
