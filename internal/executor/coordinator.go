package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/pulsebot/internal/domain"
)

const (
	// publishTimeout bounds best-effort bus publications so a slow Redis
	// never stalls the poll loop.
	publishTimeout = 2 * time.Second
	// retryDelay is the pause before the single execution retry.
	retryDelay = 500 * time.Millisecond
)

// Config holds the coordination loop parameters.
type Config struct {
	// PollInterval is the execution tick period.
	PollInterval time.Duration
	// MaxSignalAge is the staleness bound: snapshot entries older than this
	// are rejected rather than traded.
	MaxSignalAge time.Duration
	// Window is the binary market length the phase guard is anchored to.
	Window time.Duration
	// Blackout blocks entries once the window has less than this much left.
	Blackout time.Duration
	// OpenDelay blocks entries this long after a window opens, while the
	// market re-prices.
	OpenDelay time.Duration
}

// DefaultConfig returns the standard loop timings for 15-minute windows.
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Second,
		MaxSignalAge: 90 * time.Second,
		Window:       15 * time.Minute,
		Blackout:     60 * time.Second,
		OpenDelay:    10 * time.Second,
	}
}

// Coordinator drives the execution side of the engine: each tick it settles
// due positions, then walks the asset universe and runs every fresh signal
// through the gate chain. Staleness and window phase are vetoed here, with
// a persisted rejection row matching the risk manager's shape; everything
// else is the account service's verdict. Each signal is decided at most
// once, tracked by Dedup.
type Coordinator struct {
	cfg       Config
	signals   SignalSource
	svc       Decider
	exec      TradeExecutor
	settler   Settler
	decisions domain.DecisionStore
	bus       domain.SignalBus
	dedup     *Dedup
	logger    *slog.Logger

	cleanupInterval time.Duration
}

// NewCoordinator wires the execution loop. settler, decisions, and bus may
// be nil; exec must not be.
func NewCoordinator(
	cfg Config,
	signals SignalSource,
	svc Decider,
	exec TradeExecutor,
	settler Settler,
	decisions domain.DecisionStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Coordinator {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxSignalAge <= 0 {
		cfg.MaxSignalAge = def.MaxSignalAge
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	// The dedup TTL must outlive both the freshness bound and the poll
	// cadence, or a slow loop could decide the same signal twice.
	dedupTTL := max(2*cfg.MaxSignalAge, 4*cfg.PollInterval)
	return &Coordinator{
		cfg:             cfg,
		signals:         signals,
		svc:             svc,
		exec:            exec,
		settler:         settler,
		decisions:       decisions,
		bus:             bus,
		dedup:           NewDedup(dedupTTL),
		logger:          logger.With(slog.String("component", "coordinator")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run starts the coordination loop. The first cycle fires immediately so
// positions left open by a previous run are settled without waiting a full
// poll interval.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started",
		slog.String("executor", c.exec.Name()),
		slog.Duration("poll_interval", c.cfg.PollInterval),
		slog.Duration("max_signal_age", c.cfg.MaxSignalAge),
		slog.Duration("blackout", c.cfg.Blackout),
		slog.Duration("open_delay", c.cfg.OpenDelay),
	)
	defer c.logger.Info("coordinator stopped")

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	cleanupTicker := time.NewTicker(c.cleanupInterval)
	defer cleanupTicker.Stop()

	c.cycle(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			c.cycle(ctx, t.UTC())
		case <-cleanupTicker.C:
			c.dedup.Cleanup()
		}
	}
}

// cycle runs one tick: settle first, so capital and streaks reflect the
// just-closed window before any new entry is sized, then process every
// asset.
func (c *Coordinator) cycle(ctx context.Context, now time.Time) {
	if c.settler != nil {
		if err := c.settler.SettleDue(ctx, now); err != nil {
			c.logger.Error("settlement pass failed",
				slog.String("error", err.Error()),
			)
		}
	}
	for _, asset := range c.signals.Assets() {
		c.process(ctx, asset, now)
	}
}

// process runs one asset's latest signal through the gate chain.
func (c *Coordinator) process(ctx context.Context, asset string, now time.Time) {
	// 1. Snapshot lookup. No signal yet means the engine is still warming
	// up for this asset.
	sig, ok := c.signals.Latest(asset)
	if !ok {
		return
	}

	log := c.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("asset", asset),
		slog.String("direction", string(sig.Direction)),
	)

	// 2. Only directional calls reach the decision path. The engine
	// publishes NO_TRADE every tick it has nothing to say; recording each
	// of those as a rejection row would bury the real ones.
	if !sig.Direction.Actionable() {
		return
	}

	// 3. Each signal is decided at most once.
	if c.dedup.Seen(sig.ID) {
		return
	}

	// 4. Staleness. The snapshot hands over the latest signal however old
	// it is; trading decisions only ever see fresh ones.
	if sig.Expired(now) || now.Sub(sig.CreatedAt) > c.cfg.MaxSignalAge {
		log.Warn("signal stale, rejecting",
			slog.Time("created_at", sig.CreatedAt),
			slog.Time("expires_at", sig.ExpiresAt),
		)
		d := c.reject(ctx, sig, domain.RejectStaleSignal, now)
		c.publishDecision(ctx, d)
		return
	}

	// 5. Window phase guard: no entries in the final blackout of a window,
	// when resolution is essentially decided, or right after open, while
	// the market re-prices.
	if reason, blocked := c.phaseBlocked(now); blocked {
		log.Info("window phase blocks entry",
			slog.String("phase", reason),
		)
		d := c.reject(ctx, sig, domain.RejectWindowBlackout, now)
		c.publishDecision(ctx, d)
		return
	}

	// 6. Risk verdict. The account service persists the decision row and
	// reserves the trade slot when it approves. A failed decide releases the
	// dedup claim: no verdict was recorded, so the next tick may retry while
	// the signal is still fresh.
	d, err := c.svc.Decide(ctx, sig, now)
	if err != nil {
		c.dedup.Forget(sig.ID)
		log.Error("decision failed",
			slog.String("error", err.Error()),
		)
		return
	}
	c.publishDecision(ctx, d)
	if !d.Approved {
		log.Info("trade rejected",
			slog.String("reason", string(d.Reason)),
			slog.Int("confidence", sig.Confidence),
		)
		return
	}

	// 7. Execution, with a single retry on transient failure. The trade
	// slot stays reserved either way; burning one slot is cheaper than
	// risking a double entry.
	if err := c.execute(ctx, d, sig, now); err != nil {
		log.Error("execution failed",
			slog.String("decision_id", d.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	log.Info("decision executed",
		slog.String("decision_id", d.ID),
		slog.String("executor", c.exec.Name()),
		slog.Float64("size", d.Size),
		slog.Float64("multiplier", d.Multiplier),
	)
}

// execute hands the decision to the executor, retrying once after a short
// pause. The retry keeps the original window anchor and gives up when the
// signal's freshness bound passes in the meantime.
func (c *Coordinator) execute(ctx context.Context, d domain.TradeDecision, sig domain.Signal, now time.Time) error {
	err := c.exec.Execute(ctx, d, sig, now)
	if err == nil {
		return nil
	}
	c.logger.Warn("execution attempt failed, retrying",
		slog.String("decision_id", d.ID),
		slog.String("error", err.Error()),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryDelay):
	}
	if sig.Expired(now.Add(retryDelay)) {
		return fmt.Errorf("signal expired during retry: %w", err)
	}
	return c.exec.Execute(ctx, d, sig, now)
}

// phaseBlocked reports whether now falls in a no-entry phase of its window.
func (c *Coordinator) phaseBlocked(now time.Time) (string, bool) {
	start, end := windowBounds(now, c.cfg.Window)
	if c.cfg.Blackout > 0 && end.Sub(now) <= c.cfg.Blackout {
		return "blackout", true
	}
	if c.cfg.OpenDelay > 0 && now.Sub(start) < c.cfg.OpenDelay {
		return "open_delay", true
	}
	return "", false
}

// reject builds and persists a coordinator-level rejection, shaped exactly
// like the risk manager's verdicts so downstream consumers see one decision
// stream.
func (c *Coordinator) reject(ctx context.Context, sig domain.Signal, reason domain.RejectionReason, now time.Time) domain.TradeDecision {
	d := domain.TradeDecision{
		ID:         uuid.NewString(),
		SignalID:   sig.ID,
		Asset:      sig.Asset,
		Strategy:   sig.Strategy,
		Direction:  sig.Direction,
		Reason:     reason,
		Confidence: sig.Confidence,
		Capital:    c.svc.State().Capital,
		CreatedAt:  now,
	}
	if c.decisions != nil {
		if err := c.decisions.Insert(ctx, d); err != nil {
			c.logger.Warn("rejection insert failed",
				slog.String("decision_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return d
}

// publishDecision fans the decision out on the bus, best effort.
func (c *Coordinator) publishDecision(ctx context.Context, d domain.TradeDecision) {
	if c.bus == nil {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.bus.Publish(pctx, ChannelDecision, payload); err != nil {
		c.logger.Warn("decision publish failed",
			slog.String("decision_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
}
