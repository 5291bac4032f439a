package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Redis surfaces the engine publishes to alongside the in-process snapshot.
const (
	ChannelSignal = "ch:signal"
	StreamSignals = "stream:signals"
)

// EngineConfig holds the evaluation loop's scheduling parameters.
type EngineConfig struct {
	Assets []string
	// Interval is the evaluation tick period.
	Interval time.Duration
	// Bar is the fixed spacing of the resampled close series handed to
	// bar-based scorers.
	Bar time.Duration
	// SignalTTL is the freshness bound stamped on every published signal.
	SignalTTL time.Duration
	// PublishTimeout bounds the per-tick Redis publication budget so the
	// loop never blocks on cache I/O.
	PublishTimeout time.Duration
}

// DefaultEngineConfig returns the standard loop timings.
func DefaultEngineConfig(assets []string) EngineConfig {
	return EngineConfig{
		Assets:         assets,
		Interval:       5 * time.Second,
		Bar:            30 * time.Second,
		SignalTTL:      90 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// Engine runs the signal loop: on every tick it extracts features per asset,
// scores them with the active scorer, and publishes the result to the
// in-process snapshot plus, best effort, the Redis signal cache and bus.
// Evaluation never blocks on I/O; a failed cache publication is logged and
// the loop continues.
type Engine struct {
	cfg      EngineConfig
	sampler  *Sampler
	extract  *Extractor
	registry *Registry
	snapshot *Snapshot
	cache    domain.SignalCache
	bus      domain.SignalBus
	logger   *slog.Logger

	mu      sync.Mutex
	active  Scorer
	recent  []domain.Signal
	recentN int
}

// NewEngine wires the evaluation loop. cache and bus may be nil; the
// snapshot is then the only output surface.
func NewEngine(cfg EngineConfig, sampler *Sampler, extract *Extractor, registry *Registry, snapshot *Snapshot, cache domain.SignalCache, bus domain.SignalBus, logger *slog.Logger) *Engine {
	def := DefaultEngineConfig(cfg.Assets)
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Bar <= 0 {
		cfg.Bar = def.Bar
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = def.SignalTTL
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	return &Engine{
		cfg:      cfg,
		sampler:  sampler,
		extract:  extract,
		registry: registry,
		snapshot: snapshot,
		cache:    cache,
		bus:      bus,
		logger:   logger.With(slog.String("component", "signal_engine")),
		recentN:  500,
	}
}

// SetActive switches the active scorer to the one registered under name.
func (e *Engine) SetActive(name string) error {
	s, err := e.registry.Get(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.active = s
	e.mu.Unlock()
	e.logger.Info("active scorer changed", slog.String("scorer", name))
	return nil
}

// ActiveName returns the active scorer's name, empty when none is set.
func (e *Engine) ActiveName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ""
	}
	return e.active.Name()
}

// ListNames returns the names of all registered scorers in sorted order.
func (e *Engine) ListNames() []string {
	return e.registry.List()
}

// Assets returns the engine's asset universe.
func (e *Engine) Assets() []string {
	return e.snapshot.Assets()
}

// Latest returns the most recent published signal for the asset, if any.
func (e *Engine) Latest(asset string) (domain.Signal, bool) {
	return e.snapshot.Latest(asset)
}

// RecentSignals returns up to limit most recent published signals, newest
// first.
func (e *Engine) RecentSignals(limit int) []domain.Signal {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.Signal, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// Run drives the evaluation loop until the context is cancelled. The first
// tick fires immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("signal engine started",
		slog.Any("assets", e.cfg.Assets),
		slog.String("scorer", e.ActiveName()),
		slog.Duration("interval", e.cfg.Interval),
	)
	defer e.logger.Info("signal engine stopped")

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			e.tick(ctx, t.UTC())
		}
	}
}

// tick evaluates and publishes every asset once at the given instant.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	scorer := e.active
	e.mu.Unlock()
	if scorer == nil {
		return
	}
	for _, asset := range e.cfg.Assets {
		sig := e.evaluate(asset, now, scorer)
		e.publish(ctx, sig)
	}
}

// evaluate produces one signal for one asset. Data errors degrade to a
// NO_TRADE signal carrying the cause, so the snapshot stays fresh even while
// the buffer is warming up.
func (e *Engine) evaluate(asset string, now time.Time, scorer Scorer) domain.Signal {
	fs, err := e.extract.ExtractAt(asset, now)
	if err != nil {
		if domain.IsInsufficientData(err) {
			e.logger.Debug("cycle skipped", slog.String("asset", asset), slog.String("cause", err.Error()))
		} else {
			e.logger.Warn("feature extraction failed", slog.String("asset", asset), slog.String("error", err.Error()))
		}
		sig := domain.Signal{
			Asset:     asset,
			Strategy:  scorer.Name(),
			Direction: domain.DirectionNone,
			Reasons:   []string{err.Error()},
			CreatedAt: now,
		}
		if latest, ok := e.sampler.Latest(asset); ok {
			sig.Price = latest.Price
		}
		return sig
	}

	var closes []float64
	if n := scorer.Bars(); n > 0 {
		closes = e.sampler.ResampleAt(asset, e.cfg.Bar, n, now)
	}
	return scorer.Score(fs, closes)
}

// publish stamps identity and freshness onto the signal and fans it out.
func (e *Engine) publish(ctx context.Context, sig domain.Signal) {
	sig.ID = uuid.NewString()
	sig.ExpiresAt = sig.CreatedAt.Add(e.cfg.SignalTTL)

	if prev, ok := e.snapshot.Latest(sig.Asset); ok && prev.Direction != sig.Direction {
		e.logger.Info("direction changed",
			slog.String("asset", sig.Asset),
			slog.String("from", string(prev.Direction)),
			slog.String("to", string(sig.Direction)),
			slog.Int("confidence", sig.Confidence),
		)
	}
	e.snapshot.Publish(sig)
	e.remember(sig)

	e.logger.Debug("signal published",
		slog.String("asset", sig.Asset),
		slog.String("direction", string(sig.Direction)),
		slog.Int("confidence", sig.Confidence),
		slog.Float64("score", sig.Score),
	)

	if e.cache == nil && e.bus == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	defer cancel()
	if e.cache != nil {
		if err := e.cache.Set(pctx, sig); err != nil {
			e.logger.Warn("signal cache publish failed", slog.String("asset", sig.Asset), slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		payload, err := json.Marshal(sig)
		if err != nil {
			e.logger.Warn("signal marshal failed", slog.String("asset", sig.Asset), slog.String("error", err.Error()))
			return
		}
		if err := e.bus.Publish(pctx, ChannelSignal, payload); err != nil {
			e.logger.Warn("signal bus publish failed", slog.String("asset", sig.Asset), slog.String("error", err.Error()))
		}
		if sig.Direction.Actionable() {
			if err := e.bus.StreamAppend(pctx, StreamSignals, payload); err != nil {
				e.logger.Warn("signal stream append failed", slog.String("asset", sig.Asset), slog.String("error", err.Error()))
			}
		}
	}
}

func (e *Engine) remember(sig domain.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, sig)
	if overflow := len(e.recent) - e.recentN; overflow > 0 {
		e.recent = append([]domain.Signal(nil), e.recent[overflow:]...)
	}
}
