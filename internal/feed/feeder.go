package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
	"github.com/quantpulse/pulsebot/internal/platform/binance"
	"github.com/quantpulse/pulsebot/internal/signal"
)

const (
	// fallbackAfter is how long an asset's stream may stay silent before the
	// feeder starts polling the REST ticker for it.
	fallbackAfter = 15 * time.Second

	// fallbackPollInterval is the REST ticker poll cadence for silent assets.
	fallbackPollInterval = 5 * time.Second

	// connectTimeout bounds one WebSocket dial attempt.
	connectTimeout = 15 * time.Second

	// restLimitKey buckets all REST calls under one sliding-window budget,
	// well inside Binance's published request weight limits.
	restLimitKey = "binance_rest"
	restLimit    = 60
	restWindow   = time.Minute
)

// marketData is the REST surface the feeder needs from the exchange client.
type marketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// tradeStream is the WebSocket surface the feeder needs from the exchange
// client.
type tradeStream interface {
	Connect(ctx context.Context) error
	SubscribeTrades(ctx context.Context, symbols []string) error
	OnTrade(binance.TradeHandler)
	Close() error
}

// Feeder bridges Binance market data into the signal sampler and the shared
// price cache. On start it backfills 1m klines so scorers do not begin cold,
// then records live trades from the stream, polling the REST ticker for any
// asset whose stream goes quiet.
type Feeder struct {
	rest    marketData
	stream  tradeStream
	sampler *signal.Sampler
	prices  domain.PriceCache  // optional
	limiter domain.RateLimiter // optional
	logger  *slog.Logger

	symbols       map[string]string // asset -> exchange symbol
	assetBySymbol map[string]string
	backfill      int // minutes of 1m history

	mu         sync.Mutex
	lastSample map[string]time.Time // asset -> wall clock of last recorded sample
}

// NewFeeder creates a Feeder for the given asset-to-symbol universe.
// prices and limiter may be nil.
func NewFeeder(
	rest marketData,
	stream tradeStream,
	sampler *signal.Sampler,
	prices domain.PriceCache,
	limiter domain.RateLimiter,
	symbols map[string]string,
	backfillMinutes int,
	logger *slog.Logger,
) *Feeder {
	assetBySymbol := make(map[string]string, len(symbols))
	for asset, sym := range symbols {
		assetBySymbol[strings.ToUpper(sym)] = asset
	}
	return &Feeder{
		rest:          rest,
		stream:        stream,
		sampler:       sampler,
		prices:        prices,
		limiter:       limiter,
		logger:        logger.With(slog.String("component", "feeder")),
		symbols:       symbols,
		assetBySymbol: assetBySymbol,
		backfill:      backfillMinutes,
		lastSample:    make(map[string]time.Time),
	}
}

// Run backfills history, connects the trade stream, and keeps data flowing
// until ctx is cancelled. The stream client reconnects on its own; Run's
// fallback loop covers the gaps with REST ticker polls.
func (f *Feeder) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no assets configured, feeder exiting")
		return nil
	}

	for asset, sym := range f.symbols {
		if err := f.backfillAsset(ctx, asset, sym); err != nil {
			f.logger.Warn("backfill failed, scorers start cold for this asset",
				slog.String("asset", asset), slog.String("error", err.Error()))
		}
	}

	f.stream.OnTrade(f.handleTrade)

	if err := f.connectWithRetry(ctx); err != nil {
		return err
	}
	defer f.stream.Close()

	streams := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		streams = append(streams, sym)
	}
	if err := f.stream.SubscribeTrades(ctx, streams); err != nil {
		return err
	}
	f.logger.Info("trade stream subscribed", slog.Int("assets", len(f.symbols)))

	f.fallbackLoop(ctx)
	return ctx.Err()
}

// Connected reports whether any asset produced a sample recently enough for
// the feed to count as live.
func (f *Feeder) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-2 * fallbackAfter)
	for _, at := range f.lastSample {
		if at.After(cutoff) {
			return true
		}
	}
	return false
}

func (f *Feeder) connectWithRetry(ctx context.Context) error {
	delay := 2 * time.Second
	for {
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := f.stream.Connect(dialCtx)
		cancel()
		if err == nil {
			return nil
		}

		f.logger.Warn("trade stream connect failed, retrying",
			slog.String("error", err.Error()), slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

func (f *Feeder) backfillAsset(ctx context.Context, asset, symbol string) error {
	if f.backfill <= 0 {
		return nil
	}
	if !f.allowREST(ctx) {
		return domain.ErrRateLimited
	}

	klines, err := f.rest.Klines(ctx, symbol, "1m", f.backfill)
	if err != nil {
		return err
	}

	recorded := 0
	for _, k := range klines {
		if err := f.record(k.ToSample(asset)); err == nil {
			recorded++
		}
	}
	f.logger.Info("backfilled klines",
		slog.String("asset", asset), slog.Int("bars", recorded))
	return nil
}

// handleTrade runs on the stream client's read goroutine.
func (f *Feeder) handleTrade(ev binance.TradeEvent) {
	asset, ok := f.assetBySymbol[strings.ToUpper(ev.Symbol)]
	if !ok {
		return
	}

	sample, err := ev.ToSample(asset)
	if err != nil {
		f.logger.Debug("dropping malformed trade",
			slog.String("symbol", ev.Symbol), slog.String("error", err.Error()))
		return
	}

	if err := f.record(sample); err != nil {
		var ooo *domain.OutOfOrderError
		if !errors.As(err, &ooo) {
			f.logger.Debug("sample rejected",
				slog.String("asset", asset), slog.String("error", err.Error()))
		}
	}
}

// fallbackLoop polls the REST ticker for assets whose stream has gone quiet.
// It returns when ctx is cancelled.
func (f *Feeder) fallbackLoop(ctx context.Context) {
	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for asset, sym := range f.symbols {
				if !f.silent(asset) {
					continue
				}
				f.pollTicker(ctx, asset, sym)
			}
		}
	}
}

func (f *Feeder) silent(asset string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.lastSample[asset]
	return !ok || time.Since(last) > fallbackAfter
}

func (f *Feeder) pollTicker(ctx context.Context, asset, symbol string) {
	if !f.allowREST(ctx) {
		return
	}

	price, err := f.rest.TickerPrice(ctx, symbol)
	if err != nil {
		f.logger.Warn("ticker fallback failed",
			slog.String("asset", asset), slog.String("error", err.Error()))
		return
	}

	sample := domain.PriceSample{
		Asset:     asset,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}
	if err := f.record(sample); err == nil {
		f.logger.Debug("ticker fallback sample recorded", slog.String("asset", asset))
	}
}

// record pushes a sample into the sampler, mirrors it to the price cache,
// and stamps the asset's liveness clock.
func (f *Feeder) record(sample domain.PriceSample) error {
	if err := f.sampler.Record(sample); err != nil {
		return err
	}

	f.mu.Lock()
	f.lastSample[sample.Asset] = time.Now()
	f.mu.Unlock()

	if f.prices != nil {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := f.prices.SetPrice(cacheCtx, sample.Asset, sample.Price, sample.Timestamp); err != nil {
			f.logger.Debug("price cache update failed",
				slog.String("asset", sample.Asset), slog.String("error", err.Error()))
		}
	}
	return nil
}

// allowREST consults the shared rate limit budget. Limiter errors fail open.
func (f *Feeder) allowREST(ctx context.Context) bool {
	if f.limiter == nil {
		return true
	}
	allowed, err := f.limiter.Allow(ctx, restLimitKey, restLimit, restWindow)
	if err != nil {
		f.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return true
	}
	if !allowed {
		f.logger.Debug("rest call skipped, budget exhausted")
	}
	return allowed
}
