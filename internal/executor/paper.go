package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// spotLookback bounds how far before the window boundary a settlement spot
// may come from before falling back to the live price.
const spotLookback = time.Minute

// SpotSource answers spot price lookups for settlement. Implemented by the
// signal sampler.
type SpotSource interface {
	WindowAt(asset string, dur time.Duration, now time.Time) []domain.PriceSample
	Latest(asset string) (domain.PriceSample, bool)
}

// PaperConfig holds the synthetic market terms.
type PaperConfig struct {
	// EntryPrice is the assumed binary contract price per share. A fresh
	// up/down window with no information is worth 0.5.
	EntryPrice float64
	// Window is the binary market length.
	Window time.Duration
}

// DefaultPaperConfig returns the standard 15-minute market at even odds.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{EntryPrice: 0.5, Window: 15 * time.Minute}
}

// PaperExecutor simulates a binary up/down venue: an approved decision
// becomes an open trade in the current window at the configured entry
// price, and SettleDue resolves every trade whose window has ended by
// comparing the spot at the boundary against the spot at entry. A tie
// resolves DOWN, matching venues that pay UP only on a strict rise. Wins
// pay (1 - entry) per share, losses cost the entry per share.
//
// State lives in the trade store, not in memory, so open positions survive
// a restart and are settled by the next poll.
type PaperExecutor struct {
	cfg    PaperConfig
	trades domain.TradeStore
	sink   OutcomeSink
	spots  SpotSource
	logger *slog.Logger
}

// NewPaperExecutor creates a PaperExecutor. Out-of-range config values fall
// back to DefaultPaperConfig.
func NewPaperExecutor(cfg PaperConfig, trades domain.TradeStore, sink OutcomeSink, spots SpotSource, logger *slog.Logger) *PaperExecutor {
	def := DefaultPaperConfig()
	if cfg.EntryPrice <= 0 || cfg.EntryPrice >= 1 {
		cfg.EntryPrice = def.EntryPrice
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &PaperExecutor{
		cfg:    cfg,
		trades: trades,
		sink:   sink,
		spots:  spots,
		logger: logger.With(slog.String("component", "paper_executor")),
	}
}

// Name identifies the executor in logs and status output.
func (p *PaperExecutor) Name() string { return "paper" }

// Execute opens a synthetic position for the decision in the window
// enclosing now.
func (p *PaperExecutor) Execute(ctx context.Context, d domain.TradeDecision, sig domain.Signal, now time.Time) error {
	openSpot := sig.Price
	if openSpot <= 0 {
		if s, ok := p.spots.Latest(d.Asset); ok {
			openSpot = s.Price
		}
	}
	if openSpot <= 0 {
		return fmt.Errorf("executor: no spot price for %s, cannot open position", d.Asset)
	}

	start, end := windowBounds(now, p.cfg.Window)
	t := domain.Trade{
		ID:          uuid.NewString(),
		DecisionID:  d.ID,
		SignalID:    d.SignalID,
		Asset:       d.Asset,
		Strategy:    d.Strategy,
		Direction:   d.Direction,
		Size:        d.Size,
		EntryPrice:  p.cfg.EntryPrice,
		Shares:      d.Size / p.cfg.EntryPrice,
		OpenSpot:    openSpot,
		WindowStart: start,
		WindowEnd:   end,
		Status:      domain.TradeStatusOpen,
		OpenedAt:    now,
	}
	if err := p.trades.Insert(ctx, t); err != nil {
		return fmt.Errorf("executor: open paper trade: %w", err)
	}

	p.logger.Info("paper trade opened",
		slog.String("trade_id", t.ID),
		slog.String("asset", t.Asset),
		slog.String("direction", string(t.Direction)),
		slog.Float64("size", t.Size),
		slog.Float64("shares", t.Shares),
		slog.Float64("open_spot", t.OpenSpot),
		slog.Time("window_end", t.WindowEnd),
	)
	return nil
}

// SettleDue resolves every open trade whose window has ended. A trade that
// cannot be resolved yet, because no spot is available, stays open and is
// retried on the next poll.
func (p *PaperExecutor) SettleDue(ctx context.Context, now time.Time) error {
	open, err := p.trades.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("executor: list open trades: %w", err)
	}
	for _, t := range open {
		if t.WindowEnd.After(now) {
			continue
		}
		if err := p.settle(ctx, t, now); err != nil {
			p.logger.Error("paper trade settlement failed",
				slog.String("trade_id", t.ID),
				slog.String("asset", t.Asset),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// settle resolves one due trade. The outcome is applied to the account
// before the trade row is closed: ApplyOutcome is idempotent per trade ID,
// so a crash between the two writes leaves an open row that replays cleanly
// on the next poll.
func (p *PaperExecutor) settle(ctx context.Context, t domain.Trade, now time.Time) error {
	closeSpot, ok := p.closeSpot(t)
	if !ok {
		p.logger.Warn("no spot to settle against yet",
			slog.String("trade_id", t.ID),
			slog.String("asset", t.Asset),
		)
		return nil
	}

	winner := domain.DirectionDown
	if closeSpot > t.OpenSpot {
		winner = domain.DirectionUp
	}
	result := domain.OutcomeLoss
	exitPrice := 0.0
	if t.Direction == winner {
		result = domain.OutcomeWin
		exitPrice = 1.0
	}
	pnl := t.Payout(result)

	rep := domain.OutcomeReport{
		TradeID:    t.ID,
		Asset:      t.Asset,
		Result:     result,
		PnL:        pnl,
		EntryPrice: t.EntryPrice,
		ExitPrice:  exitPrice,
		SettledAt:  now,
	}
	if _, err := p.sink.ApplyOutcome(ctx, rep); err != nil && !errors.Is(err, domain.ErrDuplicateOutcome) {
		return fmt.Errorf("apply outcome: %w", err)
	}
	if err := p.trades.Settle(ctx, t.ID, result, pnl, closeSpot, now); err != nil {
		return fmt.Errorf("close trade row: %w", err)
	}

	p.logger.Info("paper trade settled",
		slog.String("trade_id", t.ID),
		slog.String("asset", t.Asset),
		slog.String("direction", string(t.Direction)),
		slog.String("result", string(result)),
		slog.Float64("pnl", pnl),
		slog.Float64("open_spot", t.OpenSpot),
		slog.Float64("close_spot", closeSpot),
	)
	return nil
}

// closeSpot picks the spot to resolve against: the newest sample at or
// before the window boundary, or the live price when the feed has no sample
// in the final minute of the window.
func (p *PaperExecutor) closeSpot(t domain.Trade) (float64, bool) {
	if samples := p.spots.WindowAt(t.Asset, spotLookback, t.WindowEnd); len(samples) > 0 {
		return samples[len(samples)-1].Price, true
	}
	if s, ok := p.spots.Latest(t.Asset); ok {
		return s.Price, true
	}
	return 0, false
}

var (
	_ TradeExecutor = (*PaperExecutor)(nil)
	_ Settler       = (*PaperExecutor)(nil)
)
