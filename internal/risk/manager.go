// Package risk sizes trades and vetoes them against account limits. The
// manager is pure: it reads a signal and an account snapshot and returns a
// decision; all account mutation happens in the service layer.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Config holds the position-sizing and veto limits.
type Config struct {
	// BasePositionPct is the fraction of capital a 100-confidence trade
	// risks before multipliers.
	BasePositionPct float64
	// MaxPositionPct caps any single trade as a fraction of capital.
	MaxPositionPct float64
	// MinTradeSize is the dollar floor a computed size is raised to.
	MinTradeSize float64
	// MinConfidence is the lowest signal confidence worth trading.
	MinConfidence int
	// MaxTradesPerDay caps the number of approved trades per UTC day.
	MaxTradesPerDay int
	// Cooldown is the base spacing between trades; the effective value
	// stretches on loss streaks and shrinks on win streaks.
	Cooldown time.Duration
	// MaxDailyLossPct stops trading once today's loss reaches this fraction
	// of the day-start capital.
	MaxDailyLossPct float64
	// MaxDrawdownPct is the peak-to-current decline beyond which size is
	// cut in half. Half this value marks the earlier 0.7x soft cut.
	MaxDrawdownPct float64
	// CapitalPreservationPct is the hard floor: capital below this fraction
	// of the initial stake halts the account until a manual reset.
	CapitalPreservationPct float64
}

// DefaultConfig returns the standard limits for a small live account.
func DefaultConfig() Config {
	return Config{
		BasePositionPct:        0.03,
		MaxPositionPct:         0.15,
		MinTradeSize:           10,
		MinConfidence:          70,
		MaxTradesPerDay:        20,
		Cooldown:               5 * time.Minute,
		MaxDailyLossPct:        0.15,
		MaxDrawdownPct:         0.20,
		CapitalPreservationPct: 0.30,
	}
}

// Validate reports every out-of-range limit at once.
func (c Config) Validate() error {
	var errs []string
	if c.BasePositionPct <= 0 || c.BasePositionPct > 1 {
		errs = append(errs, "base_position_pct must be in (0, 1]")
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		errs = append(errs, "max_position_pct must be in (0, 1]")
	}
	if c.BasePositionPct > c.MaxPositionPct {
		errs = append(errs, "base_position_pct must not exceed max_position_pct")
	}
	if c.MinTradeSize < 0 {
		errs = append(errs, "min_trade_size must not be negative")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		errs = append(errs, "min_confidence must be in [0, 100]")
	}
	if c.MaxTradesPerDay <= 0 {
		errs = append(errs, "max_trades_per_day must be positive")
	}
	if c.Cooldown <= 0 {
		errs = append(errs, "cooldown must be positive")
	}
	if c.MaxDailyLossPct <= 0 || c.MaxDailyLossPct > 1 {
		errs = append(errs, "max_daily_loss_pct must be in (0, 1]")
	}
	if c.MaxDrawdownPct <= 0 || c.MaxDrawdownPct > 1 {
		errs = append(errs, "max_drawdown_pct must be in (0, 1]")
	}
	if c.CapitalPreservationPct < 0 || c.CapitalPreservationPct >= 1 {
		errs = append(errs, "capital_preservation_pct must be in [0, 1)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("risk config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Manager applies the sizing formula and the veto chain.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager returns a manager over the given limits.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_manager")),
	}
}

// Config returns the manager's limits.
func (m *Manager) Config() Config {
	return m.cfg
}

// Evaluate turns a signal plus the current account snapshot into a trade
// decision. Vetoes are checked in a fixed order so the reported reason is
// always the first limit hit, and the returned decision is final: the
// caller must not resize it.
func (m *Manager) Evaluate(sig domain.Signal, acct domain.AccountState, now time.Time) domain.TradeDecision {
	d := domain.TradeDecision{
		ID:         uuid.NewString(),
		SignalID:   sig.ID,
		Asset:      sig.Asset,
		Strategy:   sig.Strategy,
		Direction:  sig.Direction,
		Confidence: sig.Confidence,
		Capital:    acct.Capital,
		CreatedAt:  now,
	}

	if reason := m.veto(sig, acct, now); reason != domain.RejectNone {
		d.Reason = reason
		m.logger.Debug("trade rejected",
			slog.String("asset", sig.Asset),
			slog.String("reason", string(reason)),
			slog.Int("confidence", sig.Confidence),
		)
		return d
	}

	mult := m.StreakMultiplier(acct) * m.DrawdownMultiplier(acct)
	base := acct.Capital * m.cfg.BasePositionPct * float64(sig.Confidence) / 100
	size := base * mult

	// 5% of capital always stays uncommitted.
	maxSize := min(acct.Capital*m.cfg.MaxPositionPct, acct.Capital*0.95)
	if m.cfg.MinTradeSize > maxSize {
		d.Reason = domain.RejectBelowMinSize
		m.logger.Debug("trade rejected",
			slog.String("asset", sig.Asset),
			slog.String("reason", string(domain.RejectBelowMinSize)),
			slog.Float64("capital", acct.Capital),
		)
		return d
	}
	size = min(size, maxSize)
	size = max(size, m.cfg.MinTradeSize)
	size = math.Round(size*100) / 100

	d.Approved = true
	d.Size = size
	d.SizePct = size / acct.Capital
	d.Multiplier = mult
	m.logger.Debug("trade approved",
		slog.String("asset", sig.Asset),
		slog.String("direction", string(sig.Direction)),
		slog.Float64("size", size),
		slog.Float64("multiplier", mult),
		slog.Int("confidence", sig.Confidence),
	)
	return d
}

// veto returns the first limit the trade violates, RejectNone when clean.
func (m *Manager) veto(sig domain.Signal, acct domain.AccountState, now time.Time) domain.RejectionReason {
	switch {
	case acct.Halted:
		return domain.RejectHalted
	case acct.Capital < m.PreservationFloor(acct):
		return domain.RejectCapitalPreservation
	case !sig.Direction.Actionable():
		return domain.RejectNoSignal
	case sig.Confidence < m.cfg.MinConfidence:
		return domain.RejectLowConfidence
	case acct.TradesToday >= m.cfg.MaxTradesPerDay:
		return domain.RejectDailyTradeLimit
	case acct.DailyLoss() >= m.cfg.MaxDailyLossPct:
		return domain.RejectDailyLossLimit
	case acct.LastTradeAt != nil && now.Sub(*acct.LastTradeAt) < m.EffectiveCooldown(acct):
		return domain.RejectCooldown
	}
	return domain.RejectNone
}

// PreservationFloor returns the capital level below which the account halts.
func (m *Manager) PreservationFloor(acct domain.AccountState) float64 {
	return acct.InitialCapital * m.cfg.CapitalPreservationPct
}

// StreakMultiplier maps the account's streak counters onto the sizing tier
// table. Win and loss streaks are mutually exclusive, so at most one side
// applies.
func (m *Manager) StreakMultiplier(acct domain.AccountState) float64 {
	switch {
	case acct.LossStreak >= 4:
		return 0.3
	case acct.LossStreak == 3:
		return 0.5
	case acct.LossStreak == 2:
		return 0.7
	case acct.WinStreak >= 5:
		return 1.5
	case acct.WinStreak == 4:
		return 1.4
	case acct.WinStreak == 3:
		return 1.2
	}
	return 1.0
}

// DrawdownMultiplier shrinks size as capital falls from its peak: 0.7x past
// half the drawdown limit, 0.35x past the limit itself. Breaching the limit
// cuts size, it does not block trading.
func (m *Manager) DrawdownMultiplier(acct domain.AccountState) float64 {
	dd := acct.Drawdown()
	mult := 1.0
	if dd > m.cfg.MaxDrawdownPct/2 {
		mult *= 0.7
	}
	if dd > m.cfg.MaxDrawdownPct {
		mult *= 0.5
	}
	return mult
}

// EffectiveCooldown derives the current trade spacing from the base value:
// each consecutive loss stretches it 1.5x, each consecutive win shrinks it
// 0.85x, clamped to [base/2, base*4].
func (m *Manager) EffectiveCooldown(acct domain.AccountState) time.Duration {
	base := float64(m.cfg.Cooldown)
	eff := base * math.Pow(1.5, float64(acct.LossStreak)) * math.Pow(0.85, float64(acct.WinStreak))
	eff = min(max(eff, base/2), base*4)
	return time.Duration(eff)
}
