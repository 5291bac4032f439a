package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
	"github.com/quantpulse/pulsebot/internal/risk"
)

// AccountConfig seeds the account when no persisted state exists yet.
type AccountConfig struct {
	ID             string
	InitialCapital float64
}

// DefaultAccountConfig returns the single-account default.
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{ID: "default", InitialCapital: 300}
}

// accountLockTTL bounds how long a crashed holder can leave the account
// lock dangling.
const accountLockTTL = 10 * time.Second

// AccountService owns the account state. It is the only writer: trade
// decisions, outcome application, daily rollover, and halt management all
// run under one mutex so capital and streak counters never see a lost
// update. When a LockManager is provided, every mutation additionally holds
// the distributed account lock, which serializes writers across processes
// sharing one account. Every mutation is persisted before the method
// returns; a write that fails after one retry is surfaced as an error
// because capital must never silently diverge from disk.
type AccountService struct {
	cfg       AccountConfig
	store     domain.AccountStore
	outcomes  domain.OutcomeStore
	decisions domain.DecisionStore
	risk      *risk.Manager
	bus       domain.SignalBus
	audit     domain.AuditStore
	locker    domain.LockManager
	logger    *slog.Logger

	mu    sync.Mutex
	state domain.AccountState
}

// NewAccountService creates an AccountService. bus, audit, and locker may
// be nil; a nil locker skips cross-process locking.
func NewAccountService(
	cfg AccountConfig,
	store domain.AccountStore,
	outcomes domain.OutcomeStore,
	decisions domain.DecisionStore,
	riskMgr *risk.Manager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	locker domain.LockManager,
	logger *slog.Logger,
) *AccountService {
	if cfg.ID == "" {
		cfg.ID = DefaultAccountConfig().ID
	}
	return &AccountService{
		cfg:       cfg,
		store:     store,
		outcomes:  outcomes,
		decisions: decisions,
		risk:      riskMgr,
		bus:       bus,
		audit:     audit,
		locker:    locker,
		logger:    logger,
	}
}

// lockAccount takes the distributed account lock when one is configured.
// Callers treat domain.ErrLockHeld as transient and retry.
func (s *AccountService) lockAccount(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Acquire(ctx, "account:"+s.cfg.ID, accountLockTTL)
	if err != nil {
		return nil, fmt.Errorf("account_service: lock account %q: %w", s.cfg.ID, err)
	}
	return unlock, nil
}

// Load restores the persisted account state, seeding a fresh account on
// first run. Must be called once before any other method.
func (s *AccountService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Get(ctx, s.cfg.ID)
	switch {
	case err == nil:
		s.state = state
		s.logger.InfoContext(ctx, "account_service: state restored",
			slog.String("account", state.ID),
			slog.Float64("capital", state.Capital),
			slog.Int("win_streak", state.WinStreak),
			slog.Int("loss_streak", state.LossStreak),
			slog.Bool("halted", state.Halted),
		)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		s.state = s.seed(time.Now().UTC())
		if err := s.persistLocked(ctx); err != nil {
			return fmt.Errorf("account_service: seed account: %w", err)
		}
		s.logger.InfoContext(ctx, "account_service: account seeded",
			slog.String("account", s.state.ID),
			slog.Float64("capital", s.state.Capital),
		)
		return nil
	default:
		return fmt.Errorf("account_service: load account %q: %w", s.cfg.ID, err)
	}
}

// State returns a copy of the current account state.
func (s *AccountService) State() domain.AccountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Decide evaluates the signal against the current account under the single
// writer lock. An approved decision reserves its trade slot immediately:
// trades_today is incremented and last_trade_at set before the lock is
// released, so concurrent asset loops cannot both slip through the cooldown
// or the daily cap. The decision row itself is persisted best effort.
func (s *AccountService) Decide(ctx context.Context, sig domain.Signal, now time.Time) (domain.TradeDecision, error) {
	unlock, err := s.lockAccount(ctx)
	if err != nil {
		return domain.TradeDecision{}, err
	}
	defer unlock()

	s.mu.Lock()
	s.rolloverLocked(now)

	d := s.risk.Evaluate(sig, s.state, now)
	if d.Approved {
		s.state.TradesToday++
		at := now
		s.state.LastTradeAt = &at
		s.state.UpdatedAt = now
		if err := s.persistLocked(ctx); err != nil {
			// Roll the reservation back so a dropped write cannot leave
			// phantom trade slots in memory.
			s.state.TradesToday--
			s.state.LastTradeAt = nil
			s.mu.Unlock()
			return domain.TradeDecision{}, fmt.Errorf("account_service: persist trade reservation: %w", err)
		}
	} else if d.Reason == domain.RejectCapitalPreservation && !s.state.Halted {
		s.haltLocked(ctx, now, "capital preservation floor breached")
	}
	s.mu.Unlock()

	if s.decisions != nil {
		if err := s.decisions.Insert(ctx, d); err != nil {
			s.logger.WarnContext(ctx, "account_service: decision insert failed",
				slog.String("decision_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return d, nil
}

// ApplyOutcome folds one settled trade back into the account: capital,
// daily P&L, win/loss counters, and the mutually exclusive streak pair.
// Reports are idempotent per TradeID; a replay returns the current state
// and domain.ErrDuplicateOutcome without touching anything.
func (s *AccountService) ApplyOutcome(ctx context.Context, rep domain.OutcomeReport) (domain.AccountState, error) {
	if rep.TradeID == "" {
		return domain.AccountState{}, fmt.Errorf("account_service: outcome report missing trade id")
	}

	unlock, err := s.lockAccount(ctx)
	if err != nil {
		return domain.AccountState{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	dup, err := s.outcomes.Exists(ctx, rep.TradeID)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("account_service: outcome lookup for %q: %w", rep.TradeID, err)
	}
	if dup {
		s.logger.WarnContext(ctx, "account_service: duplicate outcome ignored",
			slog.String("trade_id", rep.TradeID),
			slog.String("result", string(rep.Result)),
		)
		return s.state, domain.ErrDuplicateOutcome
	}
	if err := s.outcomes.Insert(ctx, rep); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return s.state, domain.ErrDuplicateOutcome
		}
		return domain.AccountState{}, fmt.Errorf("account_service: record outcome %q: %w", rep.TradeID, err)
	}

	prev := s.state
	s.rolloverLocked(rep.SettledAt)
	s.state.Capital += rep.PnL
	s.state.DailyPnL += rep.PnL
	switch rep.Result {
	case domain.OutcomeWin:
		s.state.Wins++
		s.state.WinStreak++
		s.state.LossStreak = 0
	case domain.OutcomeLoss:
		s.state.Losses++
		s.state.LossStreak++
		s.state.WinStreak = 0
	}
	if s.state.Capital > s.state.PeakCapital {
		s.state.PeakCapital = s.state.Capital
	}
	s.state.UpdatedAt = rep.SettledAt

	if !s.state.Halted && s.state.Capital < s.risk.PreservationFloor(s.state) {
		s.haltLocked(ctx, rep.SettledAt, "capital preservation floor breached")
	}

	if err := s.persistLocked(ctx); err != nil {
		s.state = prev
		return domain.AccountState{}, fmt.Errorf("account_service: persist outcome %q: %w", rep.TradeID, err)
	}

	s.logger.InfoContext(ctx, "account_service: outcome applied",
		slog.String("trade_id", rep.TradeID),
		slog.String("result", string(rep.Result)),
		slog.Float64("pnl", rep.PnL),
		slog.Float64("capital", s.state.Capital),
		slog.Int("win_streak", s.state.WinStreak),
		slog.Int("loss_streak", s.state.LossStreak),
	)
	s.publishEvent(ctx, "outcome_applied", map[string]any{
		"trade_id":    rep.TradeID,
		"result":      string(rep.Result),
		"pnl":         rep.PnL,
		"capital":     s.state.Capital,
		"win_streak":  s.state.WinStreak,
		"loss_streak": s.state.LossStreak,
	})
	return s.state, nil
}

// ResetDaily starts a fresh trading day: counters zeroed and the day-start
// capital re-anchored to the current capital. The cron scheduler calls this
// at UTC midnight; Decide and ApplyOutcome also roll over lazily in case
// the process slept through the boundary.
func (s *AccountService) ResetDaily(ctx context.Context, now time.Time) error {
	unlock, err := s.lockAccount(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	day := now.UTC().Format(time.DateOnly)
	if s.state.TradingDay == day {
		return nil
	}
	s.rolloverLocked(now)
	if err := s.persistLocked(ctx); err != nil {
		return fmt.Errorf("account_service: persist daily reset: %w", err)
	}
	s.logger.InfoContext(ctx, "account_service: daily counters reset",
		slog.String("trading_day", s.state.TradingDay),
		slog.Float64("day_start_capital", s.state.DayStartCapital),
	)
	s.publishEvent(ctx, "daily_reset", map[string]any{
		"trading_day":       s.state.TradingDay,
		"day_start_capital": s.state.DayStartCapital,
	})
	return nil
}

// Reset clears the halt latch. A positive capital value re-seeds the
// account at that stake, which also moves the preservation floor; streaks
// and daily counters restart while lifetime win/loss totals survive.
func (s *AccountService) Reset(ctx context.Context, capital float64, now time.Time) (domain.AccountState, error) {
	unlock, err := s.lockAccount(ctx)
	if err != nil {
		return domain.AccountState{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state.Halted = false
	s.state.HaltReason = ""
	if capital > 0 {
		s.state.Capital = capital
		s.state.InitialCapital = capital
		s.state.DayStartCapital = capital
		s.state.PeakCapital = capital
		s.state.DailyPnL = 0
		s.state.TradesToday = 0
		s.state.WinStreak = 0
		s.state.LossStreak = 0
		s.state.LastTradeAt = nil
		s.state.TradingDay = now.UTC().Format(time.DateOnly)
	}
	s.state.UpdatedAt = now

	if err := s.persistLocked(ctx); err != nil {
		s.state = prev
		return domain.AccountState{}, fmt.Errorf("account_service: persist reset: %w", err)
	}

	s.logger.InfoContext(ctx, "account_service: account reset",
		slog.Float64("capital", s.state.Capital),
		slog.Bool("was_halted", prev.Halted),
	)
	if s.audit != nil {
		if err := s.audit.Log(ctx, "account_reset", map[string]any{
			"capital":    s.state.Capital,
			"was_halted": prev.Halted,
		}); err != nil {
			s.logger.WarnContext(ctx, "account_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return s.state, nil
}

// seed builds a brand-new account at the configured stake.
func (s *AccountService) seed(now time.Time) domain.AccountState {
	return domain.AccountState{
		ID:              s.cfg.ID,
		Capital:         s.cfg.InitialCapital,
		InitialCapital:  s.cfg.InitialCapital,
		DayStartCapital: s.cfg.InitialCapital,
		TradingDay:      now.Format(time.DateOnly),
		PeakCapital:     s.cfg.InitialCapital,
		UpdatedAt:       now,
	}
}

// rolloverLocked resets the daily counters when now falls on a later UTC
// day than the state's trading day. Caller holds the lock.
func (s *AccountService) rolloverLocked(now time.Time) {
	day := now.UTC().Format(time.DateOnly)
	if s.state.TradingDay == day {
		return
	}
	s.state.TradingDay = day
	s.state.TradesToday = 0
	s.state.DailyPnL = 0
	s.state.DayStartCapital = s.state.Capital
}

// haltLocked latches the halt flag and records why. Caller holds the lock;
// persistence is the caller's responsibility.
func (s *AccountService) haltLocked(ctx context.Context, now time.Time, reason string) {
	s.state.Halted = true
	s.state.HaltReason = reason
	s.state.UpdatedAt = now
	s.logger.ErrorContext(ctx, "account_service: trading halted",
		slog.String("reason", reason),
		slog.Float64("capital", s.state.Capital),
		slog.Float64("floor", s.risk.PreservationFloor(s.state)),
	)
	s.publishEvent(ctx, "trading_halted", map[string]any{
		"reason":  reason,
		"capital": s.state.Capital,
	})
	if s.audit != nil {
		if err := s.audit.Log(ctx, "trading_halted", map[string]any{
			"reason":  reason,
			"capital": s.state.Capital,
		}); err != nil {
			s.logger.WarnContext(ctx, "account_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// persistLocked saves the state, retrying once. Caller holds the lock.
func (s *AccountService) persistLocked(ctx context.Context) error {
	err := s.store.Save(ctx, s.state)
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "account_service: save failed, retrying",
		slog.String("account", s.state.ID),
		slog.String("error", err.Error()),
	)
	if err = s.store.Save(ctx, s.state); err != nil {
		s.logger.ErrorContext(ctx, "account_service: save failed after retry",
			slog.String("account", s.state.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// publishEvent pushes an account event onto the bus, best effort.
func (s *AccountService) publishEvent(ctx context.Context, event string, detail map[string]any) {
	if s.bus == nil {
		return
	}
	detail["event"] = event
	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "ch:account", payload); err != nil {
		s.logger.WarnContext(ctx, "account_service: publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
