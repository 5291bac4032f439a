package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
	"github.com/quantpulse/pulsebot/internal/risk"
)

var now0 = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type memAccountStore struct {
	mu       sync.Mutex
	state    domain.AccountState
	seeded   bool
	saves    int
	failNext int
}

var _ domain.AccountStore = (*memAccountStore)(nil)

func (m *memAccountStore) Get(_ context.Context, id string) (domain.AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded || m.state.ID != id {
		return domain.AccountState{}, domain.ErrNotFound
	}
	return m.state, nil
}

func (m *memAccountStore) Save(_ context.Context, state domain.AccountState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return assert.AnError
	}
	m.state = state
	m.seeded = true
	m.saves++
	return nil
}

type memOutcomeStore struct {
	mu   sync.Mutex
	rows map[string]domain.OutcomeReport
}

var _ domain.OutcomeStore = (*memOutcomeStore)(nil)

func newMemOutcomeStore() *memOutcomeStore {
	return &memOutcomeStore{rows: make(map[string]domain.OutcomeReport)}
}

func (m *memOutcomeStore) Insert(_ context.Context, o domain.OutcomeReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[o.TradeID]; ok {
		return domain.ErrAlreadyExists
	}
	m.rows[o.TradeID] = o
	return nil
}

func (m *memOutcomeStore) Exists(_ context.Context, tradeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[tradeID]
	return ok, nil
}

func (m *memOutcomeStore) List(_ context.Context, _ domain.ListOpts) ([]domain.OutcomeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OutcomeReport, 0, len(m.rows))
	for _, o := range m.rows {
		out = append(out, o)
	}
	return out, nil
}

type memDecisionStore struct {
	mu   sync.Mutex
	rows []domain.TradeDecision
}

var _ domain.DecisionStore = (*memDecisionStore)(nil)

func (m *memDecisionStore) Insert(_ context.Context, d domain.TradeDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, d)
	return nil
}

func (m *memDecisionStore) GetByID(_ context.Context, id string) (domain.TradeDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.TradeDecision{}, domain.ErrNotFound
}

func (m *memDecisionStore) List(_ context.Context, _ domain.ListOpts) ([]domain.TradeDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradeDecision(nil), m.rows...), nil
}

func (m *memDecisionStore) CountRejections(_ context.Context, _ time.Time) (map[domain.RejectionReason]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.RejectionReason]int64)
	for _, d := range m.rows {
		if !d.Approved {
			counts[d.Reason]++
		}
	}
	return counts, nil
}

type serviceFixture struct {
	svc       *AccountService
	store     *memAccountStore
	outcomes  *memOutcomeStore
	decisions *memDecisionStore
}

func newFixture(t *testing.T, riskCfg risk.Config) *serviceFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	f := &serviceFixture{
		store:     &memAccountStore{},
		outcomes:  newMemOutcomeStore(),
		decisions: &memDecisionStore{},
	}
	f.svc = NewAccountService(
		DefaultAccountConfig(),
		f.store, f.outcomes, f.decisions,
		risk.NewManager(riskCfg, logger),
		nil, nil, nil,
		logger,
	)
	require.NoError(t, f.svc.Load(context.Background()))
	return f
}

func upSignal(conf int) domain.Signal {
	return domain.Signal{
		ID:         "sig-1",
		Asset:      "BTC",
		Strategy:   "momentum",
		Direction:  domain.DirectionUp,
		Confidence: conf,
		Price:      50000,
		CreatedAt:  now0,
	}
}

func TestLoadSeedsFreshAccount(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	state := f.svc.State()
	assert.Equal(t, "default", state.ID)
	assert.Equal(t, 300.0, state.Capital)
	assert.Equal(t, 300.0, state.InitialCapital)
	assert.Equal(t, 300.0, state.PeakCapital)
	assert.Equal(t, 1, f.store.saves, "seed must be persisted")
}

func TestLoadRestoresPersistedState(t *testing.T) {
	store := &memAccountStore{
		seeded: true,
		state: domain.AccountState{
			ID:        "default",
			Capital:   412.50,
			WinStreak: 3,
		},
	}
	logger := slog.New(slog.DiscardHandler)
	svc := NewAccountService(DefaultAccountConfig(), store, newMemOutcomeStore(), nil,
		risk.NewManager(risk.DefaultConfig(), logger), nil, nil, nil, logger)

	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, 412.50, svc.State().Capital)
	assert.Equal(t, 3, svc.State().WinStreak)
	assert.Equal(t, 0, store.saves, "restore must not rewrite state")
}

func TestDecideReservesTradeSlot(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	d, err := f.svc.Decide(context.Background(), upSignal(90), now0)
	require.NoError(t, err)
	require.True(t, d.Approved)

	state := f.svc.State()
	assert.Equal(t, 1, state.TradesToday)
	require.NotNil(t, state.LastTradeAt)
	assert.Equal(t, now0, *state.LastTradeAt)
	assert.Equal(t, state.TradesToday, f.store.state.TradesToday, "reservation persisted")

	rows, err := f.decisions.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, d.ID, rows[0].ID)
}

func TestDecideSerializesCooldown(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	first, err := f.svc.Decide(context.Background(), upSignal(90), now0)
	require.NoError(t, err)
	require.True(t, first.Approved)

	// One second later the reservation from the first decision blocks.
	second, err := f.svc.Decide(context.Background(), upSignal(90), now0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, second.Approved)
	assert.Equal(t, domain.RejectCooldown, second.Reason)

	// Past the base cooldown it opens up again.
	third, err := f.svc.Decide(context.Background(), upSignal(90), now0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, third.Approved)
}

func TestDecideLatchesPreservationHalt(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	// Burn capital below the 30% floor (0.30 * 300 = 90).
	_, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeLoss, PnL: -220, SettledAt: now0,
	})
	require.NoError(t, err)

	state := f.svc.State()
	assert.True(t, state.Halted)
	assert.NotEmpty(t, state.HaltReason)

	d, err := f.svc.Decide(context.Background(), upSignal(95), now0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.RejectHalted, d.Reason)
}

func TestDecideRollsOverTradingDay(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	// Exhaust yesterday's allowance.
	f.svc.mu.Lock()
	f.svc.state.TradingDay = "2025-06-01"
	f.svc.state.TradesToday = 20
	f.svc.state.DailyPnL = -10
	f.svc.mu.Unlock()

	d, err := f.svc.Decide(context.Background(), upSignal(90), now0)
	require.NoError(t, err)
	assert.True(t, d.Approved, "new day clears the daily limit")

	state := f.svc.State()
	assert.Equal(t, "2025-06-02", state.TradingDay)
	assert.Equal(t, 1, state.TradesToday)
	assert.Zero(t, state.DailyPnL)
}

func TestApplyOutcomeWinAndLoss(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	state, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 9.5, SettledAt: now0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 309.5, state.Capital, 1e-9)
	assert.InDelta(t, 309.5, state.PeakCapital, 1e-9, "peak ratchets up")
	assert.Equal(t, 1, state.Wins)
	assert.Equal(t, 1, state.WinStreak)
	assert.Zero(t, state.LossStreak)

	state, err = f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-2", Asset: "BTC", Result: domain.OutcomeLoss, PnL: -9.5, SettledAt: now0.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	assert.InDelta(t, 300.0, state.Capital, 1e-9)
	assert.InDelta(t, 309.5, state.PeakCapital, 1e-9, "peak never falls")
	assert.Equal(t, 1, state.Losses)
	assert.Equal(t, 1, state.LossStreak)
	assert.Zero(t, state.WinStreak, "opposite outcome resets the streak")
	assert.InDelta(t, 0.0, state.DailyPnL, 1e-9)
}

func TestApplyOutcomeIdempotent(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	rep := domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 12, SettledAt: now0,
	}
	first, err := f.svc.ApplyOutcome(context.Background(), rep)
	require.NoError(t, err)

	second, err := f.svc.ApplyOutcome(context.Background(), rep)
	assert.ErrorIs(t, err, domain.ErrDuplicateOutcome)
	assert.Equal(t, first, second, "replay must not change anything")
	assert.Equal(t, 1, f.svc.State().Wins)
	assert.InDelta(t, 312.0, f.svc.State().Capital, 1e-9)
}

func TestApplyOutcomeRejectsMissingTradeID(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())
	_, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{Result: domain.OutcomeWin, PnL: 5})
	assert.Error(t, err)
}

func TestApplyOutcomeSaveRetries(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())
	f.store.failNext = 1 // first save attempt fails, retry succeeds

	state, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 5, SettledAt: now0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 305.0, state.Capital, 1e-9)
}

func TestApplyOutcomeSaveFailureRollsBack(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())
	f.store.failNext = 2 // both attempts fail

	_, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 5, SettledAt: now0,
	})
	require.Error(t, err)
	assert.InDelta(t, 300.0, f.svc.State().Capital, 1e-9, "in-memory state must not drift ahead of disk")
	assert.Zero(t, f.svc.State().Wins)
}

func TestResetDaily(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	_, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 20, SettledAt: now0,
	})
	require.NoError(t, err)

	next := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.ResetDaily(context.Background(), next))

	state := f.svc.State()
	assert.Equal(t, "2025-06-03", state.TradingDay)
	assert.Zero(t, state.TradesToday)
	assert.Zero(t, state.DailyPnL)
	assert.InDelta(t, 320.0, state.DayStartCapital, 1e-9, "day start re-anchors to current capital")

	saves := f.store.saves
	require.NoError(t, f.svc.ResetDaily(context.Background(), next.Add(time.Hour)))
	assert.Equal(t, saves, f.store.saves, "same-day reset is a no-op")
}

type memLocker struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
}

var _ domain.LockManager = (*memLocker)(nil)

func (l *memLocker) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	l.acquires++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.releases++
	}, nil
}

func TestMutationsHoldDistributedLock(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	locker := &memLocker{}
	svc := NewAccountService(DefaultAccountConfig(), &memAccountStore{}, newMemOutcomeStore(), nil,
		risk.NewManager(risk.DefaultConfig(), logger), nil, nil, locker, logger)
	require.NoError(t, svc.Load(context.Background()))

	_, err := svc.Decide(context.Background(), upSignal(90), now0)
	require.NoError(t, err)
	_, err = svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 5, SettledAt: now0,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, locker.acquires)
	assert.Equal(t, 2, locker.releases, "every mutation releases the lock")
}

func TestMutationsSurfaceHeldLock(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	locker := &memLocker{held: true}
	svc := NewAccountService(DefaultAccountConfig(), &memAccountStore{}, newMemOutcomeStore(), nil,
		risk.NewManager(risk.DefaultConfig(), logger), nil, nil, locker, logger)
	require.NoError(t, svc.Load(context.Background()))

	_, err := svc.Decide(context.Background(), upSignal(90), now0)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeWin, PnL: 5, SettledAt: now0,
	})
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.InDelta(t, 300.0, svc.State().Capital, 1e-9, "a held lock must block the mutation")
}

func TestResetClearsHaltAndReseeds(t *testing.T) {
	f := newFixture(t, risk.DefaultConfig())

	_, err := f.svc.ApplyOutcome(context.Background(), domain.OutcomeReport{
		TradeID: "t-1", Asset: "BTC", Result: domain.OutcomeLoss, PnL: -220, SettledAt: now0,
	})
	require.NoError(t, err)
	require.True(t, f.svc.State().Halted)

	state, err := f.svc.Reset(context.Background(), 500, now0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, state.Halted)
	assert.Empty(t, state.HaltReason)
	assert.Equal(t, 500.0, state.Capital)
	assert.Equal(t, 500.0, state.InitialCapital, "preservation floor moves with the new stake")
	assert.Equal(t, 500.0, state.PeakCapital)
	assert.Zero(t, state.LossStreak)
	assert.Equal(t, 1, state.Losses, "lifetime totals survive a reseed")

	d, err := f.svc.Decide(context.Background(), upSignal(90), now0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, d.Approved, "trading resumes after the reset")
}
