package executor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

var (
	windowOpen = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	entryAt    = windowOpen.Add(7 * time.Minute)
	settleAt   = windowOpen.Add(15*time.Minute + 5*time.Second)
)

type memTradeStore struct {
	mu         sync.Mutex
	rows       map[string]domain.Trade
	order      []string
	failInsert bool
}

var _ domain.TradeStore = (*memTradeStore)(nil)

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{rows: make(map[string]domain.Trade)}
}

func (m *memTradeStore) Insert(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return assert.AnError
	}
	m.rows[t.ID] = t
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memTradeStore) Settle(_ context.Context, id string, result domain.OutcomeResult, pnl, closeSpot float64, settledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = domain.TradeStatusSettled
	t.Result = result
	t.PnL = pnl
	t.CloseSpot = closeSpot
	t.SettledAt = &settledAt
	m.rows[id] = t
	return nil
}

func (m *memTradeStore) GetByID(_ context.Context, id string) (domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memTradeStore) ListOpen(_ context.Context) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, id := range m.order {
		if t := m.rows[id]; t.Status == domain.TradeStatusOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTradeStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Trade, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rows[id])
	}
	return out, nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []domain.OutcomeReport
	errs    map[string]error // trade ID -> forced result
}

func (r *recordingSink) ApplyOutcome(_ context.Context, rep domain.OutcomeReport) (domain.AccountState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs[rep.TradeID]; err != nil {
		return domain.AccountState{}, err
	}
	r.reports = append(r.reports, rep)
	return domain.AccountState{Capital: 300 + rep.PnL}, nil
}

type fakeSpots struct {
	samples map[string][]domain.PriceSample // sorted by timestamp
}

func (f *fakeSpots) WindowAt(asset string, dur time.Duration, now time.Time) []domain.PriceSample {
	from := now.Add(-dur)
	var out []domain.PriceSample
	for _, s := range f.samples[asset] {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(now) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSpots) Latest(asset string) (domain.PriceSample, bool) {
	buf := f.samples[asset]
	if len(buf) == 0 {
		return domain.PriceSample{}, false
	}
	return buf[len(buf)-1], true
}

func btcSample(at time.Time, price float64) domain.PriceSample {
	return domain.PriceSample{Asset: "BTC", Price: price, Timestamp: at}
}

type paperFixture struct {
	exec   *PaperExecutor
	trades *memTradeStore
	sink   *recordingSink
	spots  *fakeSpots
}

func newPaperFixture() *paperFixture {
	f := &paperFixture{
		trades: newMemTradeStore(),
		sink:   &recordingSink{errs: make(map[string]error)},
		spots:  &fakeSpots{samples: make(map[string][]domain.PriceSample)},
	}
	f.exec = NewPaperExecutor(DefaultPaperConfig(), f.trades, f.sink, f.spots, slog.New(slog.DiscardHandler))
	return f
}

func approvedDecision(size float64) domain.TradeDecision {
	return domain.TradeDecision{
		ID:         "dec-1",
		SignalID:   "sig-1",
		Asset:      "BTC",
		Strategy:   "momentum",
		Direction:  domain.DirectionUp,
		Approved:   true,
		Size:       size,
		Confidence: 90,
		Capital:    300,
		CreatedAt:  entryAt,
	}
}

func (f *paperFixture) open(t *testing.T, d domain.TradeDecision, spot float64) domain.Trade {
	t.Helper()
	sig := domain.Signal{ID: d.SignalID, Asset: d.Asset, Direction: d.Direction, Price: spot}
	require.NoError(t, f.exec.Execute(context.Background(), d, sig, entryAt))
	open, err := f.trades.ListOpen(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, open)
	return open[len(open)-1]
}

func TestExecuteOpensTradeInCurrentWindow(t *testing.T) {
	f := newPaperFixture()

	tr := f.open(t, approvedDecision(15), 50000)
	assert.Equal(t, "dec-1", tr.DecisionID)
	assert.Equal(t, "sig-1", tr.SignalID)
	assert.Equal(t, domain.DirectionUp, tr.Direction)
	assert.Equal(t, 15.0, tr.Size)
	assert.Equal(t, 0.5, tr.EntryPrice)
	assert.InDelta(t, 30.0, tr.Shares, 1e-9, "size over entry price")
	assert.Equal(t, 50000.0, tr.OpenSpot)
	assert.Equal(t, windowOpen, tr.WindowStart, "window opens on the quarter hour")
	assert.Equal(t, windowOpen.Add(15*time.Minute), tr.WindowEnd)
	assert.Equal(t, domain.TradeStatusOpen, tr.Status)
	assert.Equal(t, entryAt, tr.OpenedAt)
}

func TestExecuteFallsBackToLatestSpot(t *testing.T) {
	f := newPaperFixture()
	f.spots.samples["BTC"] = []domain.PriceSample{btcSample(entryAt, 64000)}

	tr := f.open(t, approvedDecision(10), 0)
	assert.Equal(t, 64000.0, tr.OpenSpot)
}

func TestExecuteFailsWithoutAnySpot(t *testing.T) {
	f := newPaperFixture()
	sig := domain.Signal{ID: "sig-1", Asset: "BTC", Direction: domain.DirectionUp}

	err := f.exec.Execute(context.Background(), approvedDecision(10), sig, entryAt)
	assert.Error(t, err)
	open, _ := f.trades.ListOpen(context.Background())
	assert.Empty(t, open)
}

func TestSettleDueResolvesWinAtBoundarySpot(t *testing.T) {
	f := newPaperFixture()
	tr := f.open(t, approvedDecision(15), 50000)
	f.spots.samples["BTC"] = []domain.PriceSample{
		btcSample(tr.WindowEnd.Add(-2*time.Second), 50123), // boundary spot
		btcSample(tr.WindowEnd.Add(30*time.Second), 49000), // after resolution, must not matter
	}

	require.NoError(t, f.exec.SettleDue(context.Background(), settleAt))

	require.Len(t, f.sink.reports, 1)
	rep := f.sink.reports[0]
	assert.Equal(t, tr.ID, rep.TradeID)
	assert.Equal(t, domain.OutcomeWin, rep.Result)
	assert.InDelta(t, 15.0, rep.PnL, 1e-9, "win pays (1 - entry) per share")
	assert.Equal(t, 0.5, rep.EntryPrice)
	assert.Equal(t, 1.0, rep.ExitPrice)
	assert.Equal(t, settleAt, rep.SettledAt)

	settled, err := f.trades.GetByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusSettled, settled.Status)
	assert.Equal(t, domain.OutcomeWin, settled.Result)
	assert.Equal(t, 50123.0, settled.CloseSpot, "resolution uses the spot at the window boundary")
	assert.InDelta(t, 15.0, settled.PnL, 1e-9)
}

func TestSettleDueTieResolvesDown(t *testing.T) {
	f := newPaperFixture()
	up := approvedDecision(10)
	upTrade := f.open(t, up, 50000)

	down := approvedDecision(10)
	down.ID, down.SignalID = "dec-2", "sig-2"
	down.Direction = domain.DirectionDown
	downTrade := f.open(t, down, 50000)

	f.spots.samples["BTC"] = []domain.PriceSample{
		btcSample(upTrade.WindowEnd.Add(-time.Second), 50000), // unchanged spot
	}
	require.NoError(t, f.exec.SettleDue(context.Background(), settleAt))

	upRow, err := f.trades.GetByID(context.Background(), upTrade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeLoss, upRow.Result, "a flat window is not a rise")
	assert.InDelta(t, -10.0, upRow.PnL, 1e-9, "loss costs the entry per share")

	downRow, err := f.trades.GetByID(context.Background(), downTrade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, downRow.Result)
	assert.InDelta(t, 10.0, downRow.PnL, 1e-9)
}

func TestSettleDueLeavesUnexpiredAndSpotlessTradesOpen(t *testing.T) {
	f := newPaperFixture()
	tr := f.open(t, approvedDecision(10), 50000)

	// Window still running: nothing to do.
	require.NoError(t, f.exec.SettleDue(context.Background(), entryAt.Add(time.Minute)))
	row, _ := f.trades.GetByID(context.Background(), tr.ID)
	assert.Equal(t, domain.TradeStatusOpen, row.Status)

	// Window over but the feed has produced nothing: stay open, retry later.
	require.NoError(t, f.exec.SettleDue(context.Background(), settleAt))
	row, _ = f.trades.GetByID(context.Background(), tr.ID)
	assert.Equal(t, domain.TradeStatusOpen, row.Status)
	assert.Empty(t, f.sink.reports)
}

func TestSettleDueDuplicateOutcomeStillClosesRow(t *testing.T) {
	f := newPaperFixture()
	tr := f.open(t, approvedDecision(10), 50000)
	f.spots.samples["BTC"] = []domain.PriceSample{
		btcSample(tr.WindowEnd.Add(-time.Second), 50500),
	}
	// The outcome was already applied before a crash; only the row is open.
	f.sink.errs[tr.ID] = domain.ErrDuplicateOutcome

	require.NoError(t, f.exec.SettleDue(context.Background(), settleAt))

	row, err := f.trades.GetByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusSettled, row.Status)
	assert.Empty(t, f.sink.reports)
}

func TestSettleDueKeepsRowOpenWhenApplyFails(t *testing.T) {
	f := newPaperFixture()
	tr := f.open(t, approvedDecision(10), 50000)
	f.spots.samples["BTC"] = []domain.PriceSample{
		btcSample(tr.WindowEnd.Add(-time.Second), 50500),
	}
	f.sink.errs[tr.ID] = assert.AnError

	require.NoError(t, f.exec.SettleDue(context.Background(), settleAt))

	row, err := f.trades.GetByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusOpen, row.Status, "replayable until the account accepts the outcome")
}
