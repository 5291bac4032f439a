package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

func outcomePayload(t *testing.T, tradeID string, result domain.OutcomeResult, pnl float64) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.OutcomeReport{
		TradeID:    tradeID,
		Asset:      "BTC",
		Result:     result,
		PnL:        pnl,
		EntryPrice: 0.5,
		SettledAt:  time.Date(2025, 6, 2, 12, 15, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return payload
}

func TestOutcomeConsumerAppliesStreamEntries(t *testing.T) {
	bus := newStubBus()
	bus.seed(StreamOutcomes, outcomePayload(t, "t-1", domain.OutcomeWin, 7.5))
	bus.seed(StreamOutcomes, []byte("{not json")) // poison must not wedge the stream
	bus.seed(StreamOutcomes, outcomePayload(t, "t-2", domain.OutcomeLoss, -5))

	sink := &recordingSink{errs: make(map[string]error)}
	oc := NewOutcomeConsumer(bus, sink, slog.New(slog.DiscardHandler))

	oc.drain(context.Background())

	require.Len(t, sink.reports, 2)
	assert.Equal(t, "t-1", sink.reports[0].TradeID)
	assert.Equal(t, domain.OutcomeWin, sink.reports[0].Result)
	assert.Equal(t, "t-2", sink.reports[1].TradeID)
	assert.Equal(t, "1-3", oc.lastID)

	// Nothing new: a second pass is a no-op.
	oc.drain(context.Background())
	assert.Len(t, sink.reports, 2)
}

func TestOutcomeConsumerRetriesFailedApply(t *testing.T) {
	bus := newStubBus()
	bus.seed(StreamOutcomes, outcomePayload(t, "t-1", domain.OutcomeWin, 7.5))
	bus.seed(StreamOutcomes, outcomePayload(t, "t-2", domain.OutcomeWin, 3))

	sink := &recordingSink{errs: map[string]error{"t-1": assert.AnError}}
	oc := NewOutcomeConsumer(bus, sink, slog.New(slog.DiscardHandler))

	oc.drain(context.Background())
	assert.Empty(t, sink.reports, "a failed apply stops the batch before later entries")
	assert.Equal(t, "0", oc.lastID, "position must not advance past the failure")

	// The account store recovered; the same entry is applied on the next pass.
	delete(sink.errs, "t-1")
	oc.drain(context.Background())
	require.Len(t, sink.reports, 2)
	assert.Equal(t, "t-1", sink.reports[0].TradeID)
	assert.Equal(t, "t-2", sink.reports[1].TradeID)
	assert.Equal(t, "1-2", oc.lastID)
}

func TestOutcomeConsumerSkipsDuplicates(t *testing.T) {
	bus := newStubBus()
	bus.seed(StreamOutcomes, outcomePayload(t, "t-1", domain.OutcomeWin, 7.5))

	sink := &recordingSink{errs: map[string]error{"t-1": domain.ErrDuplicateOutcome}}
	oc := NewOutcomeConsumer(bus, sink, slog.New(slog.DiscardHandler))

	oc.drain(context.Background())
	assert.Empty(t, sink.reports)
	assert.Equal(t, "1-1", oc.lastID, "duplicates advance the position, they are not retried")
}
