package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

func TestLiveExecutorAppendsDecisionToStream(t *testing.T) {
	bus := newStubBus()
	exec := NewLiveExecutor(bus, slog.New(slog.DiscardHandler))

	d := approvedDecision(12)
	require.NoError(t, exec.Execute(context.Background(), d, domain.Signal{}, entryAt))

	entries := bus.appended[StreamDecisions]
	require.Len(t, entries, 1)
	var got domain.TradeDecision
	require.NoError(t, json.Unmarshal(entries[0], &got))
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Direction, got.Direction)
	assert.Equal(t, d.Size, got.Size)
}

func TestLiveExecutorSurfacesStreamFailure(t *testing.T) {
	bus := newStubBus()
	bus.appendErr = assert.AnError
	exec := NewLiveExecutor(bus, slog.New(slog.DiscardHandler))

	err := exec.Execute(context.Background(), approvedDecision(12), domain.Signal{}, entryAt)
	assert.ErrorIs(t, err, assert.AnError)
}
