package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

type stubStatusEngine struct {
	name   string
	assets []string
}

func (s *stubStatusEngine) ActiveName() string { return s.name }
func (s *stubStatusEngine) Assets() []string   { return s.assets }

type stubFeed struct{ connected bool }

func (s *stubFeed) Connected() bool { return s.connected }

type stubAccountReader struct{ state domain.AccountState }

func (s *stubAccountReader) State() domain.AccountState { return s.state }

func TestGetStatusFullyWired(t *testing.T) {
	h := NewStatusHandler("paper", time.Now().Add(-90*time.Second),
		&stubStatusEngine{name: "momentum", assets: []string{"BTC", "ETH"}},
		&stubFeed{connected: true},
		&stubAccountReader{state: domain.AccountState{Halted: true}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	h.GetStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.BotStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "paper", status.Mode)
	assert.Equal(t, "momentum", status.Strategy)
	assert.Equal(t, []string{"BTC", "ETH"}, status.Assets)
	assert.True(t, status.FeedConnected)
	assert.True(t, status.Halted)
	assert.GreaterOrEqual(t, status.UptimeSeconds, int64(90))
}

func TestGetStatusToleratesNilDependencies(t *testing.T) {
	h := NewStatusHandler("signal", time.Now(), nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	h.GetStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.BotStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "signal", status.Mode)
	assert.False(t, status.Halted)
	assert.Empty(t, status.Strategy)
}
