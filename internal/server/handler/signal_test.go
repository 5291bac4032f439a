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

type stubSignalSource struct {
	assets []string
	sigs   map[string]domain.Signal
	recent []domain.Signal
}

func (s *stubSignalSource) Assets() []string { return s.assets }

func (s *stubSignalSource) Latest(asset string) (domain.Signal, bool) {
	sig, ok := s.sigs[asset]
	return sig, ok
}

func (s *stubSignalSource) RecentSignals(limit int) []domain.Signal {
	if limit > len(s.recent) {
		limit = len(s.recent)
	}
	return s.recent[:limit]
}

func btcSignal() domain.Signal {
	return domain.Signal{
		ID:         "sig-1",
		Asset:      "BTC",
		Strategy:   "momentum",
		Direction:  domain.DirectionUp,
		Confidence: 88,
		Price:      50000,
		CreatedAt:  time.Date(2025, 6, 2, 12, 5, 0, 0, time.UTC),
	}
}

func TestGetSignalReturnsLatest(t *testing.T) {
	h := NewSignalHandler(&stubSignalSource{
		assets: []string{"BTC", "ETH"},
		sigs:   map[string]domain.Signal{"BTC": btcSignal()},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/signal/BTC", nil)
	req.SetPathValue("asset", "BTC")
	rec := httptest.NewRecorder()

	h.GetSignal(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Signal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sig-1", got.ID)
	assert.Equal(t, domain.DirectionUp, got.Direction)
}

func TestGetSignalUnknownAsset(t *testing.T) {
	h := NewSignalHandler(&stubSignalSource{assets: []string{"BTC"}})

	req := httptest.NewRequest(http.MethodGet, "/api/signal/DOGE", nil)
	req.SetPathValue("asset", "DOGE")
	rec := httptest.NewRecorder()

	h.GetSignal(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown asset")
}

func TestGetSignalBeforeFirstEvaluation(t *testing.T) {
	h := NewSignalHandler(&stubSignalSource{
		assets: []string{"BTC"},
		sigs:   map[string]domain.Signal{},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/signal/BTC", nil)
	req.SetPathValue("asset", "BTC")
	rec := httptest.NewRecorder()

	h.GetSignal(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no signal yet")
}

func TestListSignalsHonorsLimit(t *testing.T) {
	recent := []domain.Signal{btcSignal(), btcSignal(), btcSignal()}
	h := NewSignalHandler(&stubSignalSource{assets: []string{"BTC"}, recent: recent})

	req := httptest.NewRequest(http.MethodGet, "/api/signals?limit=2", nil)
	rec := httptest.NewRecorder()

	h.ListSignals(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listSignalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Signals, 2)
}

func TestListSignalsEmptyIsArray(t *testing.T) {
	h := NewSignalHandler(&stubSignalSource{assets: []string{"BTC"}})

	req := httptest.NewRequest(http.MethodGet, "/api/signals", nil)
	rec := httptest.NewRecorder()

	h.ListSignals(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"signals":[]}`, rec.Body.String())
}
