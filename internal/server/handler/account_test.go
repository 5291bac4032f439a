package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

type stubAccountService struct {
	state        domain.AccountState
	resetCapital float64
	resetCalls   int
	resetErr     error
}

func (s *stubAccountService) State() domain.AccountState { return s.state }

func (s *stubAccountService) Reset(_ context.Context, capital float64, _ time.Time) (domain.AccountState, error) {
	if s.resetErr != nil {
		return domain.AccountState{}, s.resetErr
	}
	s.resetCalls++
	s.resetCapital = capital
	s.state.Halted = false
	if capital > 0 {
		s.state.Capital = capital
	}
	return s.state, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGetAccountReturnsState(t *testing.T) {
	svc := &stubAccountService{state: domain.AccountState{ID: "default", Capital: 300}}
	h := NewAccountHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()

	h.GetAccount(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var state domain.AccountState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "default", state.ID)
	assert.InDelta(t, 300.0, state.Capital, 1e-9)
}

func TestGetAccountUnavailableInSignalMode(t *testing.T) {
	h := NewAccountHandler(nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()

	h.GetAccount(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestResetAccountWithEmptyBodyClearsLatch(t *testing.T) {
	svc := &stubAccountService{state: domain.AccountState{Capital: 210, Halted: true}}
	h := NewAccountHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/account/reset", nil)
	rec := httptest.NewRecorder()

	h.ResetAccount(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.resetCalls)
	assert.Zero(t, svc.resetCapital)
	var state domain.AccountState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.Halted)
}

func TestResetAccountReseedsCapital(t *testing.T) {
	svc := &stubAccountService{state: domain.AccountState{Capital: 210, Halted: true}}
	h := NewAccountHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/account/reset", strings.NewReader(`{"capital":500}`))
	rec := httptest.NewRecorder()

	h.ResetAccount(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 500.0, svc.resetCapital, 1e-9)
}

func TestResetAccountRejectsNegativeCapital(t *testing.T) {
	svc := &stubAccountService{}
	h := NewAccountHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/account/reset", strings.NewReader(`{"capital":-5}`))
	rec := httptest.NewRecorder()

	h.ResetAccount(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.resetCalls)
}

func TestResetAccountSurfacesServiceFailure(t *testing.T) {
	svc := &stubAccountService{resetErr: assert.AnError}
	h := NewAccountHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/account/reset", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.ResetAccount(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
