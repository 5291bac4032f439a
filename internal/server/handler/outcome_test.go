package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/crypto"
	"github.com/quantpulse/pulsebot/internal/domain"
)

type stubOutcomeReader struct {
	outcomes []domain.OutcomeReport
	err      error
}

func (s *stubOutcomeReader) List(context.Context, domain.ListOpts) ([]domain.OutcomeReport, error) {
	return s.outcomes, s.err
}

type stubOutcomeSink struct {
	applied []domain.OutcomeReport
	err     error
	state   domain.AccountState
}

func (s *stubOutcomeSink) ApplyOutcome(_ context.Context, rep domain.OutcomeReport) (domain.AccountState, error) {
	if s.err != nil {
		return domain.AccountState{}, s.err
	}
	s.applied = append(s.applied, rep)
	return s.state, nil
}

const webhookSecret = "pulse-webhook-secret"

func signedOutcomeRequest(t *testing.T, rep domain.OutcomeReport) *http.Request {
	t.Helper()
	body, err := json.Marshal(rep)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/outcomes", bytes.NewReader(body))
	auth := crypto.NewWebhookAuth(webhookSecret)
	for k, v := range auth.HeadersAt(body, time.Now().Unix()) {
		req.Header.Set(k, v)
	}
	return req
}

func winReport() domain.OutcomeReport {
	return domain.OutcomeReport{
		TradeID:    "t-1",
		Asset:      "BTC",
		Result:     domain.OutcomeWin,
		PnL:        15,
		EntryPrice: 0.5,
		ExitPrice:  1.0,
		SettledAt:  time.Date(2025, 6, 2, 12, 15, 0, 0, time.UTC),
	}
}

func TestPostOutcomeAppliesSignedReport(t *testing.T) {
	sink := &stubOutcomeSink{state: domain.AccountState{Capital: 315}}
	h := NewOutcomeHandler(&stubOutcomeReader{}, sink, crypto.NewWebhookAuth(webhookSecret), discardLogger())

	rec := httptest.NewRecorder()
	h.PostOutcome(rec, signedOutcomeRequest(t, winReport()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.applied, 1)
	assert.Equal(t, "t-1", sink.applied[0].TradeID)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "applied", resp["status"])
	assert.InDelta(t, 315.0, resp["capital"].(float64), 1e-9)
}

func TestPostOutcomeRejectsBadSignature(t *testing.T) {
	sink := &stubOutcomeSink{}
	h := NewOutcomeHandler(&stubOutcomeReader{}, sink, crypto.NewWebhookAuth(webhookSecret), discardLogger())

	req := signedOutcomeRequest(t, winReport())
	req.Header.Set(crypto.HeaderSignature, "bogus")
	rec := httptest.NewRecorder()

	h.PostOutcome(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sink.applied)
}

func TestPostOutcomeAcknowledgesDuplicate(t *testing.T) {
	sink := &stubOutcomeSink{err: domain.ErrDuplicateOutcome}
	h := NewOutcomeHandler(&stubOutcomeReader{}, sink, crypto.NewWebhookAuth(webhookSecret), discardLogger())

	rec := httptest.NewRecorder()
	h.PostOutcome(rec, signedOutcomeRequest(t, winReport()))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp["status"])
}

func TestPostOutcomeValidatesResult(t *testing.T) {
	sink := &stubOutcomeSink{}
	h := NewOutcomeHandler(&stubOutcomeReader{}, sink, crypto.NewWebhookAuth(webhookSecret), discardLogger())

	rep := winReport()
	rep.Result = "PUSH"
	rec := httptest.NewRecorder()

	h.PostOutcome(rec, signedOutcomeRequest(t, rep))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "WIN or LOSS")
}

func TestPostOutcomeRequiresTradeID(t *testing.T) {
	sink := &stubOutcomeSink{}
	h := NewOutcomeHandler(&stubOutcomeReader{}, sink, crypto.NewWebhookAuth(webhookSecret), discardLogger())

	rep := winReport()
	rep.TradeID = ""
	rec := httptest.NewRecorder()

	h.PostOutcome(rec, signedOutcomeRequest(t, rep))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostOutcomeDisabledWithoutVerifier(t *testing.T) {
	h := NewOutcomeHandler(&stubOutcomeReader{}, &stubOutcomeSink{}, nil, discardLogger())

	rec := httptest.NewRecorder()
	h.PostOutcome(rec, signedOutcomeRequest(t, winReport()))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestListOutcomesReturnsReports(t *testing.T) {
	h := NewOutcomeHandler(&stubOutcomeReader{outcomes: []domain.OutcomeReport{winReport()}}, nil, nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/outcomes", nil)
	rec := httptest.NewRecorder()

	h.ListOutcomes(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listOutcomesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "t-1", resp.Outcomes[0].TradeID)
}

func TestListOutcomesEmptyIsArray(t *testing.T) {
	h := NewOutcomeHandler(&stubOutcomeReader{}, nil, nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/outcomes", nil)
	rec := httptest.NewRecorder()

	h.ListOutcomes(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"outcomes":[]}`, rec.Body.String())
}
