package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

type stubDecisionReader struct {
	decisions  []domain.TradeDecision
	rejections map[domain.RejectionReason]int64
	since      time.Time
	err        error
}

func (s *stubDecisionReader) List(context.Context, domain.ListOpts) ([]domain.TradeDecision, error) {
	return s.decisions, s.err
}

func (s *stubDecisionReader) CountRejections(_ context.Context, since time.Time) (map[domain.RejectionReason]int64, error) {
	s.since = since
	return s.rejections, s.err
}

func TestListDecisionsReturnsLog(t *testing.T) {
	reader := &stubDecisionReader{decisions: []domain.TradeDecision{
		{ID: "d-1", Asset: "BTC", Approved: true, Size: 12.5},
		{ID: "d-2", Asset: "ETH", Approved: false, Reason: domain.RejectCooldown},
	}}
	h := NewDecisionHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/decisions?limit=10", nil)
	rec := httptest.NewRecorder()

	h.ListDecisions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listDecisionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Decisions, 2)
	assert.Equal(t, "d-1", resp.Decisions[0].ID)
	assert.Equal(t, domain.RejectCooldown, resp.Decisions[1].Reason)
}

func TestListDecisionsEmptyIsArray(t *testing.T) {
	h := NewDecisionHandler(&stubDecisionReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	rec := httptest.NewRecorder()

	h.ListDecisions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"decisions":[]}`, rec.Body.String())
}

func TestListDecisionsSurfacesStoreFailure(t *testing.T) {
	h := NewDecisionHandler(&stubDecisionReader{err: assert.AnError}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	rec := httptest.NewRecorder()

	h.ListDecisions(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRejectionsHonorsSinceParam(t *testing.T) {
	reader := &stubDecisionReader{rejections: map[domain.RejectionReason]int64{
		domain.RejectLowConfidence: 4,
		domain.RejectCooldown:      2,
	}}
	h := NewDecisionHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/decisions/rejections?since=2025-06-02T00:00:00Z", nil)
	rec := httptest.NewRecorder()

	h.GetRejections(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), reader.since)

	var resp struct {
		Since      string           `json:"since"`
		Rejections map[string]int64 `json:"rejections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-06-02T00:00:00Z", resp.Since)
	assert.Equal(t, int64(4), resp.Rejections["low_confidence"])
	assert.Equal(t, int64(2), resp.Rejections["cooldown"])
}

func TestGetRejectionsDefaultsToStartOfDay(t *testing.T) {
	reader := &stubDecisionReader{}
	h := NewDecisionHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/decisions/rejections", nil)
	rec := httptest.NewRecorder()

	h.GetRejections(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	now := time.Now().UTC()
	assert.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), reader.since)
	assert.JSONEq(t, `{"since":"`+reader.since.Format(time.RFC3339)+`","rejections":{}}`, rec.Body.String())
}
