package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

func TestHealthCheckAllProbesPass(t *testing.T) {
	h := NewHealthHandler(&stubPinger{}, &stubPinger{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status    string            `json:"status"`
		Checks    map[string]string `json:"checks"`
		Timestamp string            `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["postgres"])
	assert.Equal(t, "ok", resp.Checks["redis"])
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHealthCheckDegradedWhenStoreDown(t *testing.T) {
	h := NewHealthHandler(&stubPinger{err: errors.New("connection refused")}, &stubPinger{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["postgres"])
	assert.Equal(t, "ok", resp.Checks["redis"])
}

func TestHealthCheckSkipsNilDependencies(t *testing.T) {
	h := NewHealthHandler(nil, nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Checks)
}
