package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListOptsDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)

	opts := parseListOpts(req)

	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	assert.Nil(t, opts.Since)
	assert.Nil(t, opts.Until)
}

func TestParseListOptsCapsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades?limit=9999&offset=20", nil)

	opts := parseListOpts(req)

	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
}

func TestParseListOptsTimeRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/trades?since=2025-06-01T00:00:00Z&until=2025-06-02T00:00:00Z", nil)

	opts := parseListOpts(req)

	require.NotNil(t, opts.Since)
	require.NotNil(t, opts.Until)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *opts.Since)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), *opts.Until)
}

func TestParseListOptsIgnoresMalformedValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades?limit=abc&since=yesterday", nil)

	opts := parseListOpts(req)

	assert.Equal(t, 50, opts.Limit)
	assert.Nil(t, opts.Since)
}
