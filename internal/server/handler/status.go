package handler

import (
	"net/http"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// StatusEngine exposes the signal engine facts shown in the status payload.
type StatusEngine interface {
	ActiveName() string
	Assets() []string
}

// FeedStatus reports whether the price feed currently holds a live stream.
type FeedStatus interface {
	Connected() bool
}

// AccountReader provides the current account snapshot.
type AccountReader interface {
	State() domain.AccountState
}

// StatusHandler serves the bot status for the dashboard: mode, active
// scorer, feed connectivity, and the halt latch.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	engine    StatusEngine  // nil in stripped deployments
	feed      FeedStatus    // nil when the feed runs elsewhere
	account   AccountReader // nil in signal mode
}

// NewStatusHandler creates a StatusHandler. engine, feed, and account may
// each be nil; the corresponding fields are then zero-valued.
func NewStatusHandler(mode string, startedAt time.Time, engine StatusEngine, feed FeedStatus, account AccountReader) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		engine:    engine,
		feed:      feed,
		account:   account,
	}
}

// GetStatus responds with the current runtime status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	status := domain.BotStatus{
		Mode:          h.mode,
		UptimeSeconds: uptime,
	}
	if h.engine != nil {
		status.Strategy = h.engine.ActiveName()
		status.Assets = h.engine.Assets()
	}
	if h.feed != nil {
		status.FeedConnected = h.feed.Connected()
	}
	if h.account != nil {
		status.Halted = h.account.State().Halted
	}

	writeJSON(w, http.StatusOK, status)
}
