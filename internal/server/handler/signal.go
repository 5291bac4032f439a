package handler

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// SignalSource is the slice of the signal engine the handlers read from.
type SignalSource interface {
	Assets() []string
	Latest(asset string) (domain.Signal, bool)
	RecentSignals(limit int) []domain.Signal
}

// SignalHandler serves the latest and recent signals.
type SignalHandler struct {
	signals SignalSource
}

// NewSignalHandler creates a SignalHandler backed by the given source.
func NewSignalHandler(signals SignalSource) *SignalHandler {
	return &SignalHandler{signals: signals}
}

// GetSignal returns the most recent signal for one asset.
// GET /api/signal/{asset}
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}
	if !slices.Contains(h.signals.Assets(), asset) {
		writeError(w, http.StatusNotFound, "unknown asset "+asset)
		return
	}

	sig, ok := h.signals.Latest(asset)
	if !ok {
		writeError(w, http.StatusNotFound, "no signal yet for "+asset)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// listSignalsResponse wraps the recent signals response.
type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
}

// ListSignals returns the most recent published signals, newest first.
// GET /api/signals?limit=20
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	signals := h.signals.RecentSignals(limit)
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}
