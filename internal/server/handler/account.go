package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// AccountService defines the account operations the handler requires.
type AccountService interface {
	State() domain.AccountState
	Reset(ctx context.Context, capital float64, now time.Time) (domain.AccountState, error)
}

// AccountHandler serves the risk account state and the manual reset.
type AccountHandler struct {
	account AccountService // nil in signal mode
	logger  *slog.Logger
}

// NewAccountHandler creates an AccountHandler. account may be nil, in which
// case the endpoints return 501.
func NewAccountHandler(account AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{account: account, logger: logger}
}

// GetAccount returns the current account state.
// GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if h.account == nil {
		writeError(w, http.StatusNotImplemented, "account not available in this mode")
		return
	}
	writeJSON(w, http.StatusOK, h.account.State())
}

// resetRequest is the JSON body for POST /api/account/reset. Capital is
// optional; zero keeps the current stake and only clears the halt latch.
type resetRequest struct {
	Capital float64 `json:"capital"`
}

// ResetAccount clears the halt latch and optionally re-seeds the capital.
// POST /api/account/reset
func (h *AccountHandler) ResetAccount(w http.ResponseWriter, r *http.Request) {
	if h.account == nil {
		writeError(w, http.StatusNotImplemented, "account not available in this mode")
		return
	}

	var req resetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Capital < 0 {
		writeError(w, http.StatusBadRequest, "capital must not be negative")
		return
	}

	state, err := h.account.Reset(r.Context(), req.Capital, time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: account reset failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reset account")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: account reset",
		slog.Float64("capital", state.Capital),
	)
	writeJSON(w, http.StatusOK, state)
}
