package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpulse/pulsebot/internal/crypto"
	"github.com/quantpulse/pulsebot/internal/domain"
)

// maxOutcomeBody bounds the webhook request body.
const maxOutcomeBody = 1 << 20

// WebhookVerifier checks a signed outcome delivery.
type WebhookVerifier interface {
	Verify(timestamp string, body []byte, signature string) error
}

// OutcomeSink applies a settled-trade report to the account.
type OutcomeSink interface {
	ApplyOutcome(ctx context.Context, rep domain.OutcomeReport) (domain.AccountState, error)
}

// OutcomeReader is the read slice of the outcome store the handler needs.
type OutcomeReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.OutcomeReport, error)
}

// OutcomeHandler serves the outcome log and ingests signed outcome webhooks.
type OutcomeHandler struct {
	outcomes OutcomeReader
	sink     OutcomeSink     // nil in signal mode
	verifier WebhookVerifier // nil disables the webhook
	logger   *slog.Logger
}

// NewOutcomeHandler creates an OutcomeHandler. sink and verifier may be nil;
// the webhook then returns 501.
func NewOutcomeHandler(outcomes OutcomeReader, sink OutcomeSink, verifier WebhookVerifier, logger *slog.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		outcomes: outcomes,
		sink:     sink,
		verifier: verifier,
		logger:   logger,
	}
}

// listOutcomesResponse wraps the list outcomes response.
type listOutcomesResponse struct {
	Outcomes []domain.OutcomeReport `json:"outcomes"`
}

// ListOutcomes returns settled-trade reports, newest first.
// GET /api/outcomes?limit=50&offset=0&since=...&until=...
func (h *OutcomeHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.outcomes.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list outcomes failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list outcomes")
		return
	}
	if outcomes == nil {
		outcomes = []domain.OutcomeReport{}
	}
	writeJSON(w, http.StatusOK, listOutcomesResponse{Outcomes: outcomes})
}

// PostOutcome ingests one signed settled-trade report. The signature covers
// the raw request body, so the body is read before decoding. Duplicate
// reports are acknowledged with 200 so the sender stops retrying.
// POST /api/outcomes
func (h *OutcomeHandler) PostOutcome(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil || h.verifier == nil {
		writeError(w, http.StatusNotImplemented, "outcome webhook not available in this mode")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOutcomeBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	timestamp := r.Header.Get(crypto.HeaderTimestamp)
	signature := r.Header.Get(crypto.HeaderSignature)
	if err := h.verifier.Verify(timestamp, body, signature); err != nil {
		h.logger.WarnContext(r.Context(), "handler: outcome webhook rejected",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var rep domain.OutcomeReport
	if err := json.Unmarshal(body, &rep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if rep.TradeID == "" {
		writeError(w, http.StatusBadRequest, "TradeID is required")
		return
	}
	if rep.Result != domain.OutcomeWin && rep.Result != domain.OutcomeLoss {
		writeError(w, http.StatusBadRequest, "Result must be WIN or LOSS")
		return
	}
	if rep.SettledAt.IsZero() {
		rep.SettledAt = time.Now().UTC()
	}

	state, err := h.sink.ApplyOutcome(r.Context(), rep)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOutcome) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":   "duplicate",
				"trade_id": rep.TradeID,
			})
			return
		}
		if errors.Is(err, domain.ErrLockHeld) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "account busy, retry")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: apply outcome failed",
			slog.String("trade_id", rep.TradeID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to apply outcome")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "applied",
		"trade_id": rep.TradeID,
		"capital":  state.Capital,
	})
}
