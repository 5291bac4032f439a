package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// DecisionReader is the read slice of the decision store the handler needs.
type DecisionReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeDecision, error)
	CountRejections(ctx context.Context, since time.Time) (map[domain.RejectionReason]int64, error)
}

// DecisionHandler serves the decision log.
type DecisionHandler struct {
	decisions DecisionReader
	logger    *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler backed by the given store.
func NewDecisionHandler(decisions DecisionReader, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{decisions: decisions, logger: logger}
}

// listDecisionsResponse wraps the list decisions response.
type listDecisionsResponse struct {
	Decisions []domain.TradeDecision `json:"decisions"`
}

// ListDecisions returns decisions, newest first.
// GET /api/decisions?limit=50&offset=0&since=...&until=...
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	decisions, err := h.decisions.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list decisions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if decisions == nil {
		decisions = []domain.TradeDecision{}
	}
	writeJSON(w, http.StatusOK, listDecisionsResponse{Decisions: decisions})
}

// GetRejections returns rejection counts per reason since the given time,
// defaulting to the start of the current UTC day.
// GET /api/decisions/rejections?since=2025-06-02T00:00:00Z
func (h *DecisionHandler) GetRejections(w http.ResponseWriter, r *http.Request) {
	since, ok := parseTime(r.URL.Query().Get("since"))
	if !ok {
		now := time.Now().UTC()
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	counts, err := h.decisions.CountRejections(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count rejections failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count rejections")
		return
	}
	if counts == nil {
		counts = map[domain.RejectionReason]int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":      since.Format(time.RFC3339),
		"rejections": counts,
	})
}
