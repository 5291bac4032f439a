package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// TradeReader is the read slice of the trade store the handler needs.
type TradeReader interface {
	GetByID(ctx context.Context, id string) (domain.Trade, error)
	ListOpen(ctx context.Context) ([]domain.Trade, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves the trade log.
type TradeHandler struct {
	trades TradeReader
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler backed by the given store.
func NewTradeHandler(trades TradeReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// listTradesResponse wraps the list trades response.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns trades, newest first, or only the open positions when
// open=true.
// GET /api/trades?open=true | ?limit=50&offset=0&since=...&until=...
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	var trades []domain.Trade
	var err error

	if r.URL.Query().Get("open") == "true" {
		trades, err = h.trades.ListOpen(r.Context())
	} else {
		trades, err = h.trades.List(r.Context(), parseListOpts(r))
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// GetTrade returns a single trade by ID.
// GET /api/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing trade id")
		return
	}

	trade, err := h.trades.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trade not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get trade failed",
			slog.String("trade_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}
