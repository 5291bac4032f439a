package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// ScorerController is the interface for getting/setting the active scorer at
// runtime (the signal engine).
type ScorerController interface {
	ActiveName() string
	ListNames() []string
	SetActive(name string) error
}

// HubScorerUpdater is called when the active scorer changes so the WebSocket
// hub can report the new name in its status envelope.
type HubScorerUpdater interface {
	SetScorerName(name string)
}

// ScorerHandler serves GET/PUT /api/scorer. When ctrl is nil the endpoints
// return 501.
type ScorerHandler struct {
	ctrl   ScorerController
	hub    HubScorerUpdater // optional; when set, updated on PUT
	logger *slog.Logger
}

// NewScorerHandler creates a handler. ctrl and hub may be nil.
func NewScorerHandler(ctrl ScorerController, hub HubScorerUpdater, logger *slog.Logger) *ScorerHandler {
	return &ScorerHandler{ctrl: ctrl, hub: hub, logger: logger}
}

// GetScorer returns the active scorer and all registered names.
// GET /api/scorer
func (h *ScorerHandler) GetScorer(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusNotImplemented, "scorer runtime not available")
		return
	}
	names := h.ctrl.ListNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    h.ctrl.ActiveName(),
		"available": names,
	})
}

// setScorerRequest is the JSON body for PUT /api/scorer.
type setScorerRequest struct {
	Name string `json:"name"`
}

// SetScorer switches the active scorer and returns 200 or 400.
// PUT /api/scorer
func (h *ScorerHandler) SetScorer(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusNotImplemented, "scorer runtime not available")
		return
	}

	var req setScorerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.ctrl.SetActive(name); err != nil {
		h.logger.WarnContext(r.Context(), "handler: set active scorer failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.hub != nil {
		h.hub.SetScorerName(name)
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": name})
}
