package handler

import (
	"log/slog"
	"net/http"

	"github.com/sooncult/soon-coin/internal/service"
)

// RebalancerHandler serves position state and the public rebalance trigger.
type RebalancerHandler struct {
	svc    *service.RebalanceService
	logger *slog.Logger
}

// NewRebalancerHandler creates a RebalancerHandler.
func NewRebalancerHandler(svc *service.RebalanceService, logger *slog.Logger) *RebalancerHandler {
	return &RebalancerHandler{svc: svc, logger: logger}
}

// GetPosition returns the current position state.
// GET /api/position
func (h *RebalancerHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Rebalance collects fees and migrates the position if the average price has
// drifted out of range. Open to any authenticated caller.
// POST /api/rebalance
func (h *RebalancerHandler) Rebalance(w http.ResponseWriter, r *http.Request) {
	evt, err := h.svc.Rebalance(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// ListRebalances returns recent rebalance records.
// GET /api/rebalances
func (h *RebalancerHandler) ListRebalances(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListRebalances(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rebalances failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rebalances")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rebalances": events,
		"count":      len(events),
	})
}
