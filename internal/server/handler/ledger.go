package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sooncult/soon-coin/internal/service"
)

// LedgerHandler serves token supply, balance and transfer endpoints.
type LedgerHandler struct {
	svc    *service.LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(svc *service.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, logger: logger}
}

// GetSupply returns the current supply state.
// GET /api/supply
func (h *LedgerHandler) GetSupply(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Supply())
}

// GetBalance returns one holder's balance.
// GET /api/balance/{address}
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"balance": h.svc.BalanceOf(addr).String(),
	})
}

// GetAccount returns the full reflection-aware account view.
// GET /api/account/{address}
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Account(addr))
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Transfer executes a ledger transfer.
// POST /api/transfer
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	from, ok := parseAddress(req.From)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid from address")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid to address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	evt, err := h.svc.Transfer(r.Context(), from, to, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// ListTransfers returns recent transfers.
// GET /api/transfers
func (h *LedgerHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListTransfers(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list transfers failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transfers": events,
		"count":     len(events),
	})
}
