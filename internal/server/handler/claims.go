package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/claims"
	"github.com/sooncult/soon-coin/internal/service"
)

// ClaimsHandler serves the allocation claim endpoints.
type ClaimsHandler struct {
	svc *service.ClaimsService
}

// NewClaimsHandler creates a ClaimsHandler.
func NewClaimsHandler(svc *service.ClaimsService) *ClaimsHandler {
	return &ClaimsHandler{svc: svc}
}

// GetRoot returns the allocation root claims are verified against.
// GET /api/claims/root
func (h *ClaimsHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"root": h.svc.Root().Hex(),
	})
}

type claimRequest struct {
	Index   uint64   `json:"index"`
	Account string   `json:"account"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

// Claim verifies a proof and pays the allocation.
// POST /api/claims/claim
func (h *ClaimsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	proof := make([]common.Hash, len(req.Proof))
	for i, p := range req.Proof {
		proof[i] = common.HexToHash(p)
	}

	evt, err := h.svc.Claim(r.Context(), claims.Leaf{
		Index:   req.Index,
		Account: account,
		Amount:  amount,
	}, proof)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// GetStatus reports whether a claim index has been paid.
// GET /api/claims/{index}
func (h *ClaimsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(r.PathValue("index"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid claim index")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index":   index,
		"claimed": h.svc.IsClaimed(index),
	})
}
