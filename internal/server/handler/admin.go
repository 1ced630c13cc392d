package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/service"
)

// SnapshotRunner captures the current ledger state into blob storage.
type SnapshotRunner interface {
	Archive(ctx context.Context) (path string, holders int, err error)
}

// TokenResolver turns a token address into a usable token port, so rescue
// requests can name arbitrary stranded assets.
type TokenResolver func(addr common.Address) (domain.Token, error)

// AdminHandler serves the owner-only management endpoints. The configured
// admin address is used as the caller identity for every operation; request
// authentication is handled by the API-key middleware.
type AdminHandler struct {
	ledger     *service.LedgerService
	rebalancer *service.RebalanceService
	snapshots  SnapshotRunner
	tokens     TokenResolver
	admin      common.Address
	logger     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	ledger *service.LedgerService,
	rebalancer *service.RebalanceService,
	snapshots SnapshotRunner,
	tokens TokenResolver,
	admin common.Address,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		ledger:     ledger,
		rebalancer: rebalancer,
		snapshots:  snapshots,
		tokens:     tokens,
		admin:      admin,
		logger:     logger,
	}
}

type taxConfigRequest struct {
	TotalBips      uint32 `json:"total_bips"`
	ReflectionBips uint32 `json:"reflection_bips"`
	BurnBips       uint32 `json:"burn_bips"`
	LiquidityBips  uint32 `json:"liquidity_bips"`
}

// UpdateTaxConfig replaces the tax split.
// POST /api/admin/tax-config
func (h *AdminHandler) UpdateTaxConfig(w http.ResponseWriter, r *http.Request) {
	var req taxConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := domain.TaxConfig{
		TotalBips:      req.TotalBips,
		ReflectionBips: req.ReflectionBips,
		BurnBips:       req.BurnBips,
		LiquidityBips:  req.LiquidityBips,
	}
	if err := h.ledger.UpdateTaxConfig(r.Context(), h.admin, cfg); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type exclusionRequest struct {
	Address  string `json:"address"`
	Excluded bool   `json:"excluded"`
}

// SetFeeExclusion toggles a holder's fee exemption.
// POST /api/admin/fee-exclusion
func (h *AdminHandler) SetFeeExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if err := h.ledger.SetFeeExclusion(r.Context(), h.admin, addr, req.Excluded); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":    addr.Hex(),
		"fee_exempt": req.Excluded,
	})
}

// SetRewardExclusion toggles a holder's reward exclusion.
// POST /api/admin/reward-exclusion
func (h *AdminHandler) SetRewardExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if err := h.ledger.SetRewardExclusion(r.Context(), h.admin, addr, req.Excluded); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":         addr.Hex(),
		"reward_excluded": req.Excluded,
	})
}

type recipientRequest struct {
	Address string `json:"address"`
}

// SetLiquidityRecipient changes where the liquidity tax share is credited.
// POST /api/admin/liquidity-recipient
func (h *AdminHandler) SetLiquidityRecipient(w http.ResponseWriter, r *http.Request) {
	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The zero address unsets the recipient, disabling the liquidity share.
	addr := common.Address{}
	if req.Address != "" {
		var ok bool
		if addr, ok = parseAddress(req.Address); !ok {
			writeError(w, http.StatusBadRequest, "invalid address")
			return
		}
	}
	if err := h.ledger.SetLiquidityRecipient(r.Context(), h.admin, addr); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"liquidity_recipient": addr.Hex(),
	})
}

type initPositionRequest struct {
	AmountNative string `json:"amount_native"`
	AmountPaired string `json:"amount_paired"`
	TargetTick   int32  `json:"target_tick"`
}

// InitializePosition mints the first trading position.
// POST /api/admin/position/init
func (h *AdminHandler) InitializePosition(w http.ResponseWriter, r *http.Request) {
	var req initPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amountNative, ok := parseAmount(req.AmountNative)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid native amount")
		return
	}
	amountPaired, ok := parseAmount(req.AmountPaired)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paired amount")
		return
	}

	evt, err := h.rebalancer.Initialize(r.Context(), h.admin, amountNative, amountPaired, req.TargetTick)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

type halfWidthRequest struct {
	HalfWidthTicks int32 `json:"half_width_ticks"`
}

// UpdateHalfWidth tunes the position range half-width.
// POST /api/admin/rebalancer/half-width
func (h *AdminHandler) UpdateHalfWidth(w http.ResponseWriter, r *http.Request) {
	var req halfWidthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.rebalancer.UpdateHalfWidth(r.Context(), h.admin, req.HalfWidthTicks); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.rebalancer.Status())
}

type twapWindowRequest struct {
	TwapWindowSec uint32 `json:"twap_window_seconds"`
}

// UpdateTwapWindow tunes the averaging window.
// POST /api/admin/rebalancer/twap-window
func (h *AdminHandler) UpdateTwapWindow(w http.ResponseWriter, r *http.Request) {
	var req twapWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.rebalancer.UpdateTwapWindow(r.Context(), h.admin, req.TwapWindowSec); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.rebalancer.Status())
}

// Lock permanently freezes rebalancer parameters and asset rescue.
// POST /api/admin/rebalancer/lock
func (h *AdminHandler) Lock(w http.ResponseWriter, r *http.Request) {
	if err := h.rebalancer.Lock(r.Context(), h.admin); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.rebalancer.Status())
}

type rescueForeignRequest struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// RescueForeignAsset sweeps a stranded asset off the pool account.
// POST /api/admin/rebalancer/rescue-foreign
func (h *AdminHandler) RescueForeignAsset(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "token resolution not configured")
		return
	}
	var req rescueForeignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tokenAddr, ok := parseAddress(req.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid destination address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	token, err := h.tokens(tokenAddr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown token")
		return
	}
	if err := h.rebalancer.RescueForeignAsset(r.Context(), h.admin, token, to, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":  tokenAddr.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
}

type rescueNativeRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// RescueNativeAsset sweeps stranded base currency off the pool account.
// POST /api/admin/rebalancer/rescue-native
func (h *AdminHandler) RescueNativeAsset(w http.ResponseWriter, r *http.Request) {
	var req rescueNativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid destination address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := h.rebalancer.RescueNativeAsset(r.Context(), h.admin, to, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"to":     to.Hex(),
		"amount": amount.String(),
	})
}

type ownershipRequest struct {
	NewOwner string `json:"new_owner"`
}

// TransferOwnership hands the admin role to a new owner. The running
// process keeps using its configured admin identity, so after a transfer
// further admin calls fail until the service is restarted with the new
// owner configured.
// POST /api/admin/ownership/transfer
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newOwner, ok := parseAddress(req.NewOwner)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid new owner address")
		return
	}
	if err := h.ledger.TransferOwnership(r.Context(), h.admin, newOwner); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner": newOwner.Hex(),
	})
}

// RenounceOwnership permanently disables every admin operation.
// POST /api/admin/ownership/renounce
func (h *AdminHandler) RenounceOwnership(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RenounceOwnership(r.Context(), h.admin); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner": h.ledger.Owner().Hex(),
	})
}

// TakeSnapshot captures the ledger state into blob storage.
// POST /api/admin/snapshot
func (h *AdminHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot storage not configured")
		return
	}
	path, holders, err := h.snapshots.Archive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"holders": holders,
	})
}

// ListRewardExcluded returns the enumerable reward-excluded set.
// GET /api/admin/reward-exclusion
func (h *AdminHandler) ListRewardExcluded(w http.ResponseWriter, r *http.Request) {
	addrs := h.ledger.RewardExcluded()
	hexes := make([]string, len(addrs))
	for i, a := range addrs {
		hexes[i] = a.Hex()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reward_excluded": hexes,
		"count":           len(hexes),
	})
}
