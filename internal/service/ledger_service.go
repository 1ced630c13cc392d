// Package service wraps the core engines with persistence, event publishing
// and audit logging. Storage and bus failures are logged and never roll back
// a completed ledger or position operation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/ledger"
)

// Pub/Sub channels and durable streams the services emit on.
const (
	ChannelTransfers  = "ch:transfers"
	ChannelRebalances = "ch:rebalances"
	ChannelAdmin      = "ch:admin"

	StreamTransfers  = "stream:transfers"
	StreamRebalances = "stream:rebalances"
)

// SupplyInfo is the externally visible supply state.
type SupplyInfo struct {
	TrueTotalSupply     *big.Int         `json:"true_total_supply"`
	ReflectedTotal      *big.Int         `json:"reflected_total_supply"`
	BurnSinkBalance     *big.Int         `json:"burn_sink_balance"`
	TaxConfig           domain.TaxConfig `json:"tax_config"`
	LiquidityRecipient  common.Address   `json:"liquidity_recipient"`
	TaxedTransfers      uint64           `json:"taxed_transfers"`
	RewardExcludedCount int              `json:"reward_excluded_count"`
}

// LedgerService executes ledger operations and fans out their events.
type LedgerService struct {
	ledger    *ledger.Ledger
	transfers domain.TransferStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewLedgerService creates a LedgerService with all required dependencies.
func NewLedgerService(
	l *ledger.Ledger,
	transfers domain.TransferStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		ledger:    l,
		transfers: transfers,
		bus:       bus,
		audit:     audit,
		logger:    logger,
	}
}

// Transfer moves tokens between holders, applying the tax split, then
// persists and publishes the resulting event.
func (s *LedgerService) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) (domain.TransferEvent, error) {
	evt, err := s.ledger.Transfer(from, to, amount)
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("ledger_service: transfer: %w", err)
	}

	if insErr := s.transfers.Insert(ctx, evt); insErr != nil {
		s.logger.WarnContext(ctx, "ledger_service: persist transfer failed",
			slog.String("transfer_id", evt.ID),
			slog.String("error", insErr.Error()),
		)
	}

	payload, _ := json.Marshal(evt)
	if pubErr := s.bus.Publish(ctx, ChannelTransfers, payload); pubErr != nil {
		s.logger.WarnContext(ctx, "ledger_service: publish transfer failed",
			slog.String("transfer_id", evt.ID),
			slog.String("error", pubErr.Error()),
		)
	}
	if strErr := s.bus.StreamAppend(ctx, StreamTransfers, payload); strErr != nil {
		s.logger.WarnContext(ctx, "ledger_service: stream transfer failed",
			slog.String("transfer_id", evt.ID),
			slog.String("error", strErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "ledger_service: transfer completed",
		slog.String("transfer_id", evt.ID),
		slog.String("from", evt.From.Hex()),
		slog.String("to", evt.To.Hex()),
		slog.String("amount", evt.Amount.String()),
		slog.String("tax", evt.Tax.String()),
	)
	return evt, nil
}

// Account returns the reflection-aware view of one holder.
func (s *LedgerService) Account(addr common.Address) domain.AccountInfo {
	return s.ledger.Account(addr)
}

// BalanceOf returns one holder's balance in true-token units.
func (s *LedgerService) BalanceOf(addr common.Address) *big.Int {
	return s.ledger.BalanceOf(addr)
}

// Supply returns the current supply state.
func (s *LedgerService) Supply() SupplyInfo {
	return SupplyInfo{
		TrueTotalSupply:     s.ledger.TrueTotalSupply(),
		ReflectedTotal:      s.ledger.ReflectedTotalSupply(),
		BurnSinkBalance:     s.ledger.BalanceOf(domain.BurnSink),
		TaxConfig:           s.ledger.TaxConfig(),
		LiquidityRecipient:  s.ledger.LiquidityRecipient(),
		TaxedTransfers:      s.ledger.TaxedTransfers(),
		RewardExcludedCount: len(s.ledger.RewardExcluded()),
	}
}

// ListTransfers returns the most recent persisted transfers.
func (s *LedgerService) ListTransfers(ctx context.Context, limit int) ([]domain.TransferEvent, error) {
	events, err := s.transfers.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list transfers: %w", err)
	}
	return events, nil
}

// UpdateTaxConfig replaces the tax split, audit-logged.
func (s *LedgerService) UpdateTaxConfig(ctx context.Context, caller common.Address, cfg domain.TaxConfig) error {
	if err := s.ledger.UpdateTaxConfig(caller, cfg); err != nil {
		return fmt.Errorf("ledger_service: update tax config: %w", err)
	}
	s.auditAdmin(ctx, "tax_config_updated", map[string]any{
		"caller":          caller.Hex(),
		"total_bips":      cfg.TotalBips,
		"reflection_bips": cfg.ReflectionBips,
		"burn_bips":       cfg.BurnBips,
		"liquidity_bips":  cfg.LiquidityBips,
	})
	return nil
}

// SetFeeExclusion toggles a holder's fee exemption, audit-logged.
func (s *LedgerService) SetFeeExclusion(ctx context.Context, caller, addr common.Address, exempt bool) error {
	if err := s.ledger.SetFeeExclusion(caller, addr, exempt); err != nil {
		return fmt.Errorf("ledger_service: set fee exclusion: %w", err)
	}
	s.auditAdmin(ctx, "fee_exclusion_updated", map[string]any{
		"caller":  caller.Hex(),
		"address": addr.Hex(),
		"exempt":  exempt,
	})
	return nil
}

// SetRewardExclusion toggles a holder's reward exclusion, audit-logged.
func (s *LedgerService) SetRewardExclusion(ctx context.Context, caller, addr common.Address, excluded bool) error {
	if err := s.ledger.SetRewardExclusion(caller, addr, excluded); err != nil {
		return fmt.Errorf("ledger_service: set reward exclusion: %w", err)
	}
	s.auditAdmin(ctx, "reward_exclusion_updated", map[string]any{
		"caller":   caller.Hex(),
		"address":  addr.Hex(),
		"excluded": excluded,
	})
	return nil
}

// SetLiquidityRecipient changes where the liquidity tax share is credited,
// audit-logged.
func (s *LedgerService) SetLiquidityRecipient(ctx context.Context, caller, addr common.Address) error {
	if err := s.ledger.SetLiquidityRecipient(caller, addr); err != nil {
		return fmt.Errorf("ledger_service: set liquidity recipient: %w", err)
	}
	s.auditAdmin(ctx, "liquidity_recipient_updated", map[string]any{
		"caller":    caller.Hex(),
		"recipient": addr.Hex(),
	})
	return nil
}

// TransferOwnership hands the admin role to a new owner, audit-logged.
func (s *LedgerService) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	if err := s.ledger.TransferOwnership(caller, newOwner); err != nil {
		return fmt.Errorf("ledger_service: transfer ownership: %w", err)
	}
	s.auditAdmin(ctx, "ownership_transferred", map[string]any{
		"caller":    caller.Hex(),
		"new_owner": newOwner.Hex(),
	})
	return nil
}

// RenounceOwnership permanently disables every admin operation,
// audit-logged. Transfers and balance reads stay open.
func (s *LedgerService) RenounceOwnership(ctx context.Context, caller common.Address) error {
	if err := s.ledger.RenounceOwnership(caller); err != nil {
		return fmt.Errorf("ledger_service: renounce ownership: %w", err)
	}
	s.auditAdmin(ctx, "ownership_renounced", map[string]any{
		"caller": caller.Hex(),
	})
	return nil
}

// Owner returns the current admin identity.
func (s *LedgerService) Owner() common.Address {
	return s.ledger.Owner()
}

// RewardExcluded returns the enumerable reward-excluded set.
func (s *LedgerService) RewardExcluded() []common.Address {
	return s.ledger.RewardExcluded()
}

// auditAdmin records an admin action and announces it on the admin channel.
func (s *LedgerService) auditAdmin(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "ledger_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}

	detail["event"] = event
	payload, _ := json.Marshal(detail)
	if err := s.bus.Publish(ctx, ChannelAdmin, payload); err != nil {
		s.logger.WarnContext(ctx, "ledger_service: publish admin event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
