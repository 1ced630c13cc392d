package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/claims"
	"github.com/sooncult/soon-coin/internal/domain"
)

// ClaimsService pays allocation claims and fans out the resulting transfer
// events the same way direct transfers are.
type ClaimsService struct {
	distributor *claims.Distributor
	transfers   domain.TransferStore
	bus         domain.SignalBus
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewClaimsService creates a ClaimsService with all required dependencies.
func NewClaimsService(
	d *claims.Distributor,
	transfers domain.TransferStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ClaimsService {
	return &ClaimsService{
		distributor: d,
		transfers:   transfers,
		bus:         bus,
		audit:       audit,
		logger:      logger,
	}
}

// Root returns the allocation root claims are verified against.
func (s *ClaimsService) Root() common.Hash {
	return s.distributor.Root()
}

// IsClaimed reports whether a claim index has already been paid.
func (s *ClaimsService) IsClaimed(index uint64) bool {
	return s.distributor.IsClaimed(index)
}

// Claim verifies the proof, pays the allocation, and records the payout.
func (s *ClaimsService) Claim(ctx context.Context, leaf claims.Leaf, proof []common.Hash) (domain.TransferEvent, error) {
	evt, err := s.distributor.Claim(leaf, proof)
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("claims_service: claim: %w", err)
	}

	if insErr := s.transfers.Insert(ctx, evt); insErr != nil {
		s.logger.WarnContext(ctx, "claims_service: persist payout failed",
			slog.String("transfer_id", evt.ID),
			slog.String("error", insErr.Error()),
		)
	}
	payload, _ := json.Marshal(evt)
	if pubErr := s.bus.Publish(ctx, ChannelTransfers, payload); pubErr != nil {
		s.logger.WarnContext(ctx, "claims_service: publish payout failed",
			slog.String("transfer_id", evt.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "claim_paid", map[string]any{
		"index":   leaf.Index,
		"account": leaf.Account.Hex(),
		"amount":  leaf.Amount.String(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "claims_service: audit log failed",
			slog.Uint64("index", leaf.Index),
			slog.String("error", auditErr.Error()),
		)
	}
	return evt, nil
}
