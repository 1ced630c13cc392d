package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/rebalancer"
)

// RebalanceService executes position operations and fans out their events.
type RebalanceService struct {
	reb    *rebalancer.Rebalancer
	store  domain.RebalanceStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewRebalanceService creates a RebalanceService with all required
// dependencies.
func NewRebalanceService(
	reb *rebalancer.Rebalancer,
	store domain.RebalanceStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *RebalanceService {
	return &RebalanceService{
		reb:    reb,
		store:  store,
		bus:    bus,
		audit:  audit,
		logger: logger,
	}
}

// Initialize mints the first position and records the event.
func (s *RebalanceService) Initialize(ctx context.Context, caller common.Address, amountNative, amountPaired *big.Int, targetTick int32) (domain.RebalanceEvent, error) {
	evt, err := s.reb.InitializePosition(ctx, caller, amountNative, amountPaired, targetTick)
	if err != nil {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalance_service: initialize: %w", err)
	}
	s.record(ctx, evt)

	if auditErr := s.audit.Log(ctx, "position_initialized", map[string]any{
		"caller":    caller.Hex(),
		"handle":    evt.Handle,
		"new_lower": evt.NewLower,
		"new_upper": evt.NewUpper,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "rebalance_service: audit log failed",
			slog.String("event_id", evt.ID),
			slog.String("error", auditErr.Error()),
		)
	}
	return evt, nil
}

// Rebalance collects fees and migrates the position when the average price
// has left the recorded range, then records the outcome.
func (s *RebalanceService) Rebalance(ctx context.Context) (domain.RebalanceEvent, error) {
	evt, err := s.reb.Rebalance(ctx)
	if err != nil {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalance_service: rebalance: %w", err)
	}
	s.record(ctx, evt)

	s.logger.InfoContext(ctx, "rebalance_service: rebalance completed",
		slog.String("event_id", evt.ID),
		slog.String("kind", string(evt.Kind)),
		slog.Bool("migrated", evt.Migrated),
		slog.Bool("oracle_ok", evt.OracleOK),
	)
	return evt, nil
}

// Status returns the current position state.
func (s *RebalanceService) Status() rebalancer.Status {
	return s.reb.State()
}

// ListRebalances returns the most recent persisted rebalance records.
func (s *RebalanceService) ListRebalances(ctx context.Context, limit int) ([]domain.RebalanceEvent, error) {
	events, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("rebalance_service: list rebalances: %w", err)
	}
	return events, nil
}

// UpdateHalfWidth tunes the range half-width, audit-logged.
func (s *RebalanceService) UpdateHalfWidth(ctx context.Context, caller common.Address, halfWidth int32) error {
	if err := s.reb.UpdateHalfWidth(caller, halfWidth); err != nil {
		return fmt.Errorf("rebalance_service: update half width: %w", err)
	}
	s.auditAdmin(ctx, "half_width_updated", map[string]any{
		"caller":     caller.Hex(),
		"half_width": halfWidth,
	})
	return nil
}

// UpdateTwapWindow tunes the averaging window, audit-logged.
func (s *RebalanceService) UpdateTwapWindow(ctx context.Context, caller common.Address, windowSec uint32) error {
	if err := s.reb.UpdateTwapWindow(caller, windowSec); err != nil {
		return fmt.Errorf("rebalance_service: update twap window: %w", err)
	}
	s.auditAdmin(ctx, "twap_window_updated", map[string]any{
		"caller":     caller.Hex(),
		"window_sec": windowSec,
	})
	return nil
}

// Lock permanently freezes parameters and rescue, audit-logged.
func (s *RebalanceService) Lock(ctx context.Context, caller common.Address) error {
	if err := s.reb.Lock(caller); err != nil {
		return fmt.Errorf("rebalance_service: lock: %w", err)
	}
	s.auditAdmin(ctx, "rebalancer_locked", map[string]any{
		"caller": caller.Hex(),
	})
	return nil
}

// RescueForeignAsset sweeps a stray token out of the treasury, audit-logged.
func (s *RebalanceService) RescueForeignAsset(ctx context.Context, caller common.Address, token domain.Token, to common.Address, amount *big.Int) error {
	if err := s.reb.RescueForeignAsset(ctx, caller, token, to, amount); err != nil {
		return fmt.Errorf("rebalance_service: rescue foreign: %w", err)
	}
	s.auditAdmin(ctx, "foreign_asset_rescued", map[string]any{
		"caller": caller.Hex(),
		"token":  token.Address().Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
	return nil
}

// RescueNativeAsset sweeps the chain's base currency out of the treasury,
// audit-logged.
func (s *RebalanceService) RescueNativeAsset(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	if err := s.reb.RescueNativeAsset(ctx, caller, to, amount); err != nil {
		return fmt.Errorf("rebalance_service: rescue native: %w", err)
	}
	s.auditAdmin(ctx, "native_asset_rescued", map[string]any{
		"caller": caller.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
	return nil
}

// record persists the event and publishes it for live consumers.
func (s *RebalanceService) record(ctx context.Context, evt domain.RebalanceEvent) {
	if insErr := s.store.Insert(ctx, evt); insErr != nil {
		s.logger.WarnContext(ctx, "rebalance_service: persist event failed",
			slog.String("event_id", evt.ID),
			slog.String("error", insErr.Error()),
		)
	}

	payload, _ := json.Marshal(evt)
	if pubErr := s.bus.Publish(ctx, ChannelRebalances, payload); pubErr != nil {
		s.logger.WarnContext(ctx, "rebalance_service: publish event failed",
			slog.String("event_id", evt.ID),
			slog.String("error", pubErr.Error()),
		)
	}
	if strErr := s.bus.StreamAppend(ctx, StreamRebalances, payload); strErr != nil {
		s.logger.WarnContext(ctx, "rebalance_service: stream event failed",
			slog.String("event_id", evt.ID),
			slog.String("error", strErr.Error()),
		)
	}
}

// auditAdmin records an admin action and announces it on the admin channel.
func (s *RebalanceService) auditAdmin(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "rebalance_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}

	detail["event"] = event
	payload, _ := json.Marshal(detail)
	if err := s.bus.Publish(ctx, ChannelAdmin, payload); err != nil {
		s.logger.WarnContext(ctx, "rebalance_service: publish admin event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
