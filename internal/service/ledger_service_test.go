package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	membus "github.com/sooncult/soon-coin/internal/cache/memory"
	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/ledger"
	memstore "github.com/sooncult/soon-coin/internal/store/memory"
)

var (
	testOwner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testGenesis = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testHolder  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func newTestLedgerService(t *testing.T) (*LedgerService, *memstore.TransferStore, *memstore.AuditStore, *membus.Bus) {
	t.Helper()

	l, err := ledger.New(testOwner, testGenesis, big.NewInt(1_000_000), domain.TaxConfig{
		TotalBips:      500,
		ReflectionBips: 300,
		BurnBips:       200,
	})
	require.NoError(t, err)

	transfers := memstore.NewTransferStore()
	audit := memstore.NewAuditStore()
	bus := membus.NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewLedgerService(l, transfers, bus, audit, logger), transfers, audit, bus
}

func TestTransferPersistsAndPublishes(t *testing.T) {
	svc, transfers, _, bus := newTestLedgerService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, ChannelTransfers)
	require.NoError(t, err)

	evt, err := svc.Transfer(ctx, testGenesis, testHolder, big.NewInt(10_000))
	require.NoError(t, err)
	require.NotEmpty(t, evt.ID)
	require.Equal(t, int64(500), evt.Tax.Int64())
	require.Equal(t, int64(9_500), evt.Net.Int64())

	stored, err := transfers.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, evt.ID, stored[0].ID)

	select {
	case payload := <-sub:
		var got domain.TransferEvent
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Equal(t, evt.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("transfer event not published")
	}

	streamed, err := bus.StreamRead(ctx, StreamTransfers, "", 10)
	require.NoError(t, err)
	require.Len(t, streamed, 1)
}

func TestTransferRejectedLeavesNoTrace(t *testing.T) {
	svc, transfers, _, bus := newTestLedgerService(t)
	ctx := context.Background()

	// The holder has no balance, so the transfer must fail at the ledger.
	_, err := svc.Transfer(ctx, testHolder, testGenesis, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	stored, err := transfers.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, stored)

	streamed, err := bus.StreamRead(ctx, StreamTransfers, "", 10)
	require.NoError(t, err)
	require.Empty(t, streamed)
}

func TestAdminOpsAuditedAndAnnounced(t *testing.T) {
	svc, _, audit, bus := newTestLedgerService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, ChannelAdmin)
	require.NoError(t, err)

	require.NoError(t, svc.SetFeeExclusion(ctx, testOwner, testHolder, true))
	require.NoError(t, svc.SetRewardExclusion(ctx, testOwner, testHolder, true))

	entries, err := audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "reward_exclusion_updated", entries[0].Event)
	require.Equal(t, "fee_exclusion_updated", entries[1].Event)

	select {
	case payload := <-sub:
		var got map[string]any
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Equal(t, "fee_exclusion_updated", got["event"])
	case <-time.After(time.Second):
		t.Fatal("admin event not published")
	}

	// Non-owner callers are rejected and leave no audit trail.
	require.ErrorIs(t, svc.SetFeeExclusion(ctx, testHolder, testGenesis, true), domain.ErrUnauthorized)
	entries, err = audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSupplyReflectsBurns(t *testing.T) {
	svc, _, _, _ := newTestLedgerService(t)
	ctx := context.Background()

	before := svc.Supply()
	require.Equal(t, int64(1_000_000), before.TrueTotalSupply.Int64())
	require.Equal(t, uint64(0), before.TaxedTransfers)

	_, err := svc.Transfer(ctx, testGenesis, testHolder, big.NewInt(10_000))
	require.NoError(t, err)

	after := svc.Supply()
	// 200 bips of 10000 burn away from the true supply. The sink is never
	// credited; it exists only as an observable zero-balance account.
	require.Equal(t, int64(999_800), after.TrueTotalSupply.Int64())
	require.Equal(t, uint64(1), after.TaxedTransfers)
	require.Equal(t, int64(0), after.BurnSinkBalance.Int64())
}
