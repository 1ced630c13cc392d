package memory

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sooncult/soon-coin/internal/domain"
)

func TestTransferStoreNewestFirst(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Insert(ctx, domain.TransferEvent{
			ID:     fmt.Sprintf("t%d", i),
			Amount: big.NewInt(int64(i)),
		}))
	}

	got, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "t3", got[0].ID)
	require.Equal(t, "t2", got[1].ID)

	all, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestTransferStoreRetentionWindow(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	for i := 0; i < retained+5; i++ {
		require.NoError(t, store.Insert(ctx, domain.TransferEvent{
			ID: fmt.Sprintf("t%d", i),
		}))
	}

	all, err := store.ListRecent(ctx, retained+5)
	require.NoError(t, err)
	require.Len(t, all, retained)
	require.Equal(t, fmt.Sprintf("t%d", retained+4), all[0].ID)
}

func TestRebalanceStoreRoundTrip(t *testing.T) {
	store := NewRebalanceStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, domain.RebalanceEvent{
		ID:   "r1",
		Kind: domain.RebalanceKindMigrate,
	}))

	got, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.RebalanceKindMigrate, got[0].Kind)
}

func TestAuditStoreAssignsSequentialIDs(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, "first", map[string]any{"k": 1}))
	require.NoError(t, store.Log(ctx, "second", nil))

	got, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, "second", got[0].Event)
	require.Equal(t, int64(1), got[1].ID)
	require.False(t, got[1].CreatedAt.IsZero())
}
