package rebalancer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sooncult/soon-coin/internal/amm"
	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/oracle"
)

var (
	nativeAddr = common.HexToAddress("0x0000000000000000000000000000000000000011")
	pairedAddr = common.HexToAddress("0x0000000000000000000000000000000000000022")
	baseAddr   = common.HexToAddress("0x0000000000000000000000000000000000000033")
	strayAddr  = common.HexToAddress("0x0000000000000000000000000000000000000044")

	poolAcct     = common.HexToAddress("0x00000000000000000000000000000000000000F0")
	treasuryAcct = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	adminAcct    = common.HexToAddress("0x00000000000000000000000000000000000000F2")
	traderAcct   = common.HexToAddress("0x00000000000000000000000000000000000000F3")
	strangerAcct = common.HexToAddress("0x00000000000000000000000000000000000000F4")
)

func bi(v int64) *big.Int { return big.NewInt(v) }

type fixture struct {
	native  *amm.SimpleToken
	paired  *amm.SimpleToken
	base    *amm.SimpleToken
	manager *amm.Memory
	oracle  *oracle.Static
	reb     *Rebalancer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	native := amm.NewSimpleToken(nativeAddr)
	paired := amm.NewSimpleToken(pairedAddr)
	base := amm.NewSimpleToken(baseAddr)
	native.Mint(treasuryAcct, bi(1_000_000))
	paired.Mint(treasuryAcct, bi(1_000_000))
	base.Mint(treasuryAcct, bi(1_000))
	native.Mint(traderAcct, bi(100_000))
	paired.Mint(traderAcct, bi(100_000))

	manager, err := amm.NewMemory(native, paired, poolAcct)
	require.NoError(t, err)

	orc := oracle.NewStatic(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reb, err := New(Config{
		Owner:          adminAcct,
		Treasury:       treasuryAcct,
		Manager:        manager,
		Oracle:         orc,
		Native:         native,
		Paired:         paired,
		Base:           base,
		FeeTier:        3000,
		HalfWidthTicks: 2000,
		TwapWindowSec:  1800,
	}, logger)
	require.NoError(t, err)

	return &fixture{native: native, paired: paired, base: base, manager: manager, oracle: orc, reb: reb}
}

func (f *fixture) initialize(t *testing.T) domain.RebalanceEvent {
	t.Helper()
	evt, err := f.reb.InitializePosition(context.Background(), adminAcct, bi(10_000), bi(10_000), 0)
	require.NoError(t, err)
	return evt
}

func TestInitializePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reb.InitializePosition(ctx, strangerAcct, bi(1), bi(1), 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.reb.InitializePosition(ctx, adminAcct, bi(0), bi(1), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmounts)

	_, err = f.reb.InitializePosition(ctx, adminAcct, bi(2_000_000), bi(1), 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	evt := f.initialize(t)
	assert.Equal(t, domain.RebalanceKindInit, evt.Kind)
	assert.Equal(t, int32(-2000), evt.NewLower)
	assert.Equal(t, int32(2000), evt.NewUpper)

	st := f.reb.State()
	assert.True(t, st.Initialized)
	assert.NotZero(t, st.Handle)

	_, err = f.reb.InitializePosition(ctx, adminAcct, bi(1), bi(1), 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestRebalanceBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	_, err := f.reb.Rebalance(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestRebalanceCollectsWithoutMigration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)
	before := f.reb.State()

	require.NoError(t, f.manager.AccrueFees(ctx, before.Handle, traderAcct, bi(50), bi(70)))
	f.oracle.SetTick(500) // well inside [-2000, 2000)

	natBefore, _ := f.native.BalanceOf(ctx, treasuryAcct)

	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.RebalanceKindCollect, evt.Kind)
	assert.False(t, evt.Migrated)
	assert.True(t, evt.OracleOK)
	assert.Equal(t, bi(50), evt.Fees0)
	assert.Equal(t, bi(70), evt.Fees1)

	after := f.reb.State()
	assert.Equal(t, before.Handle, after.Handle)
	assert.Equal(t, before.TickLower, after.TickLower)

	natAfter, _ := f.native.BalanceOf(ctx, treasuryAcct)
	assert.Equal(t, bi(50), new(big.Int).Sub(natAfter, natBefore), "fees landed in the treasury")
}

func TestRebalanceMigratesWhenPriceLeavesRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)
	before := f.reb.State()

	require.NoError(t, f.manager.AccrueFees(ctx, before.Handle, traderAcct, bi(50), bi(70)))
	f.oracle.SetTick(2500)

	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.RebalanceKindMigrate, evt.Kind)
	assert.True(t, evt.Migrated)
	assert.Equal(t, int32(2500), evt.TwapTick)
	assert.Equal(t, int32(500), evt.NewLower)
	assert.Equal(t, int32(4500), evt.NewUpper)
	assert.NotEqual(t, before.Handle, evt.Handle, "migration issues a new handle")

	after := f.reb.State()
	assert.Equal(t, evt.Handle, after.Handle)
	assert.Equal(t, int32(500), after.TickLower)
	assert.Equal(t, int32(4500), after.TickUpper)

	// Withdrawn principal plus every fee collected this call is re-minted
	// into the new position.
	pos, err := f.manager.Position(ctx, after.Handle)
	require.NoError(t, err)
	assert.Equal(t, bi(10_000+10_000+50+70), pos.Liquidity)

	_, err = f.manager.Position(ctx, before.Handle)
	require.NoError(t, err, "old handle remains queryable, emptied")
}

func TestRebalanceBoundaryTickMigrates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	// The range is half-open: the upper boundary itself is already out.
	f.oracle.SetTick(2000)
	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Migrated)

	// The lower boundary is still in.
	f.oracle.SetTick(0)
	_, err = f.reb.Rebalance(ctx)
	require.NoError(t, err)
	f.oracle.SetTick(int64(f.reb.State().TickLower))
	evt, err = f.reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.False(t, evt.Migrated)
}

func TestOracleFailureIsSoft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)
	before := f.reb.State()

	require.NoError(t, f.manager.AccrueFees(ctx, before.Handle, traderAcct, bi(5), bi(5)))
	f.oracle.Fail(errors.New("rpc timeout"))

	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err, "oracle outage must not fail the call")
	assert.False(t, evt.OracleOK)
	assert.False(t, evt.Migrated)
	assert.Equal(t, bi(5), evt.Fees0, "fees are still collected")
	assert.Equal(t, before.Handle, f.reb.State().Handle)
}

// flakyManager wraps the memory manager and fails Mint a configured number
// of times, standing in for a transient outage of the external service.
type flakyManager struct {
	domain.PositionManager
	mintFailures int
}

func (m *flakyManager) Mint(ctx context.Context, p domain.MintParams) (domain.MintResult, error) {
	if m.mintFailures > 0 {
		m.mintFailures--
		return domain.MintResult{}, errors.New("rpc timeout")
	}
	return m.PositionManager.Mint(ctx, p)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyManager) {
	t.Helper()
	f := newFixture(t)

	wrapped := &flakyManager{PositionManager: f.manager}
	reb, err := New(Config{
		Owner:          adminAcct,
		Treasury:       treasuryAcct,
		Manager:        wrapped,
		Oracle:         f.oracle,
		Native:         f.native,
		Paired:         f.paired,
		Base:           f.base,
		FeeTier:        3000,
		HalfWidthTicks: 2000,
		TwapWindowSec:  1800,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	f.reb = reb
	return f, wrapped
}

func TestMigrationResumesAfterMintFailure(t *testing.T) {
	f, wrapped := newFlakyFixture(t)
	ctx := context.Background()
	f.initialize(t)
	before := f.reb.State()

	require.NoError(t, f.manager.AccrueFees(ctx, before.Handle, traderAcct, bi(50), bi(70)))
	f.oracle.SetTick(2500)
	wrapped.mintFailures = 1

	_, err := f.reb.Rebalance(ctx)
	require.Error(t, err)

	st := f.reb.State()
	assert.Equal(t, before.Handle, st.Handle, "recorded handle unchanged on failure")
	assert.Equal(t, before.TickLower, st.TickLower)

	pos, err := f.manager.Position(ctx, before.Handle)
	require.NoError(t, err)
	assert.Zero(t, pos.Liquidity.Sign(), "principal sits in the treasury after the failed attempt")

	// The next call completes the interrupted migration with the full
	// withdrawn capital plus the fees collected alongside it.
	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Migrated)
	assert.Equal(t, int32(500), evt.NewLower)
	assert.Equal(t, int32(4500), evt.NewUpper)

	pos, err = f.manager.Position(ctx, evt.Handle)
	require.NoError(t, err)
	assert.Equal(t, bi(10_000+10_000+50+70), pos.Liquidity)
}

func TestDrainedPositionRedeploysEvenInRange(t *testing.T) {
	f, wrapped := newFlakyFixture(t)
	ctx := context.Background()
	f.initialize(t)

	f.oracle.SetTick(2500)
	wrapped.mintFailures = 1
	_, err := f.reb.Rebalance(ctx)
	require.Error(t, err)

	// Price returns to the recorded range before the retry. An empty
	// position never parks; the capital is redeployed around the TWAP.
	f.oracle.SetTick(0)
	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Migrated)
	assert.Equal(t, int32(-2000), evt.NewLower)
	assert.Equal(t, int32(2000), evt.NewUpper)

	pos, err := f.manager.Position(ctx, evt.Handle)
	require.NoError(t, err)
	assert.Equal(t, bi(20_000), pos.Liquidity)
}

func TestRebalanceSweepsOwedPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)
	before := f.reb.State()

	// Liquidity withdrawn but not yet paid out, as after an interrupted
	// migration that failed between its withdraw and collect legs.
	_, _, err := f.manager.DecreaseLiquidity(ctx, before.Handle, bi(20_000))
	require.NoError(t, err)

	f.oracle.SetTick(2500)
	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Migrated)

	pos, err := f.manager.Position(ctx, evt.Handle)
	require.NoError(t, err)
	assert.Equal(t, bi(20_000), pos.Liquidity, "owed principal swept and redeployed")
}

func TestParameterUpdatesAndBounds(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.reb.UpdateHalfWidth(strangerAcct, 100), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.reb.UpdateHalfWidth(adminAcct, 0), domain.ErrInvalidParameter)
	assert.ErrorIs(t, f.reb.UpdateHalfWidth(adminAcct, MaxHalfWidthTicks), domain.ErrInvalidParameter)
	require.NoError(t, f.reb.UpdateHalfWidth(adminAcct, 500))
	assert.Equal(t, int32(500), f.reb.State().HalfWidthTicks)

	assert.ErrorIs(t, f.reb.UpdateTwapWindow(adminAcct, MinTwapWindowSec-1), domain.ErrInvalidParameter)
	assert.ErrorIs(t, f.reb.UpdateTwapWindow(adminAcct, MaxTwapWindowSec+1), domain.ErrInvalidParameter)
	require.NoError(t, f.reb.UpdateTwapWindow(adminAcct, 3600))
	assert.Equal(t, uint32(3600), f.reb.State().TwapWindowSec)
}

func TestLockSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	assert.ErrorIs(t, f.reb.Lock(strangerAcct), domain.ErrUnauthorized)
	require.NoError(t, f.reb.Lock(adminAcct))
	assert.ErrorIs(t, f.reb.Lock(adminAcct), domain.ErrAlreadyLocked)

	assert.ErrorIs(t, f.reb.UpdateHalfWidth(adminAcct, 500), domain.ErrLocked)
	assert.ErrorIs(t, f.reb.UpdateTwapWindow(adminAcct, 3600), domain.ErrLocked)

	stray := amm.NewSimpleToken(strayAddr)
	stray.Mint(treasuryAcct, bi(10))
	assert.ErrorIs(t, f.reb.RescueForeignAsset(ctx, adminAcct, stray, adminAcct, bi(10)), domain.ErrLocked)
	assert.ErrorIs(t, f.reb.RescueNativeAsset(ctx, adminAcct, adminAcct, bi(1)), domain.ErrLocked)

	// Migration stays callable forever.
	f.oracle.SetTick(9000)
	evt, err := f.reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.True(t, evt.Migrated)
}

func TestRescue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stray := amm.NewSimpleToken(strayAddr)
	stray.Mint(treasuryAcct, bi(250))

	assert.ErrorIs(t, f.reb.RescueForeignAsset(ctx, strangerAcct, stray, strangerAcct, bi(1)), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.reb.RescueForeignAsset(ctx, adminAcct, f.native, adminAcct, bi(1)), domain.ErrProtectedAsset)
	assert.ErrorIs(t, f.reb.RescueForeignAsset(ctx, adminAcct, f.paired, adminAcct, bi(1)), domain.ErrProtectedAsset)

	require.NoError(t, f.reb.RescueForeignAsset(ctx, adminAcct, stray, adminAcct, bi(250)))
	got, _ := stray.BalanceOf(ctx, adminAcct)
	assert.Equal(t, bi(250), got)

	require.NoError(t, f.reb.RescueNativeAsset(ctx, adminAcct, adminAcct, bi(1000)))
	got, _ = f.base.BalanceOf(ctx, adminAcct)
	assert.Equal(t, bi(1000), got)
}

func TestOwnershipTransferAndRenounce(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.reb.TransferOwnership(adminAcct, common.Address{}), domain.ErrInvalidAddress)
	require.NoError(t, f.reb.TransferOwnership(adminAcct, strangerAcct))
	assert.ErrorIs(t, f.reb.UpdateHalfWidth(adminAcct, 500), domain.ErrUnauthorized)
	require.NoError(t, f.reb.UpdateHalfWidth(strangerAcct, 500))

	require.NoError(t, f.reb.RenounceOwnership(strangerAcct))
	assert.ErrorIs(t, f.reb.UpdateHalfWidth(strangerAcct, 600), domain.ErrUnauthorized)
}

// reentrantManager wraps the memory manager and calls back into the
// rebalancer from inside Collect, the way a malicious external service
// would.
type reentrantManager struct {
	domain.PositionManager
	reb      *Rebalancer
	innerErr error
}

func (m *reentrantManager) Collect(ctx context.Context, handle uint64, recipient common.Address, max0, max1 *big.Int) (*big.Int, *big.Int, error) {
	if m.reb != nil {
		_, m.innerErr = m.reb.Rebalance(ctx)
	}
	return m.PositionManager.Collect(ctx, handle, recipient, max0, max1)
}

func TestReentrancyGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	wrapped := &reentrantManager{PositionManager: f.manager}
	reb, err := New(Config{
		Owner:          adminAcct,
		Treasury:       treasuryAcct,
		Manager:        wrapped,
		Oracle:         f.oracle,
		Native:         f.native,
		Paired:         f.paired,
		FeeTier:        3000,
		HalfWidthTicks: 2000,
		TwapWindowSec:  1800,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	wrapped.reb = reb

	_, err = reb.InitializePosition(ctx, adminAcct, bi(1000), bi(1000), 0)
	require.NoError(t, err)

	_, err = reb.Rebalance(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, wrapped.innerErr, domain.ErrReentrantCall,
		"callback into Rebalance during an external call is rejected")
}

func TestTwapFromCumulatives(t *testing.T) {
	cases := []struct {
		name     string
		oldCum   int64
		newCum   int64
		window   uint32
		expected int64
	}{
		{"positive exact", -1_800_000, 0, 1800, 1000},
		{"positive truncates", 0, 1801, 1800, 1},
		{"negative exact", 1_800_000, 0, 1800, -1000},
		{"negative floors", 0, -1801, 1800, -2},
		{"zero", 42, 42, 600, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, twapFromCumulatives(tc.oldCum, tc.newCum, tc.window))
		})
	}
}
