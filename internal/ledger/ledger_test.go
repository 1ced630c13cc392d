package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sooncult/soon-coin/internal/domain"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000C3")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000D4")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000E5")
)

func bi(v int64) *big.Int { return big.NewInt(v) }

// newTestLedger seeds 6,942,000,000 units to the owner with the launch tax
// split (690 total / 333 reflection / 200 burn / 157 liquidity), marks the
// owner fee-exempt so test accounts can be funded without tax, and points
// the liquidity share at the treasury.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := New(owner, owner, bi(6_942_000_000), domain.TaxConfig{
		TotalBips: 690, ReflectionBips: 333, BurnBips: 200, LiquidityBips: 157,
	})
	require.NoError(t, err)
	require.NoError(t, l.SetLiquidityRecipient(owner, treasury))
	require.NoError(t, l.SetFeeExclusion(owner, owner, true))
	return l
}

func fund(t *testing.T, l *Ledger, to common.Address, amount int64) {
	t.Helper()
	_, err := l.Transfer(owner, to, bi(amount))
	require.NoError(t, err)
}

func TestGenesisSeedsFullSupply(t *testing.T) {
	l, err := New(owner, owner, bi(6_942_000_000), domain.TaxConfig{})
	require.NoError(t, err)

	assert.Equal(t, bi(6_942_000_000), l.BalanceOf(owner))
	assert.Equal(t, bi(6_942_000_000), l.TrueTotalSupply())
	assert.Equal(t, bi(0), l.BalanceOf(domain.BurnSink))
}

func TestTaxedTransferSplit(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 1_000_000)

	supplyBefore := l.TrueTotalSupply()

	evt, err := l.Transfer(alice, bob, bi(1000))
	require.NoError(t, err)

	// tax = 69, split 33 / 20 / 15, 1 unit of dust dropped.
	assert.Equal(t, bi(69), evt.Tax)
	assert.Equal(t, bi(33), evt.ReflectionShare)
	assert.Equal(t, bi(20), evt.BurnShare)
	assert.Equal(t, bi(15), evt.LiquidityShare)
	assert.Equal(t, bi(931), evt.Net)

	assert.Equal(t, bi(931), l.BalanceOf(bob))
	assert.Equal(t, bi(15), l.BalanceOf(treasury))
	assert.Equal(t, new(big.Int).Sub(supplyBefore, bi(20)), l.TrueTotalSupply())
	assert.Equal(t, uint64(1), l.TaxedTransfers())
}

func TestFeeExemptTransferSkipsTax(t *testing.T) {
	l := newTestLedger(t)

	evt, err := l.Transfer(owner, alice, bi(1000))
	require.NoError(t, err)

	assert.True(t, evt.FeeExempt)
	assert.Equal(t, bi(1000), evt.Net)
	assert.Equal(t, bi(0), evt.Tax)
	assert.Equal(t, bi(1000), l.BalanceOf(alice))
}

func TestTransferValidation(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 100)

	_, err := l.Transfer(alice, bob, bi(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = l.Transfer(alice, bob, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = l.Transfer(common.Address{}, bob, bi(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = l.Transfer(alice, common.Address{}, bi(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = l.Transfer(alice, bob, bi(101))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// A failed transfer leaves everything untouched.
	assert.Equal(t, bi(100), l.BalanceOf(alice))
	assert.Equal(t, bi(0), l.BalanceOf(bob))
}

func TestLiquidityTaxFailsClosedWhenRecipientUnset(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 1_000_000)
	require.NoError(t, l.SetLiquidityRecipient(owner, common.Address{}))

	before := l.BalanceOf(alice)
	_, err := l.Transfer(alice, bob, bi(1000))
	assert.ErrorIs(t, err, domain.ErrLiquidityRecipientUnset)

	// Atomic: the failed step rolled back the debit too.
	assert.Equal(t, before, l.BalanceOf(alice))
	assert.Equal(t, bi(0), l.BalanceOf(bob))
	assert.Equal(t, uint64(0), l.TaxedTransfers())
}

func TestReflectionRaisesEligibleBalancesOnly(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 1_000_000_000)
	fund(t, l, bob, 1_000_000_000)
	fund(t, l, carol, 1_000_000_000)

	// Bob opts out of reflections; Alice stays eligible with an equal
	// balance.
	require.NoError(t, l.SetRewardExclusion(owner, bob, true))

	aliceBefore := l.BalanceOf(alice)
	bobBefore := l.BalanceOf(bob)
	require.Equal(t, aliceBefore, bobBefore)

	// A third party's taxed transfer triggers a reflection event.
	_, err := l.Transfer(carol, treasury, bi(100_000_000))
	require.NoError(t, err)

	assert.Equal(t, 1, l.BalanceOf(alice).Cmp(aliceBefore), "eligible holder gains")
	assert.Equal(t, bobBefore, l.BalanceOf(bob), "excluded holder unchanged")
}

func TestReflectionProportionality(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 2_000_000_000)
	fund(t, l, bob, 1_000_000_000)
	fund(t, l, carol, 500_000_000)

	aliceBefore := l.BalanceOf(alice)
	bobBefore := l.BalanceOf(bob)

	_, err := l.Transfer(carol, treasury, bi(400_000_000))
	require.NoError(t, err)

	aliceGain := new(big.Int).Sub(l.BalanceOf(alice), aliceBefore)
	bobGain := new(big.Int).Sub(l.BalanceOf(bob), bobBefore)

	// Alice holds twice Bob's balance, so she gains about twice as much.
	diff := new(big.Int).Sub(aliceGain, new(big.Int).Mul(bobGain, bi(2)))
	assert.LessOrEqual(t, diff.CmpAbs(bi(2)), 0,
		"gains proportional to holdings, got alice=%s bob=%s", aliceGain, bobGain)
}

func TestSupplyConservation(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 500_000_000)
	fund(t, l, bob, 300_000_000)

	for i := 0; i < 50; i++ {
		_, err := l.Transfer(alice, bob, bi(1_000_003))
		require.NoError(t, err)
		_, err = l.Transfer(bob, alice, bi(999_999))
		require.NoError(t, err)
	}

	snap := l.Snapshot()
	sum := new(big.Int)
	for _, h := range snap.Holders {
		sum.Add(sum, h.Balance)
	}

	dust := new(big.Int).Sub(snap.TrueTotalSupply, sum)
	bound := new(big.Int).SetUint64(2 * l.TaxedTransfers())
	assert.GreaterOrEqual(t, dust.Sign(), 0, "holders never exceed supply")
	assert.LessOrEqual(t, dust.Cmp(bound), 0,
		"dust %s exceeds bound %s after %d taxed transfers", dust, bound, l.TaxedTransfers())
}

func TestBurnMonotonicity(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 1_000_000)

	prev := l.TrueTotalSupply()
	for i := 0; i < 10; i++ {
		evt, err := l.Transfer(alice, bob, bi(10_000))
		require.NoError(t, err)

		cur := l.TrueTotalSupply()
		assert.Equal(t, new(big.Int).Sub(prev, evt.BurnShare), cur)
		assert.Equal(t, bi(200), evt.BurnShare)
		prev = cur
	}
}

func TestExclusionRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 123_456_789)

	before := l.BalanceOf(alice)
	require.NoError(t, l.SetRewardExclusion(owner, alice, true))
	assert.Equal(t, before, l.BalanceOf(alice), "exclusion keeps the balance")

	require.NoError(t, l.SetRewardExclusion(owner, alice, false))
	diff := new(big.Int).Sub(before, l.BalanceOf(alice))
	assert.LessOrEqual(t, diff.CmpAbs(bi(1)), 0, "round trip within 1 unit")
}

func TestExclusionImmediatelyAfterGenesis(t *testing.T) {
	l, err := New(owner, owner, bi(6_942_000_000), domain.TaxConfig{
		TotalBips: 690, ReflectionBips: 333, BurnBips: 200, LiquidityBips: 157,
	})
	require.NoError(t, err)

	require.NoError(t, l.SetRewardExclusion(owner, owner, true))
	assert.Equal(t, bi(6_942_000_000), l.BalanceOf(owner),
		"genesis-assigned supply survives exclusion")
}

func TestRewardExclusionErrors(t *testing.T) {
	l := newTestLedger(t)

	err := l.SetRewardExclusion(owner, common.Address{}, true)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	require.NoError(t, l.SetRewardExclusion(owner, alice, true))
	err = l.SetRewardExclusion(owner, alice, true)
	assert.ErrorIs(t, err, domain.ErrExclusionUnchanged)

	err = l.SetRewardExclusion(alice, bob, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRewardExclusionEnumeration(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.SetRewardExclusion(owner, alice, true))

	excluded := l.RewardExcluded()
	assert.Contains(t, excluded, alice)
	assert.Contains(t, excluded, domain.BurnSink)
}

func TestUpdateTaxConfig(t *testing.T) {
	l := newTestLedger(t)

	// Components that do not sum to the total are rejected.
	err := l.UpdateTaxConfig(owner, domain.TaxConfig{
		TotalBips: 500, ReflectionBips: 300, BurnBips: 100, LiquidityBips: 101,
	})
	assert.ErrorIs(t, err, domain.ErrTaxConfigInvalid)

	// Totals above 1000 bips are rejected.
	err = l.UpdateTaxConfig(owner, domain.TaxConfig{
		TotalBips: 1001, ReflectionBips: 1001,
	})
	assert.ErrorIs(t, err, domain.ErrTaxConfigInvalid)

	require.NoError(t, l.UpdateTaxConfig(owner, domain.TaxConfig{
		TotalBips: 500, ReflectionBips: 300, BurnBips: 100, LiquidityBips: 100,
	}))
	assert.Equal(t, uint32(500), l.TaxConfig().TotalBips)
}

func TestZeroTaxTransfersFully(t *testing.T) {
	l := newTestLedger(t)
	fund(t, l, alice, 10_000)
	require.NoError(t, l.UpdateTaxConfig(owner, domain.TaxConfig{}))

	evt, err := l.Transfer(alice, bob, bi(1000))
	require.NoError(t, err)
	assert.Equal(t, bi(1000), evt.Net)
	assert.Equal(t, bi(1000), l.BalanceOf(bob))
}

func TestOwnership(t *testing.T) {
	l := newTestLedger(t)

	err := l.TransferOwnership(owner, common.Address{})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	require.NoError(t, l.TransferOwnership(owner, alice))
	assert.Equal(t, alice, l.Owner())

	err = l.UpdateTaxConfig(owner, domain.TaxConfig{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, l.RenounceOwnership(alice))
	assert.Equal(t, common.Address{}, l.Owner())

	// All admin surfaces are gone for good, transfers stay open.
	err = l.UpdateTaxConfig(alice, domain.TaxConfig{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	fundable := l.BalanceOf(owner)
	require.Positive(t, fundable.Sign())
	_, err = l.Transfer(owner, bob, bi(10))
	assert.NoError(t, err)
}
