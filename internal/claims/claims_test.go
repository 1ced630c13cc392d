package claims

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/ledger"
)

var (
	ownerAcct  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	sourceAcct = common.HexToAddress("0x00000000000000000000000000000000000000A2")
	aliceAcct  = common.HexToAddress("0x00000000000000000000000000000000000000A3")
	bobAcct    = common.HexToAddress("0x00000000000000000000000000000000000000A4")
	carolAcct  = common.HexToAddress("0x00000000000000000000000000000000000000A5")
)

func testAllocation() []Leaf {
	return []Leaf{
		{Index: 0, Account: aliceAcct, Amount: big.NewInt(1_000)},
		{Index: 1, Account: bobAcct, Amount: big.NewInt(2_500)},
		{Index: 2, Account: carolAcct, Amount: big.NewInt(400)},
	}
}

func newTestDistributor(t *testing.T) (*Distributor, *Tree, *ledger.Ledger) {
	t.Helper()

	l, err := ledger.New(ownerAcct, sourceAcct, big.NewInt(1_000_000), domain.TaxConfig{
		TotalBips:      500,
		ReflectionBips: 300,
		BurnBips:       100,
		LiquidityBips:  100,
	})
	require.NoError(t, err)
	require.NoError(t, l.SetLiquidityRecipient(ownerAcct, ownerAcct))
	// Claimants receive the exact allocation: the source pays no tax.
	require.NoError(t, l.SetFeeExclusion(ownerAcct, sourceAcct, true))

	tree, err := BuildTree(testAllocation())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewDistributor(l, sourceAcct, tree.Root(), logger)
	require.NoError(t, err)
	return d, tree, l
}

func TestBuildTreeRejectsBadInput(t *testing.T) {
	_, err := BuildTree(nil)
	assert.Error(t, err)

	_, err = BuildTree([]Leaf{
		{Index: 3, Account: aliceAcct, Amount: big.NewInt(1)},
		{Index: 3, Account: bobAcct, Amount: big.NewInt(2)},
	})
	assert.Error(t, err, "duplicate indexes are rejected")
}

func TestProofVerification(t *testing.T) {
	tree, err := BuildTree(testAllocation())
	require.NoError(t, err)

	for pos, leaf := range tree.Leaves() {
		proof, err := tree.Proof(pos)
		require.NoError(t, err)
		assert.True(t, VerifyProof(tree.Root(), leaf, proof), "leaf %d verifies", leaf.Index)

		// Tampering with the amount breaks the proof.
		forged := leaf
		forged.Amount = new(big.Int).Add(leaf.Amount, big.NewInt(1))
		assert.False(t, VerifyProof(tree.Root(), forged, proof))
	}

	_, err = tree.Proof(len(tree.Leaves()))
	assert.Error(t, err)
}

func TestClaimPaysOnce(t *testing.T) {
	d, tree, l := newTestDistributor(t)
	leaf := tree.Leaves()[0]
	proof, err := tree.Proof(0)
	require.NoError(t, err)

	evt, err := d.Claim(leaf, proof)
	require.NoError(t, err)
	assert.Equal(t, leaf.Amount, evt.Net, "fee-exempt source pays the allocation in full")
	assert.Equal(t, leaf.Amount, l.BalanceOf(leaf.Account))
	assert.True(t, d.IsClaimed(leaf.Index))

	_, err = d.Claim(leaf, proof)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimRejectsForgedProof(t *testing.T) {
	d, tree, _ := newTestDistributor(t)
	leaf := tree.Leaves()[1]
	proof, err := tree.Proof(0) // proof for a different leaf
	require.NoError(t, err)

	_, err = d.Claim(leaf, proof)
	assert.ErrorIs(t, err, domain.ErrInvalidProof)
	assert.False(t, d.IsClaimed(leaf.Index))
}

func TestClaimRetriesAfterFailedPayout(t *testing.T) {
	d, tree, l := newTestDistributor(t)

	// Drain the source so the payout fails; the claim stays open.
	require.NoError(t, l.SetFeeExclusion(ownerAcct, aliceAcct, true))
	drain := new(big.Int).Sub(l.BalanceOf(sourceAcct), big.NewInt(1))
	_, err := l.Transfer(sourceAcct, aliceAcct, drain)
	require.NoError(t, err)

	leaf := tree.Leaves()[1]
	proof, err := tree.Proof(1)
	require.NoError(t, err)

	_, err = d.Claim(leaf, proof)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.False(t, d.IsClaimed(leaf.Index))

	// Refund the source and the same claim succeeds.
	_, err = l.Transfer(aliceAcct, sourceAcct, drain)
	require.NoError(t, err)

	_, err = d.Claim(leaf, proof)
	require.NoError(t, err)
	assert.True(t, d.IsClaimed(leaf.Index))
}
