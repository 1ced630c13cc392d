package claims

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
	"github.com/sooncult/soon-coin/internal/ledger"
)

// Distributor pays verified allocation claims out of a funded distribution
// account on the ledger. Each claim index is payable once. The distribution
// account should be fee-exempt so claimants receive the exact allocation.
type Distributor struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger
	source  common.Address
	root    common.Hash
	claimed map[uint64]bool
	logger  *slog.Logger
}

// NewDistributor binds a distributor to a ledger, the funded source account
// and the allocation root.
func NewDistributor(l *ledger.Ledger, source common.Address, root common.Hash, logger *slog.Logger) (*Distributor, error) {
	if l == nil {
		return nil, fmt.Errorf("claims: nil ledger: %w", domain.ErrInvalidParameter)
	}
	if source == (common.Address{}) {
		return nil, fmt.Errorf("claims: zero source account: %w", domain.ErrInvalidAddress)
	}
	if root == (common.Hash{}) {
		return nil, fmt.Errorf("claims: zero allocation root: %w", domain.ErrInvalidParameter)
	}
	return &Distributor{
		ledger:  l,
		source:  source,
		root:    root,
		claimed: make(map[uint64]bool),
		logger:  logger.With(slog.String("component", "claims")),
	}, nil
}

// Root returns the allocation root claims are verified against.
func (d *Distributor) Root() common.Hash {
	return d.root
}

// IsClaimed reports whether a claim index has already been paid.
func (d *Distributor) IsClaimed(index uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claimed[index]
}

// Claim verifies the proof and pays the allocation to the leaf's account.
// The index is marked claimed only after the payout succeeds, so a claimant
// whose payout fails (an underfunded source, say) can retry.
func (d *Distributor) Claim(leaf Leaf, proof []common.Hash) (domain.TransferEvent, error) {
	if leaf.Amount == nil || leaf.Amount.Sign() <= 0 {
		return domain.TransferEvent{}, fmt.Errorf("claims: claim %d: %w", leaf.Index, domain.ErrInvalidAmount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.claimed[leaf.Index] {
		return domain.TransferEvent{}, fmt.Errorf("claims: claim %d: %w", leaf.Index, domain.ErrAlreadyClaimed)
	}
	if !VerifyProof(d.root, leaf, proof) {
		return domain.TransferEvent{}, fmt.Errorf("claims: claim %d for %s: %w", leaf.Index, leaf.Account.Hex(), domain.ErrInvalidProof)
	}

	evt, err := d.ledger.Transfer(d.source, leaf.Account, new(big.Int).Set(leaf.Amount))
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("claims: pay claim %d: %w", leaf.Index, err)
	}
	d.claimed[leaf.Index] = true

	d.logger.Info("claim paid",
		slog.Uint64("index", leaf.Index),
		slog.String("account", leaf.Account.Hex()),
		slog.String("amount", leaf.Amount.String()),
	)
	return evt, nil
}
