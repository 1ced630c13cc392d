package amm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
)

// SimpleToken is a plain in-memory fungible token used for the paired asset
// (and the chain's base currency) in simulation and tests. It has none of
// the ledger's tax mechanics.
type SimpleToken struct {
	mu       sync.Mutex
	addr     common.Address
	balances map[common.Address]*big.Int
}

// NewSimpleToken creates a token with the given identity and no holders.
func NewSimpleToken(addr common.Address) *SimpleToken {
	return &SimpleToken{
		addr:     addr,
		balances: make(map[common.Address]*big.Int),
	}
}

// Address returns the token's identity.
func (t *SimpleToken) Address() common.Address {
	return t.addr
}

// Mint credits freshly created units to a holder. Simulation faucet.
func (t *SimpleToken) Mint(holder common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creditLocked(holder, amount)
}

// BalanceOf reads a holder's balance.
func (t *SimpleToken) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Transfer moves units between holders.
func (t *SimpleToken) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amm: token %s: %w", t.addr.Hex(), domain.ErrInvalidAmount)
	}
	b, ok := t.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("amm: token %s transfer from %s: %w", t.addr.Hex(), from.Hex(), domain.ErrInsufficientBalance)
	}
	b.Sub(b, amount)
	t.creditLocked(to, amount)
	return nil
}

func (t *SimpleToken) creditLocked(holder common.Address, amount *big.Int) {
	if b, ok := t.balances[holder]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[holder] = new(big.Int).Set(amount)
}

var _ domain.Token = (*SimpleToken)(nil)
