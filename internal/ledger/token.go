package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
)

// Token adapts the ledger to the domain.Token port so the rebalancer can
// treat the native token like any other fungible asset. The token address
// is the ledger's external identity (the deployed token contract address in
// full wiring, any stable label in simulation).
type Token struct {
	ledger *Ledger
	addr   common.Address
}

// NewToken wraps the ledger as a domain.Token with the given identity.
func NewToken(l *Ledger, addr common.Address) *Token {
	return &Token{ledger: l, addr: addr}
}

// Address returns the token's external identity.
func (t *Token) Address() common.Address {
	return t.addr
}

// BalanceOf reads a holder's true-token balance.
func (t *Token) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	return t.ledger.BalanceOf(holder), nil
}

// Transfer moves tokens through the ledger's ordinary transfer path. Tax
// applies unless either side is fee-exempt, so the rebalancer treasury and
// the pool account should be fee-excluded at wiring time.
func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	_, err := t.ledger.Transfer(from, to, amount)
	return err
}

var _ domain.Token = (*Token)(nil)
