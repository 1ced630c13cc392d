package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the minimal surface the rebalancer needs from a fungible token:
// a stable identity, balance queries, and transfers between holders it is
// entitled to move funds for.
type Token interface {
	Address() common.Address
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// MintParams describes a new concentrated-liquidity position. Token0/Token1
// and the desired amounts must follow the pair's canonical address ordering.
type MintParams struct {
	Token0    common.Address
	Token1    common.Address
	Fee       uint32
	TickLower int32
	TickUpper int32
	Desired0  *big.Int
	Desired1  *big.Int
	Recipient common.Address
}

// MintResult is the outcome of minting a position: the service-issued
// handle, the liquidity figure, and the token amounts actually consumed.
type MintResult struct {
	Handle    uint64
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// Position is the externally readable state of a managed position.
type Position struct {
	Handle    uint64
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// PositionManager is the opaque external AMM position-management service.
// Every call either applies fully or fails without effect; the rebalancer
// relies on that per-call atomicity.
type PositionManager interface {
	Mint(ctx context.Context, params MintParams) (MintResult, error)
	IncreaseLiquidity(ctx context.Context, handle uint64, desired0, desired1 *big.Int) (liquidity, amount0, amount1 *big.Int, err error)
	DecreaseLiquidity(ctx context.Context, handle uint64, liquidity *big.Int) (amount0, amount1 *big.Int, err error)
	Collect(ctx context.Context, handle uint64, recipient common.Address, max0, max1 *big.Int) (amount0, amount1 *big.Int, err error)
	Position(ctx context.Context, handle uint64) (Position, error)
}

// Oracle is a read-only source of cumulative tick samples. Observe returns
// one cumulative tick per requested lookback (seconds ago, newest-last);
// the TWAP tick over a window is the difference of the two cumulatives
// divided by the window length. Queries are fallible and must be treated
// as such by callers.
type Oracle interface {
	Observe(ctx context.Context, secondsAgos []uint32) ([]int64, error)
}
