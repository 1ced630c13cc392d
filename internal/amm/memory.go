// Package amm provides implementations of the domain.PositionManager port:
// an on-chain adapter for a NonfungiblePositionManager-style service, and an
// in-process simulator for tests and the sim run mode. Real pool math (swap
// pricing, fee-tier mechanics) is deliberately out of scope; the simulator
// only models the position bookkeeping the rebalancer depends on.
package amm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
)

type memPosition struct {
	owner     common.Address
	tickLower int32
	tickUpper int32
	liquidity *big.Int
	amount0   *big.Int
	amount1   *big.Int
	owed0     *big.Int
	owed1     *big.Int
}

// Memory is an in-process position manager. Deposited funds sit in a pool
// account on the underlying tokens; fees are injected by AccrueFees. Every
// call applies fully or fails without effect, matching the per-call
// atomicity the rebalancer assumes of the external service.
type Memory struct {
	mu         sync.Mutex
	token0     domain.Token
	token1     domain.Token
	pool       common.Address
	nextHandle uint64
	positions  map[uint64]*memPosition
}

// NewMemory creates a simulator over a canonically ordered token pair. The
// pool address is the account that holds deposited liquidity on both tokens.
func NewMemory(token0, token1 domain.Token, pool common.Address) (*Memory, error) {
	if bytes.Compare(token0.Address().Bytes(), token1.Address().Bytes()) >= 0 {
		return nil, fmt.Errorf("amm: tokens not in canonical order: %w", domain.ErrInvalidParameter)
	}
	return &Memory{
		token0:     token0,
		token1:     token1,
		pool:       pool,
		nextHandle: 1,
		positions:  make(map[uint64]*memPosition),
	}, nil
}

// Mint opens a position over the given range, pulling the desired amounts
// from the recipient into the pool. Liquidity is modeled as the sum of the
// deposited amounts; the rebalancer never interprets the figure.
func (m *Memory) Mint(ctx context.Context, p domain.MintParams) (domain.MintResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Token0 != m.token0.Address() || p.Token1 != m.token1.Address() {
		return domain.MintResult{}, fmt.Errorf("amm: mint: unknown pair: %w", domain.ErrInvalidParameter)
	}
	if p.TickLower >= p.TickUpper {
		return domain.MintResult{}, fmt.Errorf("amm: mint: empty range [%d, %d): %w", p.TickLower, p.TickUpper, domain.ErrInvalidParameter)
	}
	if p.Desired0 == nil || p.Desired1 == nil || (p.Desired0.Sign() <= 0 && p.Desired1.Sign() <= 0) {
		return domain.MintResult{}, fmt.Errorf("amm: mint: %w", domain.ErrInvalidAmounts)
	}

	if err := m.pullLocked(ctx, p.Recipient, p.Desired0, p.Desired1); err != nil {
		return domain.MintResult{}, err
	}

	handle := m.nextHandle
	m.nextHandle++
	m.positions[handle] = &memPosition{
		owner:     p.Recipient,
		tickLower: p.TickLower,
		tickUpper: p.TickUpper,
		liquidity: new(big.Int).Add(p.Desired0, p.Desired1),
		amount0:   new(big.Int).Set(p.Desired0),
		amount1:   new(big.Int).Set(p.Desired1),
		owed0:     new(big.Int),
		owed1:     new(big.Int),
	}

	return domain.MintResult{
		Handle:    handle,
		Liquidity: new(big.Int).Add(p.Desired0, p.Desired1),
		Amount0:   new(big.Int).Set(p.Desired0),
		Amount1:   new(big.Int).Set(p.Desired1),
	}, nil
}

// IncreaseLiquidity adds funds to an existing position.
func (m *Memory) IncreaseLiquidity(ctx context.Context, handle uint64, desired0, desired1 *big.Int) (liquidity, amount0, amount1 *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[handle]
	if !ok {
		return nil, nil, nil, fmt.Errorf("amm: increase %d: %w", handle, domain.ErrNotFound)
	}
	if desired0 == nil || desired1 == nil {
		return nil, nil, nil, fmt.Errorf("amm: increase: %w", domain.ErrInvalidAmounts)
	}

	if err := m.pullLocked(ctx, pos.owner, desired0, desired1); err != nil {
		return nil, nil, nil, err
	}

	added := new(big.Int).Add(desired0, desired1)
	pos.liquidity.Add(pos.liquidity, added)
	pos.amount0.Add(pos.amount0, desired0)
	pos.amount1.Add(pos.amount1, desired1)

	return new(big.Int).Set(pos.liquidity), new(big.Int).Set(desired0), new(big.Int).Set(desired1), nil
}

// DecreaseLiquidity withdraws liquidity from a position. The proportional
// token amounts become owed and are paid out by a subsequent Collect.
func (m *Memory) DecreaseLiquidity(_ context.Context, handle uint64, liquidity *big.Int) (amount0, amount1 *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[handle]
	if !ok {
		return nil, nil, fmt.Errorf("amm: decrease %d: %w", handle, domain.ErrNotFound)
	}
	if liquidity == nil || liquidity.Sign() <= 0 || liquidity.Cmp(pos.liquidity) > 0 {
		return nil, nil, fmt.Errorf("amm: decrease %d: %w", handle, domain.ErrInvalidAmounts)
	}

	out0 := new(big.Int).Mul(pos.amount0, liquidity)
	out0.Quo(out0, pos.liquidity)
	out1 := new(big.Int).Mul(pos.amount1, liquidity)
	out1.Quo(out1, pos.liquidity)

	pos.amount0.Sub(pos.amount0, out0)
	pos.amount1.Sub(pos.amount1, out1)
	pos.liquidity.Sub(pos.liquidity, liquidity)
	pos.owed0.Add(pos.owed0, out0)
	pos.owed1.Add(pos.owed1, out1)

	return new(big.Int).Set(out0), new(big.Int).Set(out1), nil
}

// Collect pays out owed amounts (withdrawn principal plus accrued fees) up
// to the given maxima, transferring them from the pool to the recipient.
func (m *Memory) Collect(ctx context.Context, handle uint64, recipient common.Address, max0, max1 *big.Int) (amount0, amount1 *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[handle]
	if !ok {
		return nil, nil, fmt.Errorf("amm: collect %d: %w", handle, domain.ErrNotFound)
	}

	pay0 := minBig(pos.owed0, max0)
	pay1 := minBig(pos.owed1, max1)

	if pay0.Sign() > 0 {
		if err := m.token0.Transfer(ctx, m.pool, recipient, pay0); err != nil {
			return nil, nil, fmt.Errorf("amm: collect %d: %w", handle, err)
		}
	}
	if pay1.Sign() > 0 {
		if err := m.token1.Transfer(ctx, m.pool, recipient, pay1); err != nil {
			// Undo the first payout so the call has no partial effect.
			if pay0.Sign() > 0 {
				_ = m.token0.Transfer(ctx, recipient, m.pool, pay0)
			}
			return nil, nil, fmt.Errorf("amm: collect %d: %w", handle, err)
		}
	}

	pos.owed0.Sub(pos.owed0, pay0)
	pos.owed1.Sub(pos.owed1, pay1)
	return pay0, pay1, nil
}

// Position returns the externally readable state of a position.
func (m *Memory) Position(_ context.Context, handle uint64) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[handle]
	if !ok {
		return domain.Position{}, fmt.Errorf("amm: position %d: %w", handle, domain.ErrNotFound)
	}
	return domain.Position{
		Handle:    handle,
		TickLower: pos.tickLower,
		TickUpper: pos.tickUpper,
		Liquidity: new(big.Int).Set(pos.liquidity),
	}, nil
}

// AccrueFees simulates trading fees: funds move from a trader account into
// the pool and become owed to the position.
func (m *Memory) AccrueFees(ctx context.Context, handle uint64, trader common.Address, fee0, fee1 *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[handle]
	if !ok {
		return fmt.Errorf("amm: accrue %d: %w", handle, domain.ErrNotFound)
	}
	if fee0 != nil && fee0.Sign() > 0 {
		if err := m.token0.Transfer(ctx, trader, m.pool, fee0); err != nil {
			return fmt.Errorf("amm: accrue %d: %w", handle, err)
		}
		pos.owed0.Add(pos.owed0, fee0)
	}
	if fee1 != nil && fee1.Sign() > 0 {
		if err := m.token1.Transfer(ctx, trader, m.pool, fee1); err != nil {
			return fmt.Errorf("amm: accrue %d: %w", handle, err)
		}
		pos.owed1.Add(pos.owed1, fee1)
	}
	return nil
}

// pullLocked moves both desired amounts from the depositor into the pool,
// refunding the first leg if the second fails.
func (m *Memory) pullLocked(ctx context.Context, from common.Address, desired0, desired1 *big.Int) error {
	if desired0.Sign() > 0 {
		if err := m.token0.Transfer(ctx, from, m.pool, desired0); err != nil {
			return fmt.Errorf("amm: deposit: %w", err)
		}
	}
	if desired1.Sign() > 0 {
		if err := m.token1.Transfer(ctx, from, m.pool, desired1); err != nil {
			if desired0.Sign() > 0 {
				_ = m.token0.Transfer(ctx, m.pool, from, desired0)
			}
			return fmt.Errorf("amm: deposit: %w", err)
		}
	}
	return nil
}

func minBig(a, b *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	if b == nil || a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

var _ domain.PositionManager = (*Memory)(nil)
