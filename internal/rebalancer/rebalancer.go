// Package rebalancer maintains a single concentrated-liquidity position,
// collecting its trading fees and migrating it when the pool's
// time-weighted average price drifts out of the recorded range.
package rebalancer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/sooncult/soon-coin/internal/domain"
)

// maxUint128 is the max-amount argument passed to Collect so every owed
// unit is always claimed.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Config carries the construction-time wiring and tunables.
type Config struct {
	Owner    common.Address // admin identity; zero disables admin ops
	Treasury common.Address // account holding the working capital

	Manager domain.PositionManager
	Oracle  domain.Oracle

	Native domain.Token // the taxed token this engine belongs to
	Paired domain.Token // the asset it trades against
	Base   domain.Token // optional: chain base currency, for rescue only

	FeeTier        uint32
	HalfWidthTicks int32
	TwapWindowSec  uint32
}

// Rebalancer owns one trading position's lifecycle. State transitions are
// Uninitialized → Active (terminal); the lock latch is an orthogonal,
// one-way flag that freezes parameters and rescue but never migration.
type Rebalancer struct {
	// entry serializes the state-mutating entry points for their full
	// duration; TryLock turns a reentrant call into an error instead of
	// a deadlock.
	entry sync.Mutex
	mu    sync.Mutex

	logger *slog.Logger

	owner    common.Address
	treasury common.Address
	manager  domain.PositionManager
	oracle   domain.Oracle
	native   domain.Token
	paired   domain.Token
	base     domain.Token
	feeTier  uint32

	// Canonical pair ordering, fixed at construction.
	token0    domain.Token
	token1    domain.Token
	nativeIs0 bool

	handle     uint64 // 0 = uninitialized
	tickLower  int32
	tickUpper  int32
	halfWidth  int32
	twapWindow uint32
	locked     bool

	// pending0/pending1 hold the re-mint amounts of a migration whose mint
	// leg failed after the principal was already withdrawn to the treasury.
	// The next migration attempt deploys them again. Nil when no mint is
	// outstanding.
	pending0 *big.Int
	pending1 *big.Int
}

// New wires a rebalancer. The token pair is put into canonical address
// order once here; every position-manager call uses that ordering.
func New(cfg Config, logger *slog.Logger) (*Rebalancer, error) {
	if cfg.Manager == nil || cfg.Oracle == nil || cfg.Native == nil || cfg.Paired == nil {
		return nil, fmt.Errorf("rebalancer: missing dependency: %w", domain.ErrInvalidParameter)
	}
	if cfg.HalfWidthTicks <= 0 || cfg.HalfWidthTicks >= MaxHalfWidthTicks {
		return nil, fmt.Errorf("rebalancer: half width %d: %w", cfg.HalfWidthTicks, domain.ErrInvalidParameter)
	}
	if cfg.TwapWindowSec < MinTwapWindowSec || cfg.TwapWindowSec > MaxTwapWindowSec {
		return nil, fmt.Errorf("rebalancer: twap window %d: %w", cfg.TwapWindowSec, domain.ErrInvalidParameter)
	}

	r := &Rebalancer{
		logger:     logger.With(slog.String("component", "rebalancer")),
		owner:      cfg.Owner,
		treasury:   cfg.Treasury,
		manager:    cfg.Manager,
		oracle:     cfg.Oracle,
		native:     cfg.Native,
		paired:     cfg.Paired,
		base:       cfg.Base,
		feeTier:    cfg.FeeTier,
		halfWidth:  cfg.HalfWidthTicks,
		twapWindow: cfg.TwapWindowSec,
	}

	if bytes.Compare(cfg.Native.Address().Bytes(), cfg.Paired.Address().Bytes()) < 0 {
		r.token0, r.token1, r.nativeIs0 = cfg.Native, cfg.Paired, true
	} else {
		r.token0, r.token1, r.nativeIs0 = cfg.Paired, cfg.Native, false
	}
	return r, nil
}

// orient maps (native, paired) amounts onto (token0, token1) order.
func (r *Rebalancer) orient(nativeAmt, pairedAmt *big.Int) (amt0, amt1 *big.Int) {
	if r.nativeIs0 {
		return nativeAmt, pairedAmt
	}
	return pairedAmt, nativeAmt
}

// InitializePosition mints the first position symmetric around targetTick.
// Admin-only and callable exactly once.
func (r *Rebalancer) InitializePosition(ctx context.Context, caller common.Address, amountNative, amountPaired *big.Int, targetTick int32) (domain.RebalanceEvent, error) {
	if !r.entry.TryLock() {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: initialize: %w", domain.ErrReentrantCall)
	}
	defer r.entry.Unlock()

	if err := r.requireOwner(caller); err != nil {
		return domain.RebalanceEvent{}, err
	}
	if r.currentHandle() != 0 {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: initialize: %w", domain.ErrAlreadyInitialized)
	}
	if amountNative == nil || amountPaired == nil || amountNative.Sign() <= 0 || amountPaired.Sign() <= 0 {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: initialize: %w", domain.ErrInvalidAmounts)
	}

	if err := r.requireFunds(ctx, amountNative, amountPaired); err != nil {
		return domain.RebalanceEvent{}, err
	}

	r.mu.Lock()
	halfWidth := r.halfWidth
	r.mu.Unlock()
	lower := targetTick - halfWidth
	upper := targetTick + halfWidth

	amt0, amt1 := r.orient(amountNative, amountPaired)
	res, err := r.manager.Mint(ctx, domain.MintParams{
		Token0:    r.token0.Address(),
		Token1:    r.token1.Address(),
		Fee:       r.feeTier,
		TickLower: lower,
		TickUpper: upper,
		Desired0:  amt0,
		Desired1:  amt1,
		Recipient: r.treasury,
	})
	if err != nil {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: initialize mint: %w", err)
	}

	r.mu.Lock()
	r.handle = res.Handle
	r.tickLower = lower
	r.tickUpper = upper
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "position initialized",
		slog.Uint64("handle", res.Handle),
		slog.Int("tick_lower", int(lower)),
		slog.Int("tick_upper", int(upper)),
	)

	return domain.RebalanceEvent{
		ID:        uuid.NewString(),
		Kind:      domain.RebalanceKindInit,
		Handle:    res.Handle,
		NewLower:  lower,
		NewUpper:  upper,
		OracleOK:  true,
		Fees0:     new(big.Int),
		Fees1:     new(big.Int),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Rebalance collects owed fees and, when the TWAP-derived candidate range
// no longer overlaps the current one, migrates the position. Callable by
// anyone once the position is active. An oracle failure aborts migration
// but keeps the fees already collected.
func (r *Rebalancer) Rebalance(ctx context.Context) (domain.RebalanceEvent, error) {
	if !r.entry.TryLock() {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: rebalance: %w", domain.ErrReentrantCall)
	}
	defer r.entry.Unlock()

	handle := r.currentHandle()
	if handle == 0 {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: rebalance: %w", domain.ErrNotInitialized)
	}

	r.mu.Lock()
	oldLower, oldUpper := r.tickLower, r.tickUpper
	halfWidth, window := r.halfWidth, r.twapWindow
	r.mu.Unlock()

	evt := domain.RebalanceEvent{
		ID:        uuid.NewString(),
		Kind:      domain.RebalanceKindCollect,
		Handle:    handle,
		OldLower:  oldLower,
		OldUpper:  oldUpper,
		NewLower:  oldLower,
		NewUpper:  oldUpper,
		Timestamp: time.Now().UTC(),
	}

	// Step 1: always collect fees, regardless of what follows.
	fees0, fees1, err := r.manager.Collect(ctx, handle, r.treasury, maxUint128, maxUint128)
	if err != nil {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: collect fees: %w", err)
	}
	evt.Fees0, evt.Fees1 = fees0, fees1

	pos, err := r.manager.Position(ctx, handle)
	if err != nil {
		return domain.RebalanceEvent{}, fmt.Errorf("rebalancer: read position: %w", err)
	}

	// Step 3: oracle failure is soft. The fees stay collected and no
	// position mutation happens this call.
	twap, err := r.twapTick(ctx, window)
	if err != nil {
		r.logger.WarnContext(ctx, "oracle unavailable, skipping migration check",
			slog.String("error", err.Error()),
		)
		return evt, nil
	}
	evt.OracleOK = true
	evt.TwapTick = int32(twap)

	candLower, candUpper := candidateRange(twap, halfWidth)
	if pos.Liquidity.Sign() > 0 && tickWithin(twap, pos.TickLower, pos.TickUpper) {
		// Price still inside the working range; migrating would be churn.
		// A drained position never parks: it means an earlier migration
		// was interrupted and the capital must be redeployed.
		return evt, nil
	}

	newHandle, err := r.migrate(ctx, handle, pos.Liquidity, candLower, candUpper, fees0, fees1)
	if err != nil {
		return domain.RebalanceEvent{}, err
	}

	r.mu.Lock()
	r.handle = newHandle
	r.tickLower = candLower
	r.tickUpper = candUpper
	r.mu.Unlock()

	evt.Kind = domain.RebalanceKindMigrate
	evt.Migrated = true
	evt.Handle = newHandle
	evt.NewLower = candLower
	evt.NewUpper = candUpper

	r.logger.InfoContext(ctx, "position migrated",
		slog.Uint64("old_handle", handle),
		slog.Uint64("new_handle", newHandle),
		slog.Int("twap_tick", int(twap)),
		slog.Int("new_lower", int(candLower)),
		slog.Int("new_upper", int(candUpper)),
	)
	return evt, nil
}

// migrate withdraws everything from the old range and re-mints over the
// candidate range with the full withdrawn amounts plus all fees collected
// in this call. The recorded range and handle are only updated by the
// caller after success; each manager call is itself all-or-nothing. A
// failure mid-sequence leaves the withdrawn capital owed to the position
// or sitting in the treasury, and the next attempt resumes from there:
// the withdraw leg is skipped on a drained position and a failed mint's
// amounts are carried over via pending0/pending1.
func (r *Rebalancer) migrate(ctx context.Context, handle uint64, liquidity *big.Int, lower, upper int32, fees0, fees1 *big.Int) (uint64, error) {
	if liquidity.Sign() > 0 {
		if _, _, err := r.manager.DecreaseLiquidity(ctx, handle, liquidity); err != nil {
			return 0, fmt.Errorf("rebalancer: withdraw liquidity: %w", err)
		}
	}

	out0, out1, err := r.manager.Collect(ctx, handle, r.treasury, maxUint128, maxUint128)
	if err != nil {
		return 0, fmt.Errorf("rebalancer: collect withdrawn: %w", err)
	}

	desired0 := new(big.Int).Add(out0, fees0)
	desired1 := new(big.Int).Add(out1, fees1)

	r.mu.Lock()
	if r.pending0 != nil {
		desired0.Add(desired0, r.pending0)
		desired1.Add(desired1, r.pending1)
	}
	r.mu.Unlock()

	res, err := r.manager.Mint(ctx, domain.MintParams{
		Token0:    r.token0.Address(),
		Token1:    r.token1.Address(),
		Fee:       r.feeTier,
		TickLower: lower,
		TickUpper: upper,
		Desired0:  desired0,
		Desired1:  desired1,
		Recipient: r.treasury,
	})
	if err != nil {
		// The capital is already in the treasury; remember the amounts so
		// the next attempt redeploys them.
		r.mu.Lock()
		r.pending0, r.pending1 = desired0, desired1
		r.mu.Unlock()
		return 0, fmt.Errorf("rebalancer: mint migrated position: %w", err)
	}

	r.mu.Lock()
	r.pending0, r.pending1 = nil, nil
	r.mu.Unlock()
	return res.Handle, nil
}

func (r *Rebalancer) twapTick(ctx context.Context, window uint32) (int64, error) {
	obs, err := r.oracle.Observe(ctx, []uint32{window, 0})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	if len(obs) != 2 {
		return 0, fmt.Errorf("%w: got %d samples, want 2", domain.ErrOracleUnavailable, len(obs))
	}
	return twapFromCumulatives(obs[0], obs[1], window), nil
}

// UpdateHalfWidth tunes the range half-width; fails once locked.
func (r *Rebalancer) UpdateHalfWidth(caller common.Address, halfWidth int32) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return fmt.Errorf("rebalancer: update half width: %w", domain.ErrLocked)
	}
	if halfWidth <= 0 || halfWidth >= MaxHalfWidthTicks {
		return fmt.Errorf("rebalancer: half width %d: %w", halfWidth, domain.ErrInvalidParameter)
	}
	r.halfWidth = halfWidth
	return nil
}

// UpdateTwapWindow tunes the averaging window; fails once locked.
func (r *Rebalancer) UpdateTwapWindow(caller common.Address, windowSec uint32) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return fmt.Errorf("rebalancer: update twap window: %w", domain.ErrLocked)
	}
	if windowSec < MinTwapWindowSec || windowSec > MaxTwapWindowSec {
		return fmt.Errorf("rebalancer: twap window %d: %w", windowSec, domain.ErrInvalidParameter)
	}
	r.twapWindow = windowSec
	return nil
}

// Lock permanently freezes parameter mutation and asset rescue. Migration
// stays callable forever.
func (r *Rebalancer) Lock(caller common.Address) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return fmt.Errorf("rebalancer: lock: %w", domain.ErrAlreadyLocked)
	}
	r.locked = true
	return nil
}

// RescueForeignAsset sweeps a stray token out of the treasury. The two
// managed tokens are protected; the whole surface dies with the lock.
func (r *Rebalancer) RescueForeignAsset(ctx context.Context, caller common.Address, token domain.Token, to common.Address, amount *big.Int) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.mu.Lock()
	locked := r.locked
	r.mu.Unlock()

	if locked {
		return fmt.Errorf("rebalancer: rescue: %w", domain.ErrLocked)
	}
	addr := token.Address()
	if addr == r.native.Address() || addr == r.paired.Address() {
		return fmt.Errorf("rebalancer: rescue %s: %w", addr.Hex(), domain.ErrProtectedAsset)
	}
	if err := token.Transfer(ctx, r.treasury, to, amount); err != nil {
		return fmt.Errorf("rebalancer: rescue %s: %w", addr.Hex(), err)
	}
	return nil
}

// RescueNativeAsset sweeps the chain's base currency out of the treasury.
func (r *Rebalancer) RescueNativeAsset(ctx context.Context, caller common.Address, to common.Address, amount *big.Int) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.mu.Lock()
	locked := r.locked
	r.mu.Unlock()

	if locked {
		return fmt.Errorf("rebalancer: rescue native: %w", domain.ErrLocked)
	}
	if r.base == nil {
		return fmt.Errorf("rebalancer: rescue native: no base currency vault: %w", domain.ErrNotFound)
	}
	if err := r.base.Transfer(ctx, r.treasury, to, amount); err != nil {
		return fmt.Errorf("rebalancer: rescue native: %w", err)
	}
	return nil
}

// TransferOwnership hands the admin identity to a new address.
func (r *Rebalancer) TransferOwnership(caller, newOwner common.Address) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("rebalancer: transfer ownership: %w", domain.ErrInvalidAddress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = newOwner
	return nil
}

// RenounceOwnership permanently disables admin operations; Rebalance stays
// open to everyone.
func (r *Rebalancer) RenounceOwnership(caller common.Address) error {
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = common.Address{}
	return nil
}

func (r *Rebalancer) requireOwner(caller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == (common.Address{}) || caller != r.owner {
		return fmt.Errorf("rebalancer: caller %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

func (r *Rebalancer) currentHandle() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

func (r *Rebalancer) requireFunds(ctx context.Context, amountNative, amountPaired *big.Int) error {
	nativeBal, err := r.native.BalanceOf(ctx, r.treasury)
	if err != nil {
		return fmt.Errorf("rebalancer: read native balance: %w", err)
	}
	pairedBal, err := r.paired.BalanceOf(ctx, r.treasury)
	if err != nil {
		return fmt.Errorf("rebalancer: read paired balance: %w", err)
	}
	if nativeBal.Cmp(amountNative) < 0 || pairedBal.Cmp(amountPaired) < 0 {
		return fmt.Errorf("rebalancer: initialize: %w", domain.ErrInsufficientFunds)
	}
	return nil
}

// Status is a read-only view of the rebalancer state.
type Status struct {
	Initialized    bool           `json:"initialized"`
	Locked         bool           `json:"locked"`
	Handle         uint64         `json:"handle"`
	TickLower      int32          `json:"tick_lower"`
	TickUpper      int32          `json:"tick_upper"`
	HalfWidthTicks int32          `json:"half_width_ticks"`
	TwapWindowSec  uint32         `json:"twap_window_seconds"`
	Owner          common.Address `json:"owner"`
	Treasury       common.Address `json:"treasury"`
}

// State returns the current status snapshot.
func (r *Rebalancer) State() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Initialized:    r.handle != 0,
		Locked:         r.locked,
		Handle:         r.handle,
		TickLower:      r.tickLower,
		TickUpper:      r.tickUpper,
		HalfWidthTicks: r.halfWidth,
		TwapWindowSec:  r.twapWindow,
		Owner:          r.owner,
		Treasury:       r.treasury,
	}
}
