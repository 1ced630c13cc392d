// Package ledger implements the reflective tax ledger: balance accounting
// with dual balance representations, a rate-based reflection reward
// mechanism, permanent burn, and a liquidity-treasury tax split.
package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
)

// maxUint256 bounds the reflected supply space. The initial reflected total
// is the largest value below 2^256 that divides evenly by the true supply,
// so the genesis rate is exact.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// account is the per-address ledger record. Exactly one of reflected /
// trueUnits is live at a time: reflected while the account is
// reward-eligible, trueUnits while it is reward-excluded.
type account struct {
	reflected    *big.Int
	trueUnits    *big.Int
	feeExempt    bool
	rewardExempt bool
}

func newAccount() *account {
	return &account{reflected: new(big.Int), trueUnits: new(big.Int)}
}

func (a *account) clone() *account {
	return &account{
		reflected:    new(big.Int).Set(a.reflected),
		trueUnits:    new(big.Int).Set(a.trueUnits),
		feeExempt:    a.feeExempt,
		rewardExempt: a.rewardExempt,
	}
}

// Ledger owns all balance state and tax configuration. Every operation runs
// under a single mutex and is atomic: multi-step mutations are staged on
// copies and committed only when every step has succeeded.
type Ledger struct {
	mu sync.Mutex

	owner              common.Address // zero after renounce
	trueTotal          *big.Int
	reflectedTotal     *big.Int
	tax                domain.TaxConfig
	liquidityRecipient common.Address // zero = unset, liquidity tax fails closed

	accounts map[common.Address]*account

	// rewardExcluded tracks exclusion membership for enumeration only.
	// The rate is a flat reflectedTotal/trueTotal ratio and is never
	// renormalized for excluded holders.
	rewardExcluded map[common.Address]struct{}

	taxedTransfers uint64
}

// New creates the ledger at genesis. The full supply is seeded directly
// into the genesis holder's reflected representation, so BalanceOf(genesis)
// equals supply immediately. The burn sink starts reward-excluded with a
// zero balance.
func New(owner, genesis common.Address, supply *big.Int, tax domain.TaxConfig) (*Ledger, error) {
	if genesis == (common.Address{}) {
		return nil, fmt.Errorf("ledger: genesis holder: %w", domain.ErrInvalidAddress)
	}
	if supply == nil || supply.Sign() <= 0 {
		return nil, fmt.Errorf("ledger: genesis supply: %w", domain.ErrInvalidAmount)
	}
	if err := tax.Validate(); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	reflected := new(big.Int).Sub(maxUint256, new(big.Int).Mod(maxUint256, supply))

	l := &Ledger{
		owner:          owner,
		trueTotal:      new(big.Int).Set(supply),
		reflectedTotal: reflected,
		tax:            tax,
		accounts:       make(map[common.Address]*account),
		rewardExcluded: make(map[common.Address]struct{}),
	}

	g := newAccount()
	g.reflected.Set(reflected)
	l.accounts[genesis] = g

	sink := newAccount()
	sink.rewardExempt = true
	l.accounts[domain.BurnSink] = sink
	l.rewardExcluded[domain.BurnSink] = struct{}{}

	return l, nil
}

// rate returns reflectedTotal / trueTotal. Non-increasing except when a
// burn shrinks the true total.
func (l *Ledger) rateLocked() *big.Int {
	return new(big.Int).Quo(l.reflectedTotal, l.trueTotal)
}

func (l *Ledger) balanceOfLocked(addr common.Address) *big.Int {
	a, ok := l.accounts[addr]
	if !ok {
		return new(big.Int)
	}
	if a.rewardExempt {
		return new(big.Int).Set(a.trueUnits)
	}
	return new(big.Int).Quo(a.reflected, l.rateLocked())
}

// BalanceOf returns the true-token balance of an account. Pure.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOfLocked(addr)
}

// stage holds tentative copies of every piece of state a transfer touches.
// Nothing in the ledger changes until commit.
type stage struct {
	l              *Ledger
	rate           *big.Int // rate captured at entry; all unit math uses it
	trueTotal      *big.Int
	reflectedTotal *big.Int
	accounts       map[common.Address]*account
}

func (l *Ledger) newStage() *stage {
	return &stage{
		l:              l,
		rate:           l.rateLocked(),
		trueTotal:      new(big.Int).Set(l.trueTotal),
		reflectedTotal: new(big.Int).Set(l.reflectedTotal),
		accounts:       make(map[common.Address]*account),
	}
}

func (s *stage) account(addr common.Address) *account {
	if a, ok := s.accounts[addr]; ok {
		return a
	}
	var a *account
	if orig, ok := s.l.accounts[addr]; ok {
		a = orig.clone()
	} else {
		a = newAccount()
	}
	s.accounts[addr] = a
	return a
}

// debit removes amount true tokens from an account's live representation.
// The caller has already verified the balance covers the amount.
func (s *stage) debit(addr common.Address, amount *big.Int) {
	a := s.account(addr)
	if a.rewardExempt {
		a.trueUnits.Sub(a.trueUnits, amount)
		return
	}
	a.reflected.Sub(a.reflected, new(big.Int).Mul(amount, s.rate))
}

// credit adds amount true tokens to an account's live representation.
func (s *stage) credit(addr common.Address, amount *big.Int) {
	a := s.account(addr)
	if a.rewardExempt {
		a.trueUnits.Add(a.trueUnits, amount)
		return
	}
	a.reflected.Add(a.reflected, new(big.Int).Mul(amount, s.rate))
}

// reflect removes reflectionShare worth of reflected units from the
// reflected total. This is the entire reward mechanism: shrinking the
// reflected total raises the rate, which raises every reward-eligible
// holder's derived balance in proportion to its reflected units.
func (s *stage) reflect(reflectionShare *big.Int) {
	s.reflectedTotal.Sub(s.reflectedTotal, new(big.Int).Mul(s.rate, reflectionShare))
}

// burn permanently removes burnShare from the true total. No account is
// credited.
func (s *stage) burn(burnShare *big.Int) {
	s.trueTotal.Sub(s.trueTotal, burnShare)
}

func (s *stage) commit() {
	s.l.trueTotal = s.trueTotal
	s.l.reflectedTotal = s.reflectedTotal
	for addr, a := range s.accounts {
		s.l.accounts[addr] = a
	}
}

// Transfer moves amount true tokens from one account to another, applying
// the configured tax unless either side is fee-exempt. The whole operation
// is atomic; a failure at any step leaves the ledger untouched.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) (domain.TransferEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return domain.TransferEvent{}, fmt.Errorf("ledger: transfer: %w", domain.ErrInvalidAmount)
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return domain.TransferEvent{}, fmt.Errorf("ledger: transfer: %w", domain.ErrInvalidAddress)
	}
	if amount.Cmp(l.balanceOfLocked(from)) > 0 {
		return domain.TransferEvent{}, fmt.Errorf("ledger: transfer %s from %s: %w",
			amount, from.Hex(), domain.ErrInsufficientBalance)
	}

	evt := domain.TransferEvent{
		ID:              newEventID(),
		From:            from,
		To:              to,
		Amount:          new(big.Int).Set(amount),
		Tax:             new(big.Int),
		ReflectionShare: new(big.Int),
		BurnShare:       new(big.Int),
		LiquidityShare:  new(big.Int),
		Timestamp:       now(),
	}

	fromExempt := l.accounts[from] != nil && l.accounts[from].feeExempt
	toExempt := l.accounts[to] != nil && l.accounts[to].feeExempt

	if fromExempt || toExempt || l.tax.Disabled() {
		st := l.newStage()
		st.debit(from, amount)
		st.credit(to, amount)
		st.commit()

		evt.Net = new(big.Int).Set(amount)
		evt.FeeExempt = true
		return evt, nil
	}

	bips := big.NewInt(domain.BipsDenominator)
	total := new(big.Int).SetUint64(uint64(l.tax.TotalBips))

	tax := new(big.Int).Mul(amount, total)
	tax.Quo(tax, bips)
	net := new(big.Int).Sub(amount, tax)

	share := func(componentBips uint32) *big.Int {
		s := new(big.Int).Mul(tax, new(big.Int).SetUint64(uint64(componentBips)))
		return s.Quo(s, total)
	}
	reflectionShare := share(l.tax.ReflectionBips)
	burnShare := share(l.tax.BurnBips)
	liquidityShare := share(l.tax.LiquidityBips)
	// The split remainder (at most 2 units) is dropped: neither credited
	// nor reflected.

	if liquidityShare.Sign() > 0 && l.liquidityRecipient == (common.Address{}) {
		return domain.TransferEvent{}, fmt.Errorf("ledger: transfer: %w", domain.ErrLiquidityRecipientUnset)
	}

	st := l.newStage()
	st.debit(from, amount)
	st.reflect(reflectionShare)
	st.burn(burnShare)
	if liquidityShare.Sign() > 0 {
		st.credit(l.liquidityRecipient, liquidityShare)
	}
	st.credit(to, net)
	st.commit()

	l.taxedTransfers++

	evt.Net = net
	evt.Tax = tax
	evt.ReflectionShare = reflectionShare
	evt.BurnShare = burnShare
	evt.LiquidityShare = liquidityShare
	return evt, nil
}

// SetRewardExclusion toggles an account's reward exclusion, converting its
// balance between the two representations at the current rate. The
// conversion is lossless up to integer rounding.
func (l *Ledger) SetRewardExclusion(caller, addr common.Address, excluded bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerLocked(caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("ledger: reward exclusion: %w", domain.ErrInvalidAddress)
	}

	a, ok := l.accounts[addr]
	if !ok {
		a = newAccount()
		l.accounts[addr] = a
	}
	if a.rewardExempt == excluded {
		return fmt.Errorf("ledger: reward exclusion for %s: %w", addr.Hex(), domain.ErrExclusionUnchanged)
	}

	if excluded {
		// Capture the derived balance before flipping the flag.
		a.trueUnits = l.balanceOfLocked(addr)
		a.reflected = new(big.Int)
		a.rewardExempt = true
		l.rewardExcluded[addr] = struct{}{}
		return nil
	}

	a.reflected = new(big.Int).Mul(a.trueUnits, l.rateLocked())
	a.trueUnits = new(big.Int)
	a.rewardExempt = false
	delete(l.rewardExcluded, addr)
	return nil
}

// SetFeeExclusion toggles an account's exemption from transfer tax.
func (l *Ledger) SetFeeExclusion(caller, addr common.Address, exempt bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerLocked(caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return fmt.Errorf("ledger: fee exclusion: %w", domain.ErrInvalidAddress)
	}

	a, ok := l.accounts[addr]
	if !ok {
		a = newAccount()
		l.accounts[addr] = a
	}
	if a.feeExempt == exempt {
		return fmt.Errorf("ledger: fee exclusion for %s: %w", addr.Hex(), domain.ErrExclusionUnchanged)
	}
	a.feeExempt = exempt
	return nil
}

// SetLiquidityRecipient points the liquidity tax share at a new recipient.
// Setting the zero address unsets it, after which the liquidity tax fails
// closed.
func (l *Ledger) SetLiquidityRecipient(caller, addr common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerLocked(caller); err != nil {
		return err
	}
	l.liquidityRecipient = addr
	return nil
}

// UpdateTaxConfig replaces the tax configuration after validating the
// component-sum invariant and the 10% cap.
func (l *Ledger) UpdateTaxConfig(caller common.Address, cfg domain.TaxConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerLocked(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	l.tax = cfg
	return nil
}

// TransferOwnership hands the admin identity to a new address.
func (l *Ledger) TransferOwnership(caller, newOwner common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerLocked(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("ledger: transfer ownership: %w", domain.ErrInvalidAddress)
	}
	l.owner = newOwner
	return nil
}

// RenounceOwnership permanently disables every admin-gated operation.
// Transfer and BalanceOf remain open to everyone.
func (l *Ledger) RenounceOwnership(caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwnerLocked(caller); err != nil {
		return err
	}
	l.owner = common.Address{}
	return nil
}

func (l *Ledger) requireOwnerLocked(caller common.Address) error {
	if l.owner == (common.Address{}) || caller != l.owner {
		return fmt.Errorf("ledger: caller %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// Owner returns the current admin identity; zero after renounce.
func (l *Ledger) Owner() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// TrueTotalSupply returns the circulating supply.
func (l *Ledger) TrueTotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.trueTotal)
}

// ReflectedTotalSupply returns the auxiliary reflected supply.
func (l *Ledger) ReflectedTotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.reflectedTotal)
}

// TaxConfig returns the active tax configuration.
func (l *Ledger) TaxConfig() domain.TaxConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tax
}

// LiquidityRecipient returns the configured liquidity tax recipient.
func (l *Ledger) LiquidityRecipient() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liquidityRecipient
}

// Account returns a read-only view of one account.
func (l *Ledger) Account(addr common.Address) domain.AccountInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := domain.AccountInfo{Address: addr, Balance: l.balanceOfLocked(addr)}
	if a, ok := l.accounts[addr]; ok {
		info.FeeExempt = a.feeExempt
		info.RewardExempt = a.rewardExempt
	}
	return info
}

// RewardExcluded returns the enumerable reward-exclusion set, sorted by
// address for stable output.
func (l *Ledger) RewardExcluded() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]common.Address, 0, len(l.rewardExcluded))
	for addr := range l.rewardExcluded {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out
}

// TaxedTransfers returns how many taxed transfers have committed. The
// accumulated rounding dust is bounded by twice this count.
func (l *Ledger) TaxedTransfers() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taxedTransfers
}

// Snapshot captures the full observable ledger state: totals, config, and
// every known holder with its derived balance.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := domain.LedgerSnapshot{
		TakenAt:              now(),
		TrueTotalSupply:      new(big.Int).Set(l.trueTotal),
		ReflectedTotalSupply: new(big.Int).Set(l.reflectedTotal),
		TaxConfig:            l.tax,
		LiquidityRecipient:   l.liquidityRecipient,
	}

	snap.Holders = make([]domain.AccountInfo, 0, len(l.accounts))
	for addr, a := range l.accounts {
		snap.Holders = append(snap.Holders, domain.AccountInfo{
			Address:      addr,
			Balance:      l.balanceOfLocked(addr),
			FeeExempt:    a.feeExempt,
			RewardExempt: a.rewardExempt,
		})
	}
	sort.Slice(snap.Holders, func(i, j int) bool {
		return snap.Holders[i].Address.Cmp(snap.Holders[j].Address) < 0
	})
	return snap
}
