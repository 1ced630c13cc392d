package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AccountInfo is a read-only view of a single ledger account.
type AccountInfo struct {
	Address      common.Address `json:"address"`
	Balance      *big.Int       `json:"balance"`
	FeeExempt    bool           `json:"fee_exempt"`
	RewardExempt bool           `json:"reward_exempt"`
}

// LedgerSnapshot captures the full observable ledger state at one point in
// time. It is what the snapshot archiver exports to object storage.
type LedgerSnapshot struct {
	TakenAt             time.Time     `json:"taken_at"`
	TrueTotalSupply     *big.Int      `json:"true_total_supply"`
	ReflectedTotalSupply *big.Int     `json:"reflected_total_supply"`
	TaxConfig           TaxConfig     `json:"tax_config"`
	LiquidityRecipient  common.Address `json:"liquidity_recipient"`
	Holders             []AccountInfo `json:"holders"`
}
