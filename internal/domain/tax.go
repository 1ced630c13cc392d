// Package domain defines the core types, sentinel errors, and ports
// (interfaces) shared by the soon-coin ledger, rebalancer, and the
// surrounding persistence and transport layers.
package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// BipsDenominator is the basis-point scale: 10,000 bips = 100%.
	BipsDenominator = 10_000

	// MaxTotalTaxBips caps the total transfer tax at 10%.
	MaxTotalTaxBips = 1_000
)

// BurnSink is the fixed, reward-excluded address that burned tokens are
// conceptually sent to. Its balance never grows; burns shrink the true
// total supply instead.
var BurnSink = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// TaxConfig describes how a transfer tax is split between holder
// reflections, permanent burn, and the liquidity treasury. The three
// components must sum exactly to TotalBips.
type TaxConfig struct {
	TotalBips      uint32 `json:"total_bips"`
	ReflectionBips uint32 `json:"reflection_bips"`
	BurnBips       uint32 `json:"burn_bips"`
	LiquidityBips  uint32 `json:"liquidity_bips"`
}

// Validate checks the component-sum invariant and the 10% cap.
func (c TaxConfig) Validate() error {
	if c.TotalBips > MaxTotalTaxBips {
		return fmt.Errorf("%w: total %d bips exceeds cap %d", ErrTaxConfigInvalid, c.TotalBips, MaxTotalTaxBips)
	}
	if c.ReflectionBips+c.BurnBips+c.LiquidityBips != c.TotalBips {
		return fmt.Errorf("%w: components %d+%d+%d != total %d",
			ErrTaxConfigInvalid, c.ReflectionBips, c.BurnBips, c.LiquidityBips, c.TotalBips)
	}
	return nil
}

// Disabled reports whether the tax is fully turned off.
func (c TaxConfig) Disabled() bool {
	return c.TotalBips == 0
}
