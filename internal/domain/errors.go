package domain

import "errors"

// Ledger errors.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidAddress          = errors.New("invalid address")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrLiquidityRecipientUnset = errors.New("liquidity recipient unset")
	ErrTaxConfigInvalid        = errors.New("invalid tax configuration")
	ErrExclusionUnchanged      = errors.New("exclusion state unchanged")
)

// Rebalancer errors.
var (
	ErrAlreadyInitialized = errors.New("position already initialized")
	ErrNotInitialized     = errors.New("position not initialized")
	ErrInvalidAmounts     = errors.New("invalid amounts")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrLocked             = errors.New("parameters locked")
	ErrAlreadyLocked      = errors.New("already locked")
	ErrProtectedAsset     = errors.New("protected asset")
	ErrReentrantCall      = errors.New("reentrant call")
	ErrInvalidParameter   = errors.New("parameter out of range")
	ErrOracleUnavailable  = errors.New("oracle unavailable")
)

// Claims errors.
var (
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrInvalidProof   = errors.New("invalid merkle proof")
)

// Shared errors.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)
