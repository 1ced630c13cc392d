package amm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sooncult/soon-coin/internal/domain"
)

const (
	txDeadline     = 10 * time.Minute
	receiptTimeout = 90 * time.Second
	receiptPoll    = 3 * time.Second
)

var npmABI abi.ABI

func init() {
	var err error
	npmABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "mint",
			"type": "function",
			"inputs": [{"name": "params", "type": "tuple", "components": [
				{"name": "token0", "type": "address"},
				{"name": "token1", "type": "address"},
				{"name": "fee", "type": "uint24"},
				{"name": "tickLower", "type": "int24"},
				{"name": "tickUpper", "type": "int24"},
				{"name": "amount0Desired", "type": "uint256"},
				{"name": "amount1Desired", "type": "uint256"},
				{"name": "amount0Min", "type": "uint256"},
				{"name": "amount1Min", "type": "uint256"},
				{"name": "recipient", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			]}],
			"outputs": [
				{"name": "tokenId", "type": "uint256"},
				{"name": "liquidity", "type": "uint128"},
				{"name": "amount0", "type": "uint256"},
				{"name": "amount1", "type": "uint256"}
			]
		},
		{
			"name": "increaseLiquidity",
			"type": "function",
			"inputs": [{"name": "params", "type": "tuple", "components": [
				{"name": "tokenId", "type": "uint256"},
				{"name": "amount0Desired", "type": "uint256"},
				{"name": "amount1Desired", "type": "uint256"},
				{"name": "amount0Min", "type": "uint256"},
				{"name": "amount1Min", "type": "uint256"},
				{"name": "deadline", "type": "uint256"}
			]}],
			"outputs": [
				{"name": "liquidity", "type": "uint128"},
				{"name": "amount0", "type": "uint256"},
				{"name": "amount1", "type": "uint256"}
			]
		},
		{
			"name": "decreaseLiquidity",
			"type": "function",
			"inputs": [{"name": "params", "type": "tuple", "components": [
				{"name": "tokenId", "type": "uint256"},
				{"name": "liquidity", "type": "uint128"},
				{"name": "amount0Min", "type": "uint256"},
				{"name": "amount1Min", "type": "uint256"},
				{"name": "deadline", "type": "uint256"}
			]}],
			"outputs": [
				{"name": "amount0", "type": "uint256"},
				{"name": "amount1", "type": "uint256"}
			]
		},
		{
			"name": "collect",
			"type": "function",
			"inputs": [{"name": "params", "type": "tuple", "components": [
				{"name": "tokenId", "type": "uint256"},
				{"name": "recipient", "type": "address"},
				{"name": "amount0Max", "type": "uint128"},
				{"name": "amount1Max", "type": "uint128"}
			]}],
			"outputs": [
				{"name": "amount0", "type": "uint256"},
				{"name": "amount1", "type": "uint256"}
			]
		},
		{
			"name": "positions",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "tokenId", "type": "uint256"}],
			"outputs": [
				{"name": "nonce", "type": "uint96"},
				{"name": "operator", "type": "address"},
				{"name": "token0", "type": "address"},
				{"name": "token1", "type": "address"},
				{"name": "fee", "type": "uint24"},
				{"name": "tickLower", "type": "int24"},
				{"name": "tickUpper", "type": "int24"},
				{"name": "liquidity", "type": "uint128"},
				{"name": "feeGrowthInside0LastX128", "type": "uint256"},
				{"name": "feeGrowthInside1LastX128", "type": "uint256"},
				{"name": "tokensOwed0", "type": "uint128"},
				{"name": "tokensOwed1", "type": "uint128"}
			]
		}
	]`))
	if err != nil {
		panic("amm: position manager abi parse: " + err.Error())
	}
}

type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type increaseParams struct {
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

type decreaseParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// UniV3 drives a NonfungiblePositionManager-style service over RPC. Mutating
// calls are simulated with eth_call first to capture their return values,
// then submitted as signed transactions and confirmed by receipt; a revert
// at either stage surfaces as an error with no recorded effect.
type UniV3 struct {
	client     *ethclient.Client
	manager    common.Address
	chainID    *big.Int
	privateKey []byte
	sender     common.Address
}

// NewUniV3 dials the RPC endpoint and prepares the signing identity.
// privateKeyHex may carry a 0x prefix.
func NewUniV3(rpcURL string, manager common.Address, chainID int64, privateKeyHex string) (*UniV3, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("amm: decode private key: %w", err)
	}
	privKey, err := ethcrypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("amm: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("amm: dial rpc %s: %w", rpcURL, err)
	}

	return &UniV3{
		client:     client,
		manager:    manager,
		chainID:    big.NewInt(chainID),
		privateKey: pkBytes,
		sender:     ethcrypto.PubkeyToAddress(privKey.PublicKey),
	}, nil
}

// Mint opens a new position and returns its token id as the handle.
func (u *UniV3) Mint(ctx context.Context, p domain.MintParams) (domain.MintResult, error) {
	callData, err := npmABI.Pack("mint", mintParams{
		Token0:         p.Token0,
		Token1:         p.Token1,
		Fee:            big.NewInt(int64(p.Fee)),
		TickLower:      big.NewInt(int64(p.TickLower)),
		TickUpper:      big.NewInt(int64(p.TickUpper)),
		Amount0Desired: p.Desired0,
		Amount1Desired: p.Desired1,
		Amount0Min:     new(big.Int),
		Amount1Min:     new(big.Int),
		Recipient:      p.Recipient,
		Deadline:       deadline(),
	})
	if err != nil {
		return domain.MintResult{}, fmt.Errorf("amm: pack mint: %w", err)
	}

	vals, err := u.execute(ctx, "mint", callData)
	if err != nil {
		return domain.MintResult{}, err
	}
	if len(vals) != 4 {
		return domain.MintResult{}, fmt.Errorf("amm: mint: got %d return values, want 4", len(vals))
	}

	tokenID := vals[0].(*big.Int)
	if !tokenID.IsUint64() {
		return domain.MintResult{}, fmt.Errorf("amm: mint: token id out of handle range")
	}
	return domain.MintResult{
		Handle:    tokenID.Uint64(),
		Liquidity: vals[1].(*big.Int),
		Amount0:   vals[2].(*big.Int),
		Amount1:   vals[3].(*big.Int),
	}, nil
}

// IncreaseLiquidity adds funds to an existing position.
func (u *UniV3) IncreaseLiquidity(ctx context.Context, handle uint64, desired0, desired1 *big.Int) (liquidity, amount0, amount1 *big.Int, err error) {
	callData, err := npmABI.Pack("increaseLiquidity", increaseParams{
		TokenId:        new(big.Int).SetUint64(handle),
		Amount0Desired: desired0,
		Amount1Desired: desired1,
		Amount0Min:     new(big.Int),
		Amount1Min:     new(big.Int),
		Deadline:       deadline(),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("amm: pack increase: %w", err)
	}

	vals, err := u.execute(ctx, "increaseLiquidity", callData)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(vals) != 3 {
		return nil, nil, nil, fmt.Errorf("amm: increase: got %d return values, want 3", len(vals))
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), vals[2].(*big.Int), nil
}

// DecreaseLiquidity withdraws liquidity; the freed amounts become owed and
// are paid out by Collect.
func (u *UniV3) DecreaseLiquidity(ctx context.Context, handle uint64, liquidity *big.Int) (amount0, amount1 *big.Int, err error) {
	callData, err := npmABI.Pack("decreaseLiquidity", decreaseParams{
		TokenId:    new(big.Int).SetUint64(handle),
		Liquidity:  liquidity,
		Amount0Min: new(big.Int),
		Amount1Min: new(big.Int),
		Deadline:   deadline(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("amm: pack decrease: %w", err)
	}

	vals, err := u.execute(ctx, "decreaseLiquidity", callData)
	if err != nil {
		return nil, nil, err
	}
	if len(vals) != 2 {
		return nil, nil, fmt.Errorf("amm: decrease: got %d return values, want 2", len(vals))
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), nil
}

// Collect pays out owed amounts up to the given maxima.
func (u *UniV3) Collect(ctx context.Context, handle uint64, recipient common.Address, max0, max1 *big.Int) (amount0, amount1 *big.Int, err error) {
	callData, err := npmABI.Pack("collect", collectParams{
		TokenId:    new(big.Int).SetUint64(handle),
		Recipient:  recipient,
		Amount0Max: max0,
		Amount1Max: max1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("amm: pack collect: %w", err)
	}

	vals, err := u.execute(ctx, "collect", callData)
	if err != nil {
		return nil, nil, err
	}
	if len(vals) != 2 {
		return nil, nil, fmt.Errorf("amm: collect: got %d return values, want 2", len(vals))
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), nil
}

// Position reads the current position state with a view call.
func (u *UniV3) Position(ctx context.Context, handle uint64) (domain.Position, error) {
	callData, err := npmABI.Pack("positions", new(big.Int).SetUint64(handle))
	if err != nil {
		return domain.Position{}, fmt.Errorf("amm: pack positions: %w", err)
	}

	raw, err := u.client.CallContract(ctx, ethereum.CallMsg{
		To:   &u.manager,
		Data: callData,
	}, nil)
	if err != nil {
		return domain.Position{}, fmt.Errorf("amm: positions %d: %w", handle, err)
	}

	vals, err := npmABI.Unpack("positions", raw)
	if err != nil || len(vals) != 12 {
		return domain.Position{}, fmt.Errorf("amm: unpack positions: %w", err)
	}
	return domain.Position{
		Handle:    handle,
		TickLower: int32(vals[5].(*big.Int).Int64()),
		TickUpper: int32(vals[6].(*big.Int).Int64()),
		Liquidity: vals[7].(*big.Int),
	}, nil
}

// Close releases the underlying RPC connection.
func (u *UniV3) Close() {
	u.client.Close()
}

// execute simulates the call to capture return values, then submits it as a
// signed transaction and waits for a successful receipt.
func (u *UniV3) execute(ctx context.Context, method string, callData []byte) ([]any, error) {
	msg := ethereum.CallMsg{
		From: u.sender,
		To:   &u.manager,
		Data: callData,
	}

	raw, err := u.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("amm: simulate %s: %w", method, err)
	}
	vals, err := npmABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("amm: unpack %s: %w", method, err)
	}

	privKey, err := ethcrypto.ToECDSA(u.privateKey)
	if err != nil {
		return nil, fmt.Errorf("amm: private key: %w", err)
	}
	nonce, err := u.client.PendingNonceAt(ctx, u.sender)
	if err != nil {
		return nil, fmt.Errorf("amm: %s nonce: %w", method, err)
	}
	gasPrice, err := u.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("amm: %s gas price: %w", method, err)
	}
	gasLimit, err := u.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("amm: %s gas estimate: %w", method, err)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, u.manager, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(u.chainID), privKey)
	if err != nil {
		return nil, fmt.Errorf("amm: sign %s: %w", method, err)
	}
	if err := u.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("amm: send %s: %w", method, err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := u.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return nil, fmt.Errorf("amm: %s receipt: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("amm: %s tx %s reverted", method, signed.Hash().Hex())
	}
	return vals, nil
}

func (u *UniV3) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := u.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			return receipt, nil
		}
	}
}

func deadline() *big.Int {
	return big.NewInt(time.Now().Add(txDeadline).Unix())
}

var _ domain.PositionManager = (*UniV3)(nil)
