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

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "transfer",
			"type": "function",
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`))
	if err != nil {
		panic("amm: erc20 abi parse: " + err.Error())
	}
}

// ERC20 adapts an on-chain fungible token to the domain.Token port. Transfer
// always moves funds from the signing identity; the from argument is checked
// against it so a miswired caller fails loudly instead of spending the wrong
// account.
type ERC20 struct {
	client     *ethclient.Client
	token      common.Address
	chainID    *big.Int
	privateKey []byte
	sender     common.Address
}

// NewERC20 dials the RPC endpoint and prepares the signing identity.
// privateKeyHex may carry a 0x prefix.
func NewERC20(rpcURL string, token common.Address, chainID int64, privateKeyHex string) (*ERC20, error) {
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

	return &ERC20{
		client:     client,
		token:      token,
		chainID:    big.NewInt(chainID),
		privateKey: pkBytes,
		sender:     ethcrypto.PubkeyToAddress(privKey.PublicKey),
	}, nil
}

// Address returns the token's contract address.
func (e *ERC20) Address() common.Address {
	return e.token
}

// BalanceOf reads a holder's balance with a view call.
func (e *ERC20) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("amm: pack balanceOf: %w", err)
	}

	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{
		To:   &e.token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("amm: balanceOf %s: %w", holder.Hex(), err)
	}

	vals, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("amm: unpack balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Transfer submits a signed transfer transaction and waits for its receipt.
func (e *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if from != e.sender {
		return fmt.Errorf("amm: token %s: cannot sign for %s: %w", e.token.Hex(), from.Hex(), domain.ErrUnauthorized)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amm: token %s: %w", e.token.Hex(), domain.ErrInvalidAmount)
	}

	callData, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("amm: pack transfer: %w", err)
	}

	msg := ethereum.CallMsg{
		From: e.sender,
		To:   &e.token,
		Data: callData,
	}

	privKey, err := ethcrypto.ToECDSA(e.privateKey)
	if err != nil {
		return fmt.Errorf("amm: private key: %w", err)
	}
	nonce, err := e.client.PendingNonceAt(ctx, e.sender)
	if err != nil {
		return fmt.Errorf("amm: transfer nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("amm: transfer gas price: %w", err)
	}
	gasLimit, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return fmt.Errorf("amm: transfer gas estimate: %w", err)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, e.token, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), privKey)
	if err != nil {
		return fmt.Errorf("amm: sign transfer: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("amm: send transfer: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := e.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("amm: transfer receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("amm: transfer tx %s reverted", signed.Hash().Hex())
	}
	return nil
}

// Close releases the underlying RPC connection.
func (e *ERC20) Close() {
	e.client.Close()
}

func (e *ERC20) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := e.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			return receipt, nil
		}
	}
}

var _ domain.Token = (*ERC20)(nil)
