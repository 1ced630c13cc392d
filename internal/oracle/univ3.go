package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sooncult/soon-coin/internal/domain"
)

var poolABI abi.ABI

func init() {
	var err error
	poolABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "observe",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "secondsAgos", "type": "uint32[]"}
			],
			"outputs": [
				{"name": "tickCumulatives", "type": "int56[]"},
				{"name": "secondsPerLiquidityCumulativeX128s", "type": "uint160[]"}
			]
		}
	]`))
	if err != nil {
		panic("oracle: pool abi parse: " + err.Error())
	}
}

// UniV3 reads cumulative tick observations from a Uniswap v3 style pool over
// RPC. Read-only: every call is an eth_call against the latest block.
type UniV3 struct {
	client *ethclient.Client
	pool   common.Address
}

// NewUniV3 dials the RPC endpoint and binds to the pool address.
func NewUniV3(rpcURL string, pool common.Address) (*UniV3, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial rpc %s: %w", rpcURL, err)
	}
	return &UniV3{client: client, pool: pool}, nil
}

// Observe returns the pool's cumulative ticks at each requested age, newest
// last, matching the pool's own observe ordering.
func (o *UniV3) Observe(ctx context.Context, secondsAgos []uint32) ([]int64, error) {
	callData, err := poolABI.Pack("observe", secondsAgos)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack observe: %w", err)
	}

	raw, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.pool,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: observe %s: %w", domain.ErrOracleUnavailable, o.pool.Hex(), err)
	}

	vals, err := poolABI.Unpack("observe", raw)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("%w: unpack observe: %w", domain.ErrOracleUnavailable, err)
	}
	cums, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected observe return type %T", domain.ErrOracleUnavailable, vals[0])
	}
	if len(cums) != len(secondsAgos) {
		return nil, fmt.Errorf("%w: got %d samples, want %d", domain.ErrOracleUnavailable, len(cums), len(secondsAgos))
	}

	out := make([]int64, len(cums))
	for i, c := range cums {
		if !c.IsInt64() {
			return nil, fmt.Errorf("%w: cumulative tick out of range", domain.ErrOracleUnavailable)
		}
		out[i] = c.Int64()
	}
	return out, nil
}

// Close releases the underlying RPC connection.
func (o *UniV3) Close() {
	o.client.Close()
}

var (
	_ domain.Oracle = (*UniV3)(nil)
	_ domain.Oracle = (*Static)(nil)
)
