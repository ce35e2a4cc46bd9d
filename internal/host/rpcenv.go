package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
	"github.com/omnes-tech/multi-static-call/internal/multicall"
	"github.com/omnes-tech/multi-static-call/internal/node"
)

// RPCEnv is an Environment backed by a chain node over JSON-RPC. Calls are
// executed with eth_call, which never persists anything, so Snapshot and
// RevertToSnapshot are no-ops here; batch items do not observe each other's
// effects through this backend.
type RPCEnv struct {
	pool   *node.Pool
	logger zerolog.Logger
}

// NewRPCEnv creates an environment over the given node pool.
func NewRPCEnv(pool *node.Pool, logger zerolog.Logger) *RPCEnv {
	return &RPCEnv{
		pool:   pool,
		logger: logger.With().Str("component", "rpcenv").Logger(),
	}
}

// callParams is the eth_call / eth_estimateGas transaction object.
type callParams struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

func (e *RPCEnv) execute(ctx context.Context, method string, params interface{}, result interface{}) (*jsonrpc.Error, error) {
	req, err := jsonrpc.NewRequest(method, params, jsonrpc.NewIDInt(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	resp, err := e.pool.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	if resp.HasError() {
		return resp.Error, nil
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return nil, fmt.Errorf("failed to parse %s result: %w", method, err)
		}
	}
	return nil, nil
}

// revertData extracts the return buffer a reverted eth_call ships in the
// error data, when the node provides it.
func revertData(rpcErr *jsonrpc.Error) []byte {
	if len(rpcErr.Data) == 0 {
		return nil
	}
	var dataHex string
	if err := json.Unmarshal(rpcErr.Data, &dataHex); err != nil {
		return nil
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil
	}
	return data
}

// Call implements multicall.Environment. The call runs via eth_call, the
// cost via eth_estimateGas; a callee revert yields Success=false with the
// revert data, not an error.
func (e *RPCEnv) Call(ctx context.Context, target common.Address, data []byte, value *uint256.Int) (multicall.CallResult, error) {
	params := callParams{To: &target, Data: data}
	if value != nil && !value.IsZero() {
		params.Value = (*hexutil.Big)(value.ToBig())
	}

	var retHex hexutil.Bytes
	rpcErr, err := e.execute(ctx, "eth_call", []interface{}{params, "latest"}, &retHex)
	if err != nil {
		return multicall.CallResult{}, err
	}
	if rpcErr != nil {
		return multicall.CallResult{Success: false, ReturnData: revertData(rpcErr)}, nil
	}

	var gasHex hexutil.Uint64
	rpcErr, err = e.execute(ctx, "eth_estimateGas", []interface{}{params, "latest"}, &gasHex)
	if err != nil {
		return multicall.CallResult{}, err
	}
	var cost uint64
	if rpcErr == nil {
		cost = uint64(gasHex)
	}

	return multicall.CallResult{Success: true, ReturnData: retHex, CostUsed: cost}, nil
}

// StaticCall implements multicall.Environment.
func (e *RPCEnv) StaticCall(ctx context.Context, target common.Address, data []byte) (bool, []byte, error) {
	var retHex hexutil.Bytes
	rpcErr, err := e.execute(ctx, "eth_call", []interface{}{callParams{To: &target, Data: data}, "latest"}, &retHex)
	if err != nil {
		return false, nil, err
	}
	if rpcErr != nil {
		return false, revertData(rpcErr), nil
	}
	return true, retHex, nil
}

// CodeLength implements multicall.Environment.
func (e *RPCEnv) CodeLength(ctx context.Context, addr common.Address) (uint64, error) {
	var codeHex hexutil.Bytes
	rpcErr, err := e.execute(ctx, "eth_getCode", []interface{}{addr, "latest"}, &codeHex)
	if err != nil {
		return 0, err
	}
	if rpcErr != nil {
		return 0, fmt.Errorf("eth_getCode: %s", rpcErr.Message)
	}
	return uint64(len(codeHex)), nil
}

// Balance implements multicall.Environment.
func (e *RPCEnv) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var balanceHex hexutil.Big
	rpcErr, err := e.execute(ctx, "eth_getBalance", []interface{}{addr, "latest"}, &balanceHex)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("eth_getBalance: %s", rpcErr.Message)
	}
	balance, overflow := uint256.FromBig(balanceHex.ToInt())
	if overflow {
		return nil, fmt.Errorf("balance overflows 256 bits")
	}
	return balance, nil
}

// rpcBlock is the subset of the eth_getBlockByNumber result the fact tuple
// needs.
type rpcBlock struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	Miner         common.Address `json:"miner"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	MixHash       common.Hash    `json:"mixHash"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
}

// ChainFacts implements multicall.Environment.
func (e *RPCEnv) ChainFacts(ctx context.Context) (*multicall.ChainFacts, error) {
	var chainIDHex hexutil.Uint64
	rpcErr, err := e.execute(ctx, "eth_chainId", []interface{}{}, &chainIDHex)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("eth_chainId: %s", rpcErr.Message)
	}

	var block rpcBlock
	rpcErr, err = e.execute(ctx, "eth_getBlockByNumber", []interface{}{"latest", false}, &block)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber: %s", rpcErr.Message)
	}

	var gasPriceHex hexutil.Big
	rpcErr, err = e.execute(ctx, "eth_gasPrice", []interface{}{}, &gasPriceHex)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("eth_gasPrice: %s", rpcErr.Message)
	}

	facts := &multicall.ChainFacts{
		ChainID:  uint64(chainIDHex),
		Height:   uint64(block.Number),
		Hash:     block.Hash,
		BaseFee:  uint256.NewInt(0),
		Coinbase: block.Miner,
		Time:     uint64(block.Timestamp),
		Random:   block.MixHash,
		GasLimit: uint64(block.GasLimit),
		GasPrice: uint256.NewInt(0),
	}
	if block.BaseFeePerGas != nil {
		if v, overflow := uint256.FromBig(block.BaseFeePerGas.ToInt()); !overflow {
			facts.BaseFee = v
		}
	}
	if v, overflow := uint256.FromBig(gasPriceHex.ToInt()); !overflow {
		facts.GasPrice = v
	}
	return facts, nil
}

// Snapshot implements multicall.Environment. eth_call never persists, so
// there is nothing to mark.
func (e *RPCEnv) Snapshot() int {
	return 0
}

// RevertToSnapshot implements multicall.Environment.
func (e *RPCEnv) RevertToSnapshot(int) {}
