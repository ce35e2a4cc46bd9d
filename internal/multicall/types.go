package multicall

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallSpec describes one value-transferring call. Used by Simulate.
type CallSpec struct {
	Target common.Address
	Data   []byte
	Value  *uint256.Int
}

// StaticCallSpec describes one read-only call.
type StaticCallSpec struct {
	Target common.Address
	Data   []byte
}

// ConditionalStaticCallSpec is a read-only call with its own failure policy.
type ConditionalStaticCallSpec struct {
	Target         common.Address
	Data           []byte
	RequireSuccess bool
}

// CallOutcome is the result of one call in a collect-all batch.
type CallOutcome struct {
	Success    bool
	ReturnData []byte
}

// SimulatedOutcome is the result of one simulated call, including the cost
// it consumed before its effects were discarded.
type SimulatedOutcome struct {
	Success    bool
	ReturnData []byte
	CostUsed   uint64
}

// AddressData pairs the two introspection facts for one address.
type AddressData struct {
	CodeLength uint64
	Balance    *uint256.Int
}

// ChainFacts is the fixed tuple returned by the ChainData operation.
type ChainFacts struct {
	ChainID  uint64
	Height   uint64
	Hash     common.Hash
	BaseFee  *uint256.Int
	Coinbase common.Address
	Time     uint64
	Random   common.Hash
	GasLimit uint64
	GasPrice *uint256.Int
}

// Request is a decoded envelope. Kind determines which spec list is
// populated; the others stay nil. A Request is consumed by exactly one
// Dispatch and not retained afterwards.
type Request struct {
	Kind OperationKind

	// StaticCalls holds the items for StaticCall and StaticCallStrict.
	StaticCalls []StaticCallSpec
	// RequireSuccess is the batch-level flag for StaticCallStrict.
	RequireSuccess bool
	// ConditionalCalls holds the items for StaticCallStrictPerItem.
	ConditionalCalls []ConditionalStaticCallSpec
	// Calls holds the items for Simulate.
	Calls []CallSpec
	// Addresses holds the items for CodeLength, Balances and AddressesData.
	Addresses []common.Address
}

// Len returns the number of batch items in the request. ChainData has no
// batching dimension and reports zero.
func (r *Request) Len() int {
	switch r.Kind {
	case KindStaticCall, KindStaticCallStrict:
		return len(r.StaticCalls)
	case KindStaticCallStrictPerItem:
		return len(r.ConditionalCalls)
	case KindSimulate:
		return len(r.Calls)
	case KindCodeLength, KindBalances, KindAddressesData:
		return len(r.Addresses)
	default:
		return 0
	}
}

// Response is the aggregated result of one request. The populated field
// mirrors the request kind; every list is index-aligned with the request.
type Response struct {
	Kind OperationKind

	// ReturnData holds per-call return buffers for StaticCall.
	ReturnData [][]byte
	// Outcomes holds flagged results for the strict collect-all kinds.
	Outcomes []CallOutcome
	// Lengths holds code lengths for CodeLength.
	Lengths []uint64
	// Balances holds native balances for Balances.
	Balances []*uint256.Int
	// AddressData holds paired introspection facts for AddressesData.
	AddressData []AddressData
	// Chain holds the environment facts for ChainData.
	Chain *ChainFacts
}

// Len returns the number of entries in the response, mirroring Request.Len.
func (r *Response) Len() int {
	switch r.Kind {
	case KindStaticCall:
		return len(r.ReturnData)
	case KindStaticCallStrict, KindStaticCallStrictPerItem:
		return len(r.Outcomes)
	case KindCodeLength:
		return len(r.Lengths)
	case KindBalances:
		return len(r.Balances)
	case KindAddressesData:
		return len(r.AddressData)
	default:
		return 0
	}
}
