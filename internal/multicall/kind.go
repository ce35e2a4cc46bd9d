// Package multicall implements the batch call core: the tagged request
// codec, the operation dispatcher and result aggregator, and the one-shot
// deployless shell that ties them together over a host environment.
package multicall

import "fmt"

// OperationKind is the envelope discriminant. It is a closed set: the
// dispatcher switches over it exhaustively and the codec rejects anything
// outside the range before touching the payload.
type OperationKind uint8

const (
	// KindStaticCall batches read-only calls; every call must succeed.
	KindStaticCall OperationKind = iota
	// KindStaticCallStrict batches read-only calls with a batch-level
	// requireSuccess flag.
	KindStaticCallStrict
	// KindStaticCallStrictPerItem batches read-only calls where each item
	// carries its own requireSuccess flag.
	KindStaticCallStrictPerItem
	// KindCodeLength returns the deployed code length per address.
	KindCodeLength
	// KindSimulate runs value-transferring calls whose effects are always
	// discarded; outcomes travel back on the failure channel.
	KindSimulate
	// KindBalances returns the native balance per address.
	KindBalances
	// KindAddressesData returns code length and balance per address.
	KindAddressesData
	// KindChainData returns a fixed tuple of environment facts.
	KindChainData

	kindCount
)

// Valid reports whether k is a member of the closed kind set.
func (k OperationKind) Valid() bool {
	return k < kindCount
}

func (k OperationKind) String() string {
	switch k {
	case KindStaticCall:
		return "StaticCall"
	case KindStaticCallStrict:
		return "StaticCallStrict"
	case KindStaticCallStrictPerItem:
		return "StaticCallStrictPerItem"
	case KindCodeLength:
		return "CodeLength"
	case KindSimulate:
		return "Simulate"
	case KindBalances:
		return "Balances"
	case KindAddressesData:
		return "AddressesData"
	case KindChainData:
		return "ChainData"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}
