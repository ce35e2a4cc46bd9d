package multicall

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallResult is the outcome of one mutating invocation. Success reflects
// what the callee did; transport-level trouble is reported as an error by
// the Environment instead.
type CallResult struct {
	Success    bool
	ReturnData []byte
	CostUsed   uint64
}

// Environment is the host the dispatcher executes against. Targets are
// untrusted; the environment is trusted to enforce the read-only guarantee
// of StaticCall and to keep introspection queries infallible short of
// transport errors.
//
// Snapshot and RevertToSnapshot bracket mutating sequences so a strict
// abort or a simulation can undo every effect as a unit. Environments whose
// calls never persist anything (a remote eth_call backend, for instance)
// may implement them as no-ops.
type Environment interface {
	// Call invokes target with data, transferring value. It may mutate
	// target state and reports the cost consumed.
	Call(ctx context.Context, target common.Address, data []byte, value *uint256.Int) (CallResult, error)

	// StaticCall invokes target with data and must not mutate state; the
	// environment rejects mutation attempts by failing the call.
	StaticCall(ctx context.Context, target common.Address, data []byte) (bool, []byte, error)

	// CodeLength returns the deployed code size at addr.
	CodeLength(ctx context.Context, addr common.Address) (uint64, error)

	// Balance returns the native balance of addr.
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)

	// ChainFacts returns the current environment fact tuple.
	ChainFacts(ctx context.Context) (*ChainFacts, error)

	// Snapshot marks the current state and returns a handle for revert.
	Snapshot() int

	// RevertToSnapshot undoes every mutation made since the snapshot.
	RevertToSnapshot(id int)
}
