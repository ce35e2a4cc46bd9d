// Package entrypoint exposes the batch operations as named calls for
// persistent deployments, alongside the tagged-envelope deployless path.
// Unrecognized input is relayed verbatim to a configured well-known
// aggregator.
package entrypoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/multicall"
)

// ErrNoFallback is returned for unrecognized input when no fallback
// aggregator is configured.
var ErrNoFallback = errors.New("no fallback aggregator configured")

// Entrypoint is the persistent-mode surface: one named operation per
// OperationKind, a catch-all relay, and native-value rejection. Unlike the
// deployless shell it is long-lived; every call still builds a fresh
// request consumed by one dispatch.
type Entrypoint struct {
	env      multicall.Environment
	fallback *common.Address
	logger   zerolog.Logger
}

// New creates an Entrypoint over env. fallback may be nil, which disables
// the catch-all relay.
func New(env multicall.Environment, fallback *common.Address, logger zerolog.Logger) *Entrypoint {
	return &Entrypoint{
		env:      env,
		fallback: fallback,
		logger:   logger.With().Str("component", "entrypoint").Logger(),
	}
}

func (e *Entrypoint) dispatch(ctx context.Context, req *multicall.Request) (*multicall.Response, error) {
	return multicall.NewDispatcher(e.env, e.logger).Dispatch(ctx, req)
}

// Aggregate executes read-only calls where every call must succeed. The
// first failing call aborts with PerCallFailureError carrying its index.
func (e *Entrypoint) Aggregate(ctx context.Context, calls []multicall.StaticCallSpec) ([][]byte, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{
		Kind:        multicall.KindStaticCall,
		StaticCalls: calls,
	})
	if err != nil {
		return nil, err
	}
	return resp.ReturnData, nil
}

// TryAggregate executes read-only calls honoring the batch-level
// requireSuccess flag.
func (e *Entrypoint) TryAggregate(ctx context.Context, calls []multicall.StaticCallSpec, requireSuccess bool) ([]multicall.CallOutcome, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{
		Kind:           multicall.KindStaticCallStrict,
		StaticCalls:    calls,
		RequireSuccess: requireSuccess,
	})
	if err != nil {
		return nil, err
	}
	return resp.Outcomes, nil
}

// TryAggregateConditional executes read-only calls where each item carries
// its own requireSuccess flag.
func (e *Entrypoint) TryAggregateConditional(ctx context.Context, calls []multicall.ConditionalStaticCallSpec) ([]multicall.CallOutcome, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{
		Kind:             multicall.KindStaticCallStrictPerItem,
		ConditionalCalls: calls,
	})
	if err != nil {
		return nil, err
	}
	return resp.Outcomes, nil
}

// CodeLengths returns the deployed code length per address.
func (e *Entrypoint) CodeLengths(ctx context.Context, addrs []common.Address) ([]uint64, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{
		Kind:      multicall.KindCodeLength,
		Addresses: addrs,
	})
	if err != nil {
		return nil, err
	}
	return resp.Lengths, nil
}

// Balances returns the native balance per address.
func (e *Entrypoint) Balances(ctx context.Context, addrs []common.Address) ([]*uint256.Int, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{
		Kind:      multicall.KindBalances,
		Addresses: addrs,
	})
	if err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

// AddressesData returns code length and balance per address.
func (e *Entrypoint) AddressesData(ctx context.Context, addrs []common.Address) ([]multicall.AddressData, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{
		Kind:      multicall.KindAddressesData,
		Addresses: addrs,
	})
	if err != nil {
		return nil, err
	}
	return resp.AddressData, nil
}

// ChainData returns the environment fact tuple.
func (e *Entrypoint) ChainData(ctx context.Context) (*multicall.ChainFacts, error) {
	resp, err := e.dispatch(ctx, &multicall.Request{Kind: multicall.KindChainData})
	if err != nil {
		return nil, err
	}
	return resp.Chain, nil
}

// Simulate runs the calls with full mutating semantics and never keeps
// their effects. The returned error is always non-nil: a *SimulationReport
// with every outcome on the intended path, anything else on transport
// trouble.
func (e *Entrypoint) Simulate(ctx context.Context, calls []multicall.CallSpec) error {
	_, err := e.dispatch(ctx, &multicall.Request{
		Kind:  multicall.KindSimulate,
		Calls: calls,
	})
	if err == nil {
		// The dispatcher contract says Simulate always errs.
		return fmt.Errorf("simulate returned no report")
	}
	return err
}

// Fallback forwards the exact input bytes to the configured well-known
// aggregator and relays its outcome unchanged, success flag and return
// data byte-for-byte.
func (e *Entrypoint) Fallback(ctx context.Context, input []byte) (multicall.CallOutcome, error) {
	if e.fallback == nil {
		return multicall.CallOutcome{}, ErrNoFallback
	}

	e.logger.Debug().
		Str("target", e.fallback.Hex()).
		Int("bytes", len(input)).
		Msg("relaying unrecognized input")

	res, err := e.env.Call(ctx, *e.fallback, input, uint256.NewInt(0))
	if err != nil {
		return multicall.CallOutcome{}, fmt.Errorf("fallback relay: %w", err)
	}
	return multicall.CallOutcome{Success: res.Success, ReturnData: res.ReturnData}, nil
}

// Receive guards the entrypoint against direct native-value transfers.
// Value only moves inside batched calls.
func (e *Entrypoint) Receive(value *uint256.Int) error {
	if value != nil && !value.IsZero() {
		return multicall.ErrValueRejected
	}
	return nil
}
