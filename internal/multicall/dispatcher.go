package multicall

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Dispatcher drives the call executor over a decoded request, one external
// invocation at a time, in input order. It owns the per-kind failure policy;
// the environment only reports what each callee did.
type Dispatcher struct {
	env    Environment
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher bound to an environment.
func NewDispatcher(env Environment, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		env:    env,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch executes the request and aggregates its outcomes in input order.
// For every value-returning kind the response has exactly one entry per
// request item. Simulate never returns a response: its complete outcome
// list comes back as a *SimulationReport error after every effect has been
// reverted.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	if !req.Kind.Valid() {
		return nil, &InvalidTagError{Tag: uint8(req.Kind)}
	}

	d.logger.Debug().
		Stringer("kind", req.Kind).
		Int("items", req.Len()).
		Msg("dispatching batch")

	switch req.Kind {
	case KindStaticCall:
		return d.staticCallAll(ctx, req)
	case KindStaticCallStrict:
		return d.staticCallStrict(ctx, req)
	case KindStaticCallStrictPerItem:
		return d.staticCallPerItem(ctx, req)
	case KindCodeLength:
		return d.codeLengths(ctx, req)
	case KindSimulate:
		return nil, d.simulate(ctx, req)
	case KindBalances:
		return d.balances(ctx, req)
	case KindAddressesData:
		return d.addressesData(ctx, req)
	case KindChainData:
		return d.chainData(ctx)
	default:
		return nil, &InvalidTagError{Tag: uint8(req.Kind)}
	}
}

// staticCallAll requires every call to succeed; the first failure aborts
// the batch and no partial response is produced.
func (d *Dispatcher) staticCallAll(ctx context.Context, req *Request) (*Response, error) {
	out := make([][]byte, len(req.StaticCalls))
	for i, c := range req.StaticCalls {
		ok, ret, err := d.env.StaticCall(ctx, c.Target, c.Data)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		if !ok {
			return nil, &PerCallFailureError{Index: i}
		}
		out[i] = ret
	}
	return &Response{Kind: req.Kind, ReturnData: out}, nil
}

// staticCallStrict honors the batch-level requireSuccess flag: abort on
// first failure when set, collect flagged outcomes otherwise.
func (d *Dispatcher) staticCallStrict(ctx context.Context, req *Request) (*Response, error) {
	outcomes := make([]CallOutcome, len(req.StaticCalls))
	for i, c := range req.StaticCalls {
		ok, ret, err := d.env.StaticCall(ctx, c.Target, c.Data)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		if !ok && req.RequireSuccess {
			return nil, &PerCallFailureError{Index: i}
		}
		outcomes[i] = CallOutcome{Success: ok, ReturnData: ret}
	}
	return &Response{Kind: req.Kind, Outcomes: outcomes}, nil
}

// staticCallPerItem lets each item demand success on its own; an item that
// tolerates failure records it and the batch moves on.
func (d *Dispatcher) staticCallPerItem(ctx context.Context, req *Request) (*Response, error) {
	outcomes := make([]CallOutcome, len(req.ConditionalCalls))
	for i, c := range req.ConditionalCalls {
		ok, ret, err := d.env.StaticCall(ctx, c.Target, c.Data)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		if !ok && c.RequireSuccess {
			return nil, &PerCallFailureError{Index: i}
		}
		outcomes[i] = CallOutcome{Success: ok, ReturnData: ret}
	}
	return &Response{Kind: req.Kind, Outcomes: outcomes}, nil
}

// simulate runs every call with full mutating semantics inside a snapshot,
// measures its cost, then reverts the snapshot unconditionally. The outcome
// list rides the failure channel so no effect can outlive the batch.
func (d *Dispatcher) simulate(ctx context.Context, req *Request) error {
	snap := d.env.Snapshot()
	outcomes := make([]SimulatedOutcome, len(req.Calls))
	for i, c := range req.Calls {
		res, err := d.env.Call(ctx, c.Target, c.Data, c.Value)
		if err != nil {
			d.env.RevertToSnapshot(snap)
			return fmt.Errorf("call %d: %w", i, err)
		}
		outcomes[i] = SimulatedOutcome{
			Success:    res.Success,
			ReturnData: res.ReturnData,
			CostUsed:   res.CostUsed,
		}
	}
	d.env.RevertToSnapshot(snap)

	d.logger.Debug().Int("outcomes", len(outcomes)).Msg("simulation reverted")
	return &SimulationReport{Outcomes: outcomes}
}

func (d *Dispatcher) codeLengths(ctx context.Context, req *Request) (*Response, error) {
	lengths := make([]uint64, len(req.Addresses))
	for i, addr := range req.Addresses {
		n, err := d.env.CodeLength(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("code length %d: %w", i, err)
		}
		lengths[i] = n
	}
	return &Response{Kind: req.Kind, Lengths: lengths}, nil
}

func (d *Dispatcher) balances(ctx context.Context, req *Request) (*Response, error) {
	balances := make([]*uint256.Int, len(req.Addresses))
	for i, addr := range req.Addresses {
		b, err := d.env.Balance(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("balance %d: %w", i, err)
		}
		balances[i] = b
	}
	return &Response{Kind: req.Kind, Balances: balances}, nil
}

func (d *Dispatcher) addressesData(ctx context.Context, req *Request) (*Response, error) {
	data := make([]AddressData, len(req.Addresses))
	for i, addr := range req.Addresses {
		n, err := d.env.CodeLength(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("code length %d: %w", i, err)
		}
		b, err := d.env.Balance(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("balance %d: %w", i, err)
		}
		data[i] = AddressData{CodeLength: n, Balance: b}
	}
	return &Response{Kind: req.Kind, AddressData: data}, nil
}

func (d *Dispatcher) chainData(ctx context.Context) (*Response, error) {
	facts, err := d.env.ChainFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain facts: %w", err)
	}
	return &Response{Kind: KindChainData, Chain: facts}, nil
}
