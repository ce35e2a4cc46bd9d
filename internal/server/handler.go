package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/entrypoint"
	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
	"github.com/omnes-tech/multi-static-call/internal/multicall"
)

// Method names of the service surface.
const (
	MethodExecute                 = "msc_execute"
	MethodAggregate               = "msc_aggregate"
	MethodTryAggregate            = "msc_tryAggregate"
	MethodTryAggregateConditional = "msc_tryAggregateConditional"
	MethodCodeLengths             = "msc_codeLengths"
	MethodBalances                = "msc_balances"
	MethodAddressesData           = "msc_addressesData"
	MethodChainData               = "msc_chainData"
	MethodSimulate                = "msc_simulate"
)

// Handler serves JSON-RPC requests over HTTP: the deployless envelope via
// msc_execute and the named entrypoint operations. Unknown methods with hex
// input fall through to the configured aggregator relay.
type Handler struct {
	env         multicall.Environment
	ep          *entrypoint.Entrypoint
	maxBodySize int64
	logger      zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(env multicall.Environment, ep *entrypoint.Entrypoint, maxBodySize int64, logger zerolog.Logger) *Handler {
	return &Handler{
		env:         env,
		ep:          ep,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("component", "rpc").Logger(),
	}
}

// ServeHTTP handles HTTP requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body []byte
	var err error
	if h.maxBodySize > 0 {
		body, err = io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
		if err == nil && int64(len(body)) > h.maxBodySize {
			h.writeResponse(w, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "request body too large")))
			return
		}
	} else {
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		h.writeResponse(w, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.NewError(jsonrpc.CodeParseError, "failed to read request body")))
		return
	}

	req, err := jsonrpc.ParseRequest(body)
	if err != nil {
		h.writeResponse(w, jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrParse))
		return
	}
	if err := req.Validate(); err != nil {
		h.writeResponse(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error())))
		return
	}

	h.writeResponse(w, h.Handle(r.Context(), req))
}

// Handle processes one parsed request. Shared by the HTTP and WebSocket
// transports.
func (h *Handler) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if err := h.checkValue(req); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}

	switch req.Method {
	case MethodExecute:
		return h.execute(ctx, req)
	case MethodAggregate:
		return h.aggregate(ctx, req)
	case MethodTryAggregate:
		return h.tryAggregate(ctx, req)
	case MethodTryAggregateConditional:
		return h.tryAggregateConditional(ctx, req)
	case MethodCodeLengths:
		return h.codeLengths(ctx, req)
	case MethodBalances:
		return h.balances(ctx, req)
	case MethodAddressesData:
		return h.addressesData(ctx, req)
	case MethodChainData:
		return h.chainData(ctx, req)
	case MethodSimulate:
		return h.simulate(ctx, req)
	default:
		return h.fallback(ctx, req)
	}
}

// checkValue rejects any native value attached to a request. Value only
// moves inside batched calls.
func (h *Handler) checkValue(req *jsonrpc.Request) error {
	if req.Value == "" {
		return nil
	}
	v, err := hexutil.DecodeBig(req.Value)
	if err != nil {
		return multicall.ErrValueRejected
	}
	if v.Sign() != 0 {
		return multicall.ErrValueRejected
	}
	return nil
}

func (h *Handler) result(id jsonrpc.ID, result interface{}) *jsonrpc.Response {
	resp, err := jsonrpc.NewResponse(id, result)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal result")
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrInternal)
	}
	return resp
}

func (h *Handler) execute(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var envelope hexutil.Bytes
	if err := req.UnmarshalParams(&envelope); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	out, err := multicall.Execute(ctx, h.env, envelope, h.logger)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}
	return h.result(req.ID, hexutil.Bytes(out))
}

func (h *Handler) aggregate(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var calls []callDTO
	if err := req.UnmarshalParams(&calls); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	specs := make([]multicall.StaticCallSpec, len(calls))
	for i, c := range calls {
		specs[i] = c.staticSpec()
	}
	out, err := h.ep.Aggregate(ctx, specs)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}

	results := make([]hexutil.Bytes, len(out))
	for i, d := range out {
		results[i] = d
	}
	return h.result(req.ID, results)
}

func (h *Handler) tryAggregate(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var calls []callDTO
	var requireSuccess bool
	if err := req.UnmarshalParams(&calls, &requireSuccess); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	specs := make([]multicall.StaticCallSpec, len(calls))
	for i, c := range calls {
		specs[i] = c.staticSpec()
	}
	outcomes, err := h.ep.TryAggregate(ctx, specs, requireSuccess)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}
	return h.result(req.ID, outcomeDTOs(outcomes))
}

func (h *Handler) tryAggregateConditional(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var calls []callDTO
	if err := req.UnmarshalParams(&calls); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	specs := make([]multicall.ConditionalStaticCallSpec, len(calls))
	for i, c := range calls {
		specs[i] = c.conditionalSpec()
	}
	outcomes, err := h.ep.TryAggregateConditional(ctx, specs)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}
	return h.result(req.ID, outcomeDTOs(outcomes))
}

func (h *Handler) codeLengths(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var addrs []common.Address
	if err := req.UnmarshalParams(&addrs); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	lengths, err := h.ep.CodeLengths(ctx, addrs)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}

	out := make([]hexutil.Uint64, len(lengths))
	for i, n := range lengths {
		out[i] = hexutil.Uint64(n)
	}
	return h.result(req.ID, out)
}

func (h *Handler) balances(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var addrs []common.Address
	if err := req.UnmarshalParams(&addrs); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	balances, err := h.ep.Balances(ctx, addrs)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}

	out := make([]*hexutil.Big, len(balances))
	for i, b := range balances {
		out[i] = (*hexutil.Big)(b.ToBig())
	}
	return h.result(req.ID, out)
}

func (h *Handler) addressesData(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var addrs []common.Address
	if err := req.UnmarshalParams(&addrs); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	data, err := h.ep.AddressesData(ctx, addrs)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}

	out := make([]addressDataDTO, len(data))
	for i, d := range data {
		out[i] = addressDataDTO{
			CodeLength: hexutil.Uint64(d.CodeLength),
			Balance:    (*hexutil.Big)(d.Balance.ToBig()),
		}
	}
	return h.result(req.ID, out)
}

func (h *Handler) chainData(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	facts, err := h.ep.ChainData(ctx)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}
	return h.result(req.ID, newChainFactsDTO(facts))
}

func (h *Handler) simulate(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var calls []callDTO
	if err := req.UnmarshalParams(&calls); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	}

	specs := make([]multicall.CallSpec, len(calls))
	for i, c := range calls {
		specs[i] = c.callSpec()
	}

	// Simulate always terminates through the failure channel; the report
	// is the result the caller came for.
	err := h.ep.Simulate(ctx, specs)
	return jsonrpc.NewErrorResponse(req.ID, mapError(err))
}

// fallback relays unrecognized methods carrying raw hex input to the
// well-known aggregator and returns its outcome unchanged.
func (h *Handler) fallback(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var input hexutil.Bytes
	if err := req.UnmarshalParams(&input); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrMethodNotFound)
	}

	outcome, err := h.ep.Fallback(ctx, input)
	if err != nil {
		if errors.Is(err, entrypoint.ErrNoFallback) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(CodeFallbackUnavailable, err.Error()))
		}
		return jsonrpc.NewErrorResponse(req.ID, mapError(err))
	}
	return h.result(req.ID, outcomeDTO{Success: outcome.Success, ReturnData: outcome.ReturnData})
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	data, err := resp.Bytes()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}
