package server

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
	"github.com/omnes-tech/multi-static-call/internal/multicall"
)

// Service error codes, in the server error range below the JSON-RPC
// standard block.
const (
	CodeInvalidTag          = -32001
	CodePerCallFailure      = -32002
	CodeValueRejected       = -32003
	CodeFallbackUnavailable = -32004
	CodeSimulationReport    = -32010
)

// callDTO is the JSON shape of one batch item. Value and RequireSuccess
// only apply to the kinds that carry them.
type callDTO struct {
	Target         common.Address `json:"target"`
	Data           hexutil.Bytes  `json:"data"`
	Value          *hexutil.Big   `json:"value,omitempty"`
	RequireSuccess *bool          `json:"requireSuccess,omitempty"`
}

func (c callDTO) staticSpec() multicall.StaticCallSpec {
	return multicall.StaticCallSpec{Target: c.Target, Data: c.Data}
}

func (c callDTO) conditionalSpec() multicall.ConditionalStaticCallSpec {
	spec := multicall.ConditionalStaticCallSpec{Target: c.Target, Data: c.Data}
	if c.RequireSuccess != nil {
		spec.RequireSuccess = *c.RequireSuccess
	}
	return spec
}

func (c callDTO) callSpec() multicall.CallSpec {
	spec := multicall.CallSpec{Target: c.Target, Data: c.Data, Value: uint256.NewInt(0)}
	if c.Value != nil {
		if v, overflow := uint256.FromBig(c.Value.ToInt()); !overflow {
			spec.Value = v
		}
	}
	return spec
}

type outcomeDTO struct {
	Success    bool          `json:"success"`
	ReturnData hexutil.Bytes `json:"returnData"`
}

func outcomeDTOs(outcomes []multicall.CallOutcome) []outcomeDTO {
	out := make([]outcomeDTO, len(outcomes))
	for i, o := range outcomes {
		out[i] = outcomeDTO{Success: o.Success, ReturnData: o.ReturnData}
	}
	return out
}

type simulatedOutcomeDTO struct {
	Success    bool           `json:"success"`
	ReturnData hexutil.Bytes  `json:"returnData"`
	CostUsed   hexutil.Uint64 `json:"costUsed"`
}

// simulationReportDTO is the error data of a simulation report: the typed
// outcomes plus the wire payload of the deployless failure.
type simulationReportDTO struct {
	Outcomes []simulatedOutcomeDTO `json:"outcomes"`
	Payload  hexutil.Bytes         `json:"payload"`
}

func newSimulationReportDTO(report *multicall.SimulationReport) simulationReportDTO {
	outcomes := make([]simulatedOutcomeDTO, len(report.Outcomes))
	for i, o := range report.Outcomes {
		outcomes[i] = simulatedOutcomeDTO{
			Success:    o.Success,
			ReturnData: o.ReturnData,
			CostUsed:   hexutil.Uint64(o.CostUsed),
		}
	}
	return simulationReportDTO{
		Outcomes: outcomes,
		Payload:  multicall.EncodeSimulationPayload(report),
	}
}

type addressDataDTO struct {
	CodeLength hexutil.Uint64 `json:"codeLength"`
	Balance    *hexutil.Big   `json:"balance"`
}

type chainFactsDTO struct {
	ChainID  hexutil.Uint64 `json:"chainId"`
	Height   hexutil.Uint64 `json:"height"`
	Hash     common.Hash    `json:"hash"`
	BaseFee  *hexutil.Big   `json:"baseFee"`
	Coinbase common.Address `json:"coinbase"`
	Time     hexutil.Uint64 `json:"time"`
	Random   common.Hash    `json:"random"`
	GasLimit hexutil.Uint64 `json:"gasLimit"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
}

func newChainFactsDTO(facts *multicall.ChainFacts) chainFactsDTO {
	return chainFactsDTO{
		ChainID:  hexutil.Uint64(facts.ChainID),
		Height:   hexutil.Uint64(facts.Height),
		Hash:     facts.Hash,
		BaseFee:  (*hexutil.Big)(facts.BaseFee.ToBig()),
		Coinbase: facts.Coinbase,
		Time:     hexutil.Uint64(facts.Time),
		Random:   facts.Random,
		GasLimit: hexutil.Uint64(facts.GasLimit),
		GasPrice: (*hexutil.Big)(facts.GasPrice.ToBig()),
	}
}

// mapError turns a dispatch failure into a JSON-RPC error with enough
// structure for the caller to tell malformed data, a failed call and a
// simulation report apart.
func mapError(err error) *jsonrpc.Error {
	if tagErr, ok := multicall.IsInvalidTag(err); ok {
		return jsonrpc.NewErrorWithData(CodeInvalidTag, tagErr.Error(), map[string]uint8{"tag": tagErr.Tag})
	}
	if callErr, ok := multicall.IsPerCallFailure(err); ok {
		return jsonrpc.NewErrorWithData(CodePerCallFailure, callErr.Error(), map[string]int{"index": callErr.Index})
	}
	if report, ok := multicall.AsSimulationReport(err); ok {
		return jsonrpc.NewErrorWithData(CodeSimulationReport, report.Error(), newSimulationReportDTO(report))
	}
	switch err {
	case multicall.ErrValueRejected:
		return jsonrpc.NewError(CodeValueRejected, err.Error())
	default:
		return jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
	}
}
