package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/entrypoint"
	"github.com/omnes-tech/multi-static-call/internal/host"
	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
	"github.com/omnes-tech/multi-static-call/internal/multicall"
)

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func newTestHandler(t *testing.T, fallback *common.Address) (*Handler, *host.MemEnv) {
	t.Helper()
	env := host.NewMemEnv()
	env.SetAccount(addr(1), []byte{1}, func(ctx *host.CallContext) (bool, []byte, uint64) {
		return true, ctx.Input, 11
	})
	env.SetAccount(addr(2), []byte{1}, func(ctx *host.CallContext) (bool, []byte, uint64) {
		return false, []byte{0xfd}, 22
	})
	env.SetBalance(addr(1), uint256.NewInt(99))
	env.SetChainFacts(multicall.ChainFacts{ChainID: 1, Height: 50})

	ep := entrypoint.New(env, fallback, zerolog.Nop())
	return NewHandler(env, ep, 1<<20, zerolog.Nop()), env
}

func post(t *testing.T, h *Handler, body string) *jsonrpc.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp, err := jsonrpc.ParseResponse(w.Body.Bytes())
	if err != nil {
		t.Fatalf("parse response: %v (body %s)", err, w.Body.String())
	}
	return resp
}

func rpcBody(t *testing.T, method string, params ...interface{}) string {
	t.Helper()
	req, err := jsonrpc.NewRequest(method, params, jsonrpc.NewIDInt(1))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	data, err := req.Bytes()
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(data)
}

func TestHandler_Execute(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	envelope, err := multicall.EncodeRequest(&multicall.Request{
		Kind: multicall.KindStaticCall,
		StaticCalls: []multicall.StaticCallSpec{
			{Target: addr(1), Data: []byte{0x42}},
		},
	})
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	resp := post(t, h, rpcBody(t, MethodExecute, hexutil.Bytes(envelope)))
	if resp.HasError() {
		t.Fatalf("error: %+v", resp.Error)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	decoded, err := multicall.DecodeResponse(out)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if len(decoded.ReturnData) != 1 || !bytes.Equal(decoded.ReturnData[0], []byte{0x42}) {
		t.Errorf("return data = %x", decoded.ReturnData)
	}
}

func TestHandler_ExecuteInvalidTag(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, rpcBody(t, MethodExecute, hexutil.Bytes{0xc8}))
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != CodeInvalidTag {
		t.Errorf("code = %d, want %d", resp.Error.Code, CodeInvalidTag)
	}
	var data struct {
		Tag uint8 `json:"tag"`
	}
	if err := json.Unmarshal(resp.Error.Data, &data); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if data.Tag != 0xc8 {
		t.Errorf("tag = %d, want 200", data.Tag)
	}
}

func TestHandler_AggregateFailureCode(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, rpcBody(t, MethodAggregate, []callDTO{
		{Target: addr(1)},
		{Target: addr(2)},
	}))
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != CodePerCallFailure {
		t.Errorf("code = %d, want %d", resp.Error.Code, CodePerCallFailure)
	}
	var data struct {
		Index int `json:"index"`
	}
	if err := json.Unmarshal(resp.Error.Data, &data); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if data.Index != 1 {
		t.Errorf("index = %d, want 1", data.Index)
	}
}

func TestHandler_TryAggregate(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, rpcBody(t, MethodTryAggregate, []callDTO{
		{Target: addr(1), Data: hexutil.Bytes{0x01}},
		{Target: addr(2)},
	}, false))
	if resp.HasError() {
		t.Fatalf("error: %+v", resp.Error)
	}

	var outcomes []outcomeDTO
	if err := json.Unmarshal(resp.Result, &outcomes); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(outcomes) != 2 || !outcomes[0].Success || outcomes[1].Success {
		t.Errorf("outcomes = %+v", outcomes)
	}
	if !bytes.Equal(outcomes[1].ReturnData, []byte{0xfd}) {
		t.Errorf("failed outcome data = %x", outcomes[1].ReturnData)
	}
}

func TestHandler_Simulate(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, rpcBody(t, MethodSimulate, []callDTO{
		{Target: addr(1), Data: hexutil.Bytes{0x05}},
		{Target: addr(2)},
	}))
	if !resp.HasError() {
		t.Fatal("simulate returned a success response")
	}
	if resp.Error.Code != CodeSimulationReport {
		t.Fatalf("code = %d, want %d", resp.Error.Code, CodeSimulationReport)
	}

	var report simulationReportDTO
	if err := json.Unmarshal(resp.Error.Data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(report.Outcomes))
	}
	if !report.Outcomes[0].Success || report.Outcomes[0].CostUsed != 11 {
		t.Errorf("outcome 0 = %+v", report.Outcomes[0])
	}
	if report.Outcomes[1].Success || report.Outcomes[1].CostUsed != 22 {
		t.Errorf("outcome 1 = %+v", report.Outcomes[1])
	}

	decoded, err := multicall.DecodeSimulationPayload(report.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(decoded.Outcomes) != 2 {
		t.Errorf("payload outcomes = %d, want 2", len(decoded.Outcomes))
	}
}

func TestHandler_Introspection(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	addrs := []common.Address{addr(1), addr(9)}

	resp := post(t, h, rpcBody(t, MethodCodeLengths, addrs))
	if resp.HasError() {
		t.Fatalf("codeLengths error: %+v", resp.Error)
	}
	var lengths []hexutil.Uint64
	if err := json.Unmarshal(resp.Result, &lengths); err != nil {
		t.Fatalf("unmarshal lengths: %v", err)
	}
	if lengths[0] != 1 || lengths[1] != 0 {
		t.Errorf("lengths = %v", lengths)
	}

	resp = post(t, h, rpcBody(t, MethodBalances, addrs))
	if resp.HasError() {
		t.Fatalf("balances error: %+v", resp.Error)
	}
	var balances []*hexutil.Big
	if err := json.Unmarshal(resp.Result, &balances); err != nil {
		t.Fatalf("unmarshal balances: %v", err)
	}
	if balances[0].ToInt().Int64() != 99 || balances[1].ToInt().Sign() != 0 {
		t.Errorf("balances = %v", balances)
	}

	resp = post(t, h, rpcBody(t, MethodAddressesData, addrs))
	if resp.HasError() {
		t.Fatalf("addressesData error: %+v", resp.Error)
	}
	var data []addressDataDTO
	if err := json.Unmarshal(resp.Result, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data[0].CodeLength != 1 || data[0].Balance.ToInt().Int64() != 99 {
		t.Errorf("data = %+v", data[0])
	}

	resp = post(t, h, rpcBody(t, MethodChainData))
	if resp.HasError() {
		t.Fatalf("chainData error: %+v", resp.Error)
	}
	var facts chainFactsDTO
	if err := json.Unmarshal(resp.Result, &facts); err != nil {
		t.Fatalf("unmarshal facts: %v", err)
	}
	if facts.ChainID != 1 || facts.Height != 50 {
		t.Errorf("facts = %+v", facts)
	}
}

func TestHandler_ValueRejected(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	body := `{"jsonrpc":"2.0","method":"msc_chainData","value":"0x1","id":1}`
	resp := post(t, h, body)
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != CodeValueRejected {
		t.Errorf("code = %d, want %d", resp.Error.Code, CodeValueRejected)
	}
}

func TestHandler_ZeroValueAccepted(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	body := `{"jsonrpc":"2.0","method":"msc_chainData","value":"0x0","id":1}`
	resp := post(t, h, body)
	if resp.HasError() {
		t.Fatalf("error: %+v", resp.Error)
	}
}

func TestHandler_UnknownMethodFallsBack(t *testing.T) {
	target := addr(7)
	h, env := newTestHandler(t, &target)
	var seen []byte
	env.SetAccount(target, []byte{1}, func(ctx *host.CallContext) (bool, []byte, uint64) {
		seen = append([]byte(nil), ctx.Input...)
		return true, []byte{0x99}, 5
	})

	resp := post(t, h, rpcBody(t, "eth_call", hexutil.Bytes{0xab, 0xcd}))
	if resp.HasError() {
		t.Fatalf("error: %+v", resp.Error)
	}

	var outcome outcomeDTO
	if err := json.Unmarshal(resp.Result, &outcome); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if !outcome.Success || !bytes.Equal(outcome.ReturnData, []byte{0x99}) {
		t.Errorf("outcome = %+v", outcome)
	}
	if !bytes.Equal(seen, []byte{0xab, 0xcd}) {
		t.Errorf("aggregator saw %x", seen)
	}
}

func TestHandler_UnknownMethodNoFallback(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, rpcBody(t, "eth_call", hexutil.Bytes{0xab}))
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != CodeFallbackUnavailable {
		t.Errorf("code = %d, want %d", resp.Error.Code, CodeFallbackUnavailable)
	}
}

func TestHandler_UnknownMethodBadParams(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, rpcBody(t, "eth_call", 42, 43))
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, jsonrpc.CodeMethodNotFound)
	}
}

func TestHandler_RejectsGet(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	env := host.NewMemEnv()
	ep := entrypoint.New(env, nil, zerolog.Nop())
	h := NewHandler(env, ep, 10, zerolog.Nop())

	resp := post(t, h, rpcBody(t, MethodChainData))
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != jsonrpc.CodeInvalidRequest {
		t.Errorf("code = %d, want %d", resp.Error.Code, jsonrpc.CodeInvalidRequest)
	}
}

func TestHandler_InvalidVersion(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, `{"jsonrpc":"1.0","method":"msc_chainData","id":1}`)
	if !resp.HasError() {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != jsonrpc.CodeInvalidRequest {
		t.Errorf("code = %d, want %d", resp.Error.Code, jsonrpc.CodeInvalidRequest)
	}
}

func TestHandle_SharedByTransports(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	req, err := jsonrpc.NewRequest(MethodChainData, []interface{}{}, jsonrpc.NewIDString("ws-1"))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp := h.Handle(context.Background(), req)
	if resp.HasError() {
		t.Fatalf("error: %+v", resp.Error)
	}
}
