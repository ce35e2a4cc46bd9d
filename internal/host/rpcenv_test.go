package host

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
	"github.com/omnes-tech/multi-static-call/internal/node"
)

// rpcHandler maps eth_* methods to canned results or errors.
type rpcHandler struct {
	results map[string]interface{}
	errors  map[string]*jsonrpc.Error
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resp *jsonrpc.Response
	if rpcErr, ok := h.errors[req.Method]; ok {
		resp = jsonrpc.NewErrorResponse(req.ID, rpcErr)
	} else if result, ok := h.results[req.Method]; ok {
		resp, _ = jsonrpc.NewResponse(req.ID, result)
	} else {
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrMethodNotFound)
	}

	data, _ := resp.Bytes()
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func newRPCEnv(t *testing.T, h *rpcHandler) *RPCEnv {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	pool := node.NewPool([]*node.Client{
		node.NewClient(node.Config{
			Name:           "test",
			RPCURL:         srv.URL,
			Role:           node.RoleMain,
			RequestTimeout: 5 * time.Second,
			Logger:         zerolog.Nop(),
		}),
	}, 0, zerolog.Nop())
	t.Cleanup(pool.Stop)

	return NewRPCEnv(pool, zerolog.Nop())
}

func TestRPCEnv_Call(t *testing.T) {
	env := newRPCEnv(t, &rpcHandler{
		results: map[string]interface{}{
			"eth_call":        "0x1234",
			"eth_estimateGas": "0x5208",
		},
	})

	res, err := env.Call(context.Background(), addr(1), []byte{0x01}, uint256.NewInt(0))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.Success || !bytes.Equal(res.ReturnData, []byte{0x12, 0x34}) {
		t.Errorf("result = %+v", res)
	}
	if res.CostUsed != 21000 {
		t.Errorf("cost = %d, want 21000", res.CostUsed)
	}
}

func TestRPCEnv_CallRevert(t *testing.T) {
	env := newRPCEnv(t, &rpcHandler{
		errors: map[string]*jsonrpc.Error{
			"eth_call": jsonrpc.NewErrorWithData(3, "execution reverted", "0x08c379a0"),
		},
	})

	res, err := env.Call(context.Background(), addr(1), nil, uint256.NewInt(0))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Success {
		t.Fatal("reverted call reported success")
	}
	if !bytes.Equal(res.ReturnData, []byte{0x08, 0xc3, 0x79, 0xa0}) {
		t.Errorf("revert data = %x", res.ReturnData)
	}
}

func TestRPCEnv_StaticCall(t *testing.T) {
	env := newRPCEnv(t, &rpcHandler{
		results: map[string]interface{}{"eth_call": "0xff"},
	})

	ok, ret, err := env.StaticCall(context.Background(), addr(1), nil)
	if err != nil {
		t.Fatalf("StaticCall: %v", err)
	}
	if !ok || !bytes.Equal(ret, []byte{0xff}) {
		t.Errorf("result = %v %x", ok, ret)
	}
}

func TestRPCEnv_Introspection(t *testing.T) {
	env := newRPCEnv(t, &rpcHandler{
		results: map[string]interface{}{
			"eth_getCode":    "0x600160",
			"eth_getBalance": "0x64",
		},
	})
	ctx := context.Background()

	n, err := env.CodeLength(ctx, addr(1))
	if err != nil {
		t.Fatalf("CodeLength: %v", err)
	}
	if n != 3 {
		t.Errorf("code length = %d, want 3", n)
	}

	b, err := env.Balance(ctx, addr(1))
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !b.Eq(uint256.NewInt(100)) {
		t.Errorf("balance = %s, want 100", b)
	}
}

func TestRPCEnv_ChainFacts(t *testing.T) {
	env := newRPCEnv(t, &rpcHandler{
		results: map[string]interface{}{
			"eth_chainId": "0x1",
			"eth_getBlockByNumber": map[string]interface{}{
				"number":        "0x64",
				"hash":          "0x000000000000000000000000000000000000000000000000000000000000abcd",
				"baseFeePerGas": "0x7",
				"miner":         "0x0000000000000000000000000000000000000001",
				"timestamp":     "0x6553f100",
				"mixHash":       "0x0000000000000000000000000000000000000000000000000000000000001234",
				"gasLimit":      "0x1c9c380",
			},
			"eth_gasPrice": "0xc",
		},
	})

	facts, err := env.ChainFacts(context.Background())
	if err != nil {
		t.Fatalf("ChainFacts: %v", err)
	}
	if facts.ChainID != 1 || facts.Height != 100 {
		t.Errorf("facts = %+v", facts)
	}
	if !facts.BaseFee.Eq(uint256.NewInt(7)) || !facts.GasPrice.Eq(uint256.NewInt(12)) {
		t.Errorf("fees = %s/%s", facts.BaseFee, facts.GasPrice)
	}
	if facts.GasLimit != 30_000_000 {
		t.Errorf("gas limit = %d", facts.GasLimit)
	}
}

func TestRPCEnv_SnapshotIsNoop(t *testing.T) {
	env := newRPCEnv(t, &rpcHandler{})
	if id := env.Snapshot(); id != 0 {
		t.Errorf("snapshot id = %d, want 0", id)
	}
	env.RevertToSnapshot(0)
}
