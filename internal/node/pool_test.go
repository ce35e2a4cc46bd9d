package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
)

// rpcServer answers every JSON-RPC request with a fixed result and counts
// the requests it served.
func rpcServer(t *testing.T, result interface{}) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		req, err := jsonrpc.ParseRequest(body)
		if err != nil {
			t.Errorf("parse request: %v", err)
			return
		}
		resp, err := jsonrpc.NewResponse(req.ID, result)
		if err != nil {
			t.Errorf("build response: %v", err)
			return
		}
		data, _ := resp.Bytes()
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newHTTPClient(name, url string, role Role) *Client {
	return NewClient(Config{
		Name:           name,
		RPCURL:         url,
		Role:           role,
		RequestTimeout: 5 * time.Second,
		Logger:         zerolog.Nop(),
	})
}

func blockNumberRequest(t *testing.T) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest("eth_blockNumber", []interface{}{}, jsonrpc.NewIDInt(1))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestClient_ExecuteHTTP(t *testing.T) {
	srv, _ := rpcServer(t, "0x10")
	c := newHTTPClient("primary", srv.URL, RoleMain)
	defer c.Close()

	resp, err := c.Execute(context.Background(), blockNumberRequest(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result string
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result != "0x10" {
		t.Errorf("result = %s, want 0x10", result)
	}
}

func TestPool_PrefersMain(t *testing.T) {
	mainSrv, mainHits := rpcServer(t, "0x10")
	fallbackSrv, fallbackHits := rpcServer(t, "0x10")

	pool := NewPool([]*Client{
		newHTTPClient("primary", mainSrv.URL, RoleMain),
		newHTTPClient("backup", fallbackSrv.URL, RoleFallback),
	}, 0, zerolog.Nop())
	defer pool.Stop()

	if _, err := pool.Execute(context.Background(), blockNumberRequest(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if mainHits.Load() != 1 || fallbackHits.Load() != 0 {
		t.Errorf("hits = %d/%d, want 1/0", mainHits.Load(), fallbackHits.Load())
	}
}

func TestPool_FailsOverToFallback(t *testing.T) {
	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer deadSrv.Close()
	fallbackSrv, fallbackHits := rpcServer(t, "0x10")

	dead := newHTTPClient("primary", deadSrv.URL, RoleMain)
	pool := NewPool([]*Client{
		dead,
		newHTTPClient("backup", fallbackSrv.URL, RoleFallback),
	}, 0, zerolog.Nop())
	defer pool.Stop()

	if _, err := pool.Execute(context.Background(), blockNumberRequest(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fallbackHits.Load() != 1 {
		t.Errorf("fallback hits = %d, want 1", fallbackHits.Load())
	}
	if dead.IsHealthy() {
		t.Error("failed client still marked healthy")
	}
}

func TestPool_NoHealthyNode(t *testing.T) {
	c := newHTTPClient("primary", "http://localhost:1", RoleMain)
	c.SetHealthy(false)
	pool := NewPool([]*Client{c}, 0, zerolog.Nop())
	defer pool.Stop()

	if _, err := pool.Execute(context.Background(), blockNumberRequest(t)); err == nil {
		t.Fatal("Execute succeeded, want error")
	}
}

func TestPool_ProbeRecoversNode(t *testing.T) {
	srv, _ := rpcServer(t, "0x2a")
	c := newHTTPClient("primary", srv.URL, RoleMain)
	c.SetHealthy(false)
	pool := NewPool([]*Client{c}, time.Minute, zerolog.Nop())
	defer pool.Stop()

	pool.probe(c)
	if !c.IsHealthy() {
		t.Fatal("probed client not healthy")
	}
	if c.CurrentBlock() != 0x2a {
		t.Errorf("block = %d, want 42", c.CurrentBlock())
	}
}

func TestPool_ProbeBadResultMarksUnhealthy(t *testing.T) {
	srv, _ := rpcServer(t, "not-hex")
	c := newHTTPClient("primary", srv.URL, RoleMain)
	pool := NewPool([]*Client{c}, time.Minute, zerolog.Nop())
	defer pool.Stop()

	pool.probe(c)
	if c.IsHealthy() {
		t.Fatal("client with bad probe result still healthy")
	}
}
