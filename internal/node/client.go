// Package node provides JSON-RPC clients for the backing chain node and a
// small failover pool with health probing.
package node

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
)

// Role defines how a client is used by the pool.
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Client is a single node endpoint speaking JSON-RPC over HTTP and
// optionally WebSocket.
type Client struct {
	name     string
	rpcURL   string
	wsURL    string
	role     Role
	preferWS bool

	httpClient *http.Client
	wsClient   *WSClient
	healthy    atomic.Bool
	block      atomic.Uint64
	logger     zerolog.Logger
}

// Config for creating a new Client.
type Config struct {
	Name           string
	RPCURL         string
	WSURL          string
	Role           Role
	PreferWS       bool
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// NewClient creates a Client. It starts healthy until a probe says
// otherwise.
func NewClient(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		name:   cfg.Name,
		rpcURL: cfg.RPCURL,
		wsURL:  cfg.WSURL,
		role:   cfg.Role,

		preferWS: cfg.PreferWS,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		logger: cfg.Logger.With().Str("node", cfg.Name).Logger(),
	}
	if cfg.WSURL != "" {
		c.wsClient = NewWSClient(cfg.WSURL, cfg.RequestTimeout, c.logger)
	}
	c.healthy.Store(true)
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Role returns the pool role.
func (c *Client) Role() Role {
	return c.role
}

// IsHealthy returns the last probed health state.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// SetHealthy records the probed health state.
func (c *Client) SetHealthy(healthy bool) {
	c.healthy.Store(healthy)
}

// CurrentBlock returns the last probed block height.
func (c *Client) CurrentBlock() uint64 {
	return c.block.Load()
}

// Execute sends a JSON-RPC request. WebSocket is used when preferred and
// configured, HTTP otherwise.
func (c *Client) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if c.preferWS && c.wsClient != nil {
		return c.wsClient.Execute(ctx, req)
	}
	if c.rpcURL != "" {
		return c.ExecuteHTTP(ctx, req)
	}
	if c.wsClient != nil {
		return c.wsClient.Execute(ctx, req)
	}
	return nil, fmt.Errorf("no endpoint configured for node %s", c.name)
}

// ExecuteHTTP sends a JSON-RPC request via HTTP.
func (c *Client) ExecuteHTTP(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	rpcResp, err := jsonrpc.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rpcResp, nil
}

// Close tears down the WebSocket connection if one is open.
func (c *Client) Close() {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}
