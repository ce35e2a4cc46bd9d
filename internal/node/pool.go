package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
)

// Pool routes JSON-RPC requests across node clients: healthy mains first,
// fallbacks when no main is usable. A background probe keeps health state
// fresh via eth_blockNumber.
type Pool struct {
	clients []*Client
	logger  zerolog.Logger

	probeInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewPool creates a pool over the given clients.
func NewPool(clients []*Client, probeInterval time.Duration, logger zerolog.Logger) *Pool {
	return &Pool{
		clients:       clients,
		logger:        logger.With().Str("component", "nodepool").Logger(),
		probeInterval: probeInterval,
		stopCh:        make(chan struct{}),
	}
}

// Execute sends the request to the first usable client. A transport error
// marks the client unhealthy and moves on; the last error is returned when
// every client fails.
func (p *Pool) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var lastErr error
	for _, pass := range []Role{RoleMain, RoleFallback} {
		for _, c := range p.clients {
			if c.Role() != pass || !c.IsHealthy() {
				continue
			}
			resp, err := c.Execute(ctx, req)
			if err != nil {
				p.logger.Warn().Err(err).Str("node", c.Name()).Str("method", req.Method).Msg("node request failed")
				c.SetHealthy(false)
				lastErr = err
				continue
			}
			return resp, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no healthy node available")
	}
	return nil, lastErr
}

// Start launches the health probe loop. No-op when the interval is zero.
func (p *Pool) Start() {
	if p.probeInterval <= 0 {
		return
	}
	go p.probeLoop()
}

// Stop terminates the health probe loop and closes the clients.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	for _, c := range p.clients {
		c.Close()
	}
}

func (p *Pool) probeLoop() {
	ticker := time.NewTicker(p.probeInterval)
	defer ticker.Stop()

	p.probeAll()
	for {
		select {
		case <-ticker.C:
			p.probeAll()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) probeAll() {
	for _, c := range p.clients {
		p.probe(c)
	}
}

// probe checks one client with eth_blockNumber and updates its health and
// block height.
func (p *Pool) probe(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := jsonrpc.NewRequest("eth_blockNumber", []interface{}{}, jsonrpc.NewIDInt(1))
	if err != nil {
		return
	}

	resp, err := c.Execute(ctx, req)
	if err != nil || resp.HasError() {
		if c.IsHealthy() {
			p.logger.Warn().Str("node", c.Name()).Msg("node unhealthy")
		}
		c.SetHealthy(false)
		return
	}

	var blockHex string
	if err := unmarshalResult(resp, &blockHex); err != nil {
		c.SetHealthy(false)
		return
	}
	block, err := strconv.ParseUint(strings.TrimPrefix(blockHex, "0x"), 16, 64)
	if err != nil {
		c.SetHealthy(false)
		return
	}

	if !c.IsHealthy() {
		p.logger.Info().Str("node", c.Name()).Uint64("block", block).Msg("node recovered")
	}
	c.block.Store(block)
	c.SetHealthy(true)
}

func unmarshalResult(resp *jsonrpc.Response, dst interface{}) error {
	if resp.Result == nil {
		return fmt.Errorf("empty result")
	}
	return json.Unmarshal(resp.Result, dst)
}
