// Package server wires the batch core, the entrypoint and the node pool
// into the HTTP and WebSocket service surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/config"
	"github.com/omnes-tech/multi-static-call/internal/entrypoint"
	"github.com/omnes-tech/multi-static-call/internal/host"
	"github.com/omnes-tech/multi-static-call/internal/multicall"
	"github.com/omnes-tech/multi-static-call/internal/node"
)

// Server owns the node pool, the environment stack and the two HTTP
// servers.
type Server struct {
	cfg       *config.Config
	pool      *node.Pool
	env       multicall.Environment
	handler   *Handler
	wsHandler *WSHandler
	rpcServer *http.Server
	wsServer  *http.Server
	logger    zerolog.Logger
}

// New creates a Server from config: node clients, failover pool, RPC
// environment (cached when configured) and the entrypoint surface.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	clients := make([]*node.Client, len(cfg.Nodes))
	for i, nodeCfg := range cfg.Nodes {
		clients[i] = node.NewClient(node.Config{
			Name:           nodeCfg.Name,
			RPCURL:         nodeCfg.RPCURL,
			WSURL:          nodeCfg.WSURL,
			Role:           node.Role(nodeCfg.Role),
			PreferWS:       nodeCfg.PreferWS,
			RequestTimeout: cfg.GetRequestTimeoutDuration(),
			Logger:         logger,
		})
	}
	pool := node.NewPool(clients, cfg.GetHealthCheckIntervalDuration(), logger)

	var env multicall.Environment = host.NewRPCEnv(pool, logger)
	if cfg.IsCacheEnabled() {
		cached, err := host.NewCachedEnv(env, cfg.Cache.Size, cfg.Cache.GetTTLDuration(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create introspection cache: %w", err)
		}
		env = cached
		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("introspection cache enabled")
	} else {
		logger.Info().Msg("introspection cache disabled")
	}

	fallback := cfg.FallbackAddress()
	if fallback != nil {
		logger.Info().Str("fallbackAggregator", fallback.Hex()).Msg("fallback relay enabled")
	} else {
		logger.Info().Msg("fallback relay disabled")
	}

	ep := entrypoint.New(env, fallback, logger)
	handler := NewHandler(env, ep, cfg.MaxBodySize, logger)

	return &Server{
		cfg:       cfg,
		pool:      pool,
		env:       env,
		handler:   handler,
		wsHandler: NewWSHandler(handler, logger),
		logger:    logger,
	}, nil
}

// Start launches the health probes and both listeners.
func (s *Server) Start() error {
	s.pool.Start()

	rpcAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.RPCPort)
	wsAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.WSPort)

	s.rpcServer = &http.Server{
		Addr:         rpcAddr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", rpcAddr).Msg("starting RPC server")
		if err := s.rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.wsServer = &http.Server{
		Addr:        wsAddr,
		Handler:     s.wsHandler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", wsAddr).Msg("starting WebSocket server")
		if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("WebSocket server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var rpcErr, wsErr error
	if s.rpcServer != nil {
		rpcErr = s.rpcServer.Shutdown(ctx)
	}
	if s.wsServer != nil {
		wsErr = s.wsServer.Shutdown(ctx)
	}

	s.pool.Stop()

	if rpcErr != nil {
		return fmt.Errorf("RPC server shutdown error: %w", rpcErr)
	}
	if wsErr != nil {
		return fmt.Errorf("WebSocket server shutdown error: %w", wsErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
