// Package config loads and validates the service configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.RPCPort == 0 {
		cfg.RPCPort = DefaultRPCPort
	}
	if cfg.WSPort == 0 {
		cfg.WSPort = DefaultWSPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = DefaultHealthCheckInterval
	}
	for i := range cfg.Nodes {
		if cfg.Nodes[i].Role == "" {
			cfg.Nodes[i].Role = DefaultNodeRole
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Nodes) == 0 {
		return errors.New("at least one node is required")
	}

	nodeNames := make(map[string]bool)
	for i, n := range cfg.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node[%d]: name is required", i)
		}
		if nodeNames[n.Name] {
			return fmt.Errorf("node[%d]: duplicate node name '%s'", i, n.Name)
		}
		nodeNames[n.Name] = true

		if n.RPCURL == "" && n.WSURL == "" {
			return fmt.Errorf("node '%s': at least one of rpcUrl or wsUrl is required", n.Name)
		}
		if n.Role != RoleMain && n.Role != RoleFallback {
			return fmt.Errorf("node '%s': role must be 'main' or 'fallback'", n.Name)
		}
	}

	if cfg.RPCPort < 1 || cfg.RPCPort > 65535 {
		return fmt.Errorf("rpcPort must be between 1 and 65535")
	}
	if cfg.WSPort < 1 || cfg.WSPort > 65535 {
		return fmt.Errorf("wsPort must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.HealthCheckInterval < 0 {
		return fmt.Errorf("healthCheckInterval must be non-negative")
	}

	if cfg.FallbackAggregator != "" && !common.IsHexAddress(cfg.FallbackAggregator) {
		return fmt.Errorf("fallbackAggregator must be a hex address")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	return nil
}

// FallbackAddress returns the configured fallback aggregator address, or
// nil when the relay is disabled.
func (c *Config) FallbackAddress() *common.Address {
	if c.FallbackAggregator == "" {
		return nil
	}
	addr := common.HexToAddress(c.FallbackAggregator)
	return &addr
}
