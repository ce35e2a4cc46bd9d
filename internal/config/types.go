package config

import "time"

// Role defines the node endpoint role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Config represents the main configuration structure
type Config struct {
	Host                string       `json:"host"`
	RPCPort             int          `json:"rpcPort"`
	WSPort              int          `json:"wsPort"`
	LogLevel            string       `json:"logLevel"`
	MaxBodySize         int64        `json:"maxBodySize"`
	RequestTimeout      int          `json:"requestTimeout"`      // ms
	HealthCheckInterval int          `json:"healthCheckInterval"` // ms
	FallbackAggregator  string       `json:"fallbackAggregator"`  // hex address, empty disables the relay
	Cache               *CacheConfig `json:"cache,omitempty"`
	Nodes               []NodeConfig `json:"nodes"`
}

// CacheConfig controls the introspection cache
type CacheConfig struct {
	Enabled bool `json:"enabled"`
	TTL     int  `json:"ttl"`  // seconds
	Size    int  `json:"size"` // number of entries
}

// NodeConfig represents a single chain node endpoint
type NodeConfig struct {
	Name     string `json:"name"`
	RPCURL   string `json:"rpcUrl"`
	WSURL    string `json:"wsUrl"`
	Role     Role   `json:"role"`
	PreferWS bool   `json:"preferWs"`
}

// Default values
const (
	DefaultHost                = "localhost"
	DefaultRPCPort             = 8645
	DefaultWSPort              = 8546
	DefaultLogLevel            = "info"
	DefaultMaxBodySize         = int64(0) // 0 means no limit
	DefaultRequestTimeout      = 5000     // ms
	DefaultHealthCheckInterval = 10000    // ms
	DefaultNodeRole            = RoleMain
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetHealthCheckIntervalDuration returns health check interval as time.Duration
func (c *Config) GetHealthCheckIntervalDuration() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Millisecond
}

// IsCacheEnabled returns true if the introspection cache is configured on
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// GetCacheTTLDuration returns the cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
