package host

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/multicall"
)

type cacheEntry struct {
	length    uint64
	balance   *uint256.Int
	facts     *multicall.ChainFacts
	expiresAt time.Time
}

// CachedEnv decorates an Environment with a TTL'd LRU cache over the
// introspection queries. Calls and snapshots pass through untouched:
// introspection cannot fail and has no policy dimension, so it is the only
// safe layer to memoize.
type CachedEnv struct {
	inner  multicall.Environment
	cache  *lru.Cache[string, *cacheEntry]
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEnv wraps inner with an introspection cache of the given size
// and entry TTL.
func NewCachedEnv(inner multicall.Environment, size int, ttl time.Duration, logger zerolog.Logger) (*CachedEnv, error) {
	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachedEnv{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "envcache").Logger(),
	}, nil
}

func (c *CachedEnv) get(key string) (*cacheEntry, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry, true
}

func (c *CachedEnv) put(key string, entry *cacheEntry) {
	entry.expiresAt = time.Now().Add(c.ttl)
	c.cache.Add(key, entry)
}

// Call implements multicall.Environment.
func (c *CachedEnv) Call(ctx context.Context, target common.Address, data []byte, value *uint256.Int) (multicall.CallResult, error) {
	return c.inner.Call(ctx, target, data, value)
}

// StaticCall implements multicall.Environment.
func (c *CachedEnv) StaticCall(ctx context.Context, target common.Address, data []byte) (bool, []byte, error) {
	return c.inner.StaticCall(ctx, target, data)
}

// CodeLength implements multicall.Environment.
func (c *CachedEnv) CodeLength(ctx context.Context, addr common.Address) (uint64, error) {
	key := "code:" + addr.Hex()
	if entry, ok := c.get(key); ok {
		return entry.length, nil
	}
	n, err := c.inner.CodeLength(ctx, addr)
	if err != nil {
		return 0, err
	}
	c.put(key, &cacheEntry{length: n})
	return n, nil
}

// Balance implements multicall.Environment.
func (c *CachedEnv) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	key := "balance:" + addr.Hex()
	if entry, ok := c.get(key); ok {
		return entry.balance.Clone(), nil
	}
	b, err := c.inner.Balance(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.put(key, &cacheEntry{balance: b.Clone()})
	return b, nil
}

// ChainFacts implements multicall.Environment.
func (c *CachedEnv) ChainFacts(ctx context.Context) (*multicall.ChainFacts, error) {
	if entry, ok := c.get("chainfacts"); ok {
		facts := *entry.facts
		return &facts, nil
	}
	facts, err := c.inner.ChainFacts(ctx)
	if err != nil {
		return nil, err
	}
	cached := *facts
	c.put("chainfacts", &cacheEntry{facts: &cached})
	return facts, nil
}

// Snapshot implements multicall.Environment.
func (c *CachedEnv) Snapshot() int {
	return c.inner.Snapshot()
}

// RevertToSnapshot implements multicall.Environment. Cached introspection
// may be stale after a revert; entries age out with the TTL.
func (c *CachedEnv) RevertToSnapshot(id int) {
	c.inner.RevertToSnapshot(id)
}
