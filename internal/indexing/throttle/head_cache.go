package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/nftscan/internal/infra/chain"
)

// HeadCache caches the result of GetLatestBlock to reduce redundant API calls.
// Concurrent query runs for different keys share one head lookup per TTL.
type HeadCache struct {
	source chain.HeadSource
	ttl    time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

var _ chain.HeadSource = (*HeadCache)(nil)

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(source chain.HeadSource, ttl time.Duration) *HeadCache {
	return &HeadCache{
		source: source,
		ttl:    ttl,
	}
}

// GetLatestBlock returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *HeadCache) GetLatestBlock(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.source.GetLatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	// Never move backwards within one process; a lagging provider behind a
	// failover would otherwise shrink the window.
	if head > c.cached || time.Since(c.cachedAt) >= c.ttl {
		c.cached = max(head, c.cached)
		c.cachedAt = time.Now()
	}
	cached := c.cached
	c.mu.Unlock()

	return cached, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
