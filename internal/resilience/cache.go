package resilience

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

// Cache holds the last good result per operation identity. It is local to
// one adapter and never authoritative.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Len() int
}

// DefaultCacheSize bounds MemoryCache when no size is given.
const DefaultCacheSize = 1000

// MemoryCache is a size-bounded LRU Cache safe for concurrent use.
type MemoryCache struct {
	entries *lru.Cache[string, any]
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("create fallback cache: %w", err)
	}
	return &MemoryCache{entries: entries}, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

// Set implements Cache.
func (c *MemoryCache) Set(key string, value any) {
	c.entries.Add(key, value)
	metrics.FallbackCacheEntries.Set(float64(c.entries.Len()))
}

// Len implements Cache.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
