// Package pricing resolves sale prices for mirrored items from an external market source,
// with a TTL cache, request pacing, currency normalization and a deterministic fallback.
package pricing

import (
	"strings"
	"sync"
	"time"

	"github.com/and161185/storefront-sync/internal/clock"
	"github.com/and161185/storefront-sync/internal/model"
)

// NormalizeKey is the cache key for an item name: trimmed, lower-cased, inner whitespace collapsed.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

type cacheEntry struct {
	quote    model.PriceQuote
	storedAt time.Time
}

// Cache is an in-memory TTL cache of price quotes. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	clk     clock.Clock
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewCache constructs a cache; clk nil means wall clock.
func NewCache(ttl time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.System{}
	}
	return &Cache{clk: clk, ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the quote stored under key if it is younger than the TTL.
func (c *Cache) Get(key string) (model.PriceQuote, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clk.Now().Sub(e.storedAt) >= c.ttl {
		return model.PriceQuote{}, false
	}
	return e.quote, true
}

// Put stores q under key stamped with the current time.
func (c *Cache) Put(key string, q model.PriceQuote) {
	now := c.clk.Now()
	q.ResolvedAt = now
	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: q, storedAt: now}
	c.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	now := c.clk.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
