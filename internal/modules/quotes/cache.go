package quotes

import (
	"sync"
	"time"

	"github.com/papertrade/papertrade/internal/domain"
)

// Cache is a process-wide TTL cache for quotes, keyed by normalized ticker.
// It is a performance cache, not a source of truth: execution prices are
// frozen into transactions at trade time, and staleness within the TTL is
// acceptable on the read path.
//
// The cache is an explicitly constructed component owned by the quote
// service, so tests can build isolated instances.
type Cache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quote    domain.Quote
	cachedAt time.Time
}

// NewCache creates a quote cache with the given freshness window
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached quote for a ticker if it is still fresh
func (c *Cache) Get(ticker string) (*domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ticker]
	if !ok || time.Since(entry.cachedAt) >= c.ttl {
		return nil, false
	}

	quote := entry.quote
	return &quote, true
}

// Set stores a quote under its ticker
func (c *Cache) Set(ticker string, quote domain.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ticker] = cacheEntry{
		quote:    quote,
		cachedAt: time.Now(),
	}
}

// Prune removes expired entries and returns how many were dropped
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for ticker, entry := range c.entries {
		if time.Since(entry.cachedAt) >= c.ttl {
			delete(c.entries, ticker)
			pruned++
		}
	}
	return pruned
}

// Clear drops all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, fresh or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
