package promo

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a validation outcome is served from memory.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	validation Validation
	insertedAt time.Time
}

// ValidationCache memoizes validation outcomes keyed by (code, plan, user).
// Entries expire strictly after the TTL measured from insertion; an expired
// entry is purged on lookup and treated as absent. The cache is unbounded
// beyond TTL expiry since promo code keys are low-cardinality.
//
// The clock is injectable so tests control time deterministically.
type ValidationCache struct {
	mu    sync.Mutex
	items map[string]cacheEntry
	ttl   time.Duration
	clock func() time.Time
}

// NewValidationCache creates a cache with the given TTL and clock. A
// non-positive TTL falls back to DefaultCacheTTL; a nil clock falls back to
// time.Now.
func NewValidationCache(ttl time.Duration, clock func() time.Time) *ValidationCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &ValidationCache{
		items: make(map[string]cacheEntry),
		ttl:   ttl,
		clock: clock,
	}
}

// CacheKey builds the composite lookup key for a validation.
func CacheKey(code, planID, userID string) string {
	return strings.Join([]string{code, planID, userID}, "|")
}

// Get returns the cached validation for the key if present and unexpired.
func (c *ValidationCache) Get(key string) (Validation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return Validation{}, false
	}

	if c.clock().Sub(entry.insertedAt) > c.ttl {
		delete(c.items, key)
		return Validation{}, false
	}
	return entry.validation, true
}

// Set stores a validation outcome under the key, overwriting any existing
// entry. Last writer wins under overlapping async validations.
func (c *ValidationCache) Set(key string, v Validation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{validation: v, insertedAt: c.clock()}
}

// Clear drops all cached validations immediately.
func (c *ValidationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheEntry)
}

// Len returns the number of entries currently held, including expired ones
// not yet purged by lookups.
func (c *ValidationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
