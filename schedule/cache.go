package schedule

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

// ExpansionCache memoizes rule expansions per (event, version, range). The
// event version is part of the key, so any split or rule edit naturally
// invalidates stale entries without explicit eviction.
type ExpansionCache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex

	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

type cacheEntry struct {
	dates      []recurrence.Date
	expiresAt  time.Time
	accessedAt time.Time
}

// CacheConfig holds configuration for the expansion cache.
type CacheConfig struct {
	TTL             time.Duration // how long entries stay valid
	MaxEntries      int           // maximum entries before cleanup
	CleanupInterval time.Duration // how often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for interactive calendars.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewExpansionCache creates a cache and starts its cleanup goroutine. Call
// Close when done.
func NewExpansionCache(config CacheConfig) *ExpansionCache {
	c := &ExpansionCache{
		entries:         make(map[string]*cacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func cacheKey(event storage.Event, rangeStart, rangeEnd recurrence.Date) string {
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%s|%d|%s|%s", event.ID, event.Version, rangeStart, rangeEnd)
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Get retrieves a cached expansion if present and unexpired.
func (c *ExpansionCache) Get(event storage.Event, rangeStart, rangeEnd recurrence.Date) ([]recurrence.Date, bool) {
	key := cacheKey(event, rangeStart, rangeEnd)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	entry.accessedAt = now
	c.mu.Unlock()
	return entry.dates, true
}

// Set stores an expansion result.
func (c *ExpansionCache) Set(event storage.Event, rangeStart, rangeEnd recurrence.Date, dates []recurrence.Date) {
	key := cacheKey(event, rangeStart, rangeEnd)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{
		dates:      dates,
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	}
	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// cleanup removes expired entries, then the least recently accessed entries
// while still over the limit. Callers must hold the write lock.
func (c *ExpansionCache) cleanup() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}

	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.accessedAt.Before(oldest) {
				oldestKey, oldest = key, entry.accessedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

func (c *ExpansionCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.cleanup()
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache.
func (c *ExpansionCache) Close() {
	close(c.stopCleanup)
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Stats reports cache occupancy.
func (c *ExpansionCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{TotalEntries: len(c.entries)}
	now := time.Now()
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			stats.ExpiredEntries++
		}
	}
	stats.ActiveEntries = stats.TotalEntries - stats.ExpiredEntries
	return stats
}

// CacheStats provides information about cache contents.
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
