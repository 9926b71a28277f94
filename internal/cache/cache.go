// Package cache provides the in-process response cache with TTL expiry and
// LRU eviction under a size bound.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// KeyMode selects how cache keys are derived from (word, variant).
type KeyMode string

const (
	// KeyModeHash derives a fixed-width md5 digest. Collisions across
	// distinct (word, variant) pairs are assumed negligible and are not
	// detected.
	KeyModeHash KeyMode = "hash"
	// KeyModePlain keeps the reversible "word:variant" form, for debugging.
	KeyModePlain KeyMode = "plain"
	// KeyModeBoth concatenates the plain form and the digest.
	KeyModeBoth KeyMode = "both"
)

// Key derives the cache key for a word and variant under the given mode.
// Identical inputs always produce identical keys within one mode.
func Key(word, variant string, mode KeyMode) string {
	plain := fmt.Sprintf("%s:%s", word, variant)
	switch mode {
	case KeyModePlain:
		return plain
	case KeyModeBoth:
		return plain + ":" + digest(plain)
	default:
		return digest(plain)
	}
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Stats reports cache state for observability.
type Stats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	TTL         time.Duration `json:"ttl"`
	Utilization float64       `json:"utilization"`
	Hits        uint64        `json:"hits"`
	Misses      uint64        `json:"misses"`
	Evictions   uint64        `json:"evictions"`
}

// Cache maps (word, variant) to a serialized response with TTL expiry and
// LRU eviction. Reads refresh access times and expired reads delete, so every
// operation takes the mutex; the entry table and the access-time side table
// are only ever mutated together under it.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]entry
	accessTimes map[string]time.Time
	maxSize     int
	ttl         time.Duration
	keyMode     KeyMode
	hits        uint64
	misses      uint64
	evictions   uint64

	now func() time.Time
}

// New creates a cache holding at most maxSize entries, expiring them after
// the default ttl.
func New(maxSize int, ttl time.Duration, keyMode KeyMode) *Cache {
	slog.Default().Debug("initializing response cache",
		"maxSize", maxSize,
		"ttl", ttl,
		"keyMode", keyMode,
	)
	return &Cache{
		entries:     make(map[string]entry),
		accessTimes: make(map[string]time.Time),
		maxSize:     maxSize,
		ttl:         ttl,
		keyMode:     keyMode,
		now:         time.Now,
	}
}

// Get returns the cached value for a word and variant. Expired entries are
// deleted on read and reported as a miss; a hit refreshes the access time.
func (c *Cache) Get(word, variant string) (string, bool) {
	key := Key(word, variant, c.keyMode)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}
	now := c.now()
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		delete(c.accessTimes, key)
		c.misses++
		return "", false
	}
	c.accessTimes[key] = now
	c.hits++
	return e.value, true
}

// Set stores a value under a word and variant. A non-positive ttl means the
// cache default; shorter TTLs are used for negative caching of empty results.
// When the cache is full and the key is new, the least recently accessed
// entry is evicted first.
func (c *Cache) Set(word, variant, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(word, variant, c.keyMode)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	now := c.now()
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	c.accessTimes[key] = now
}

// evictLRU removes the single entry with the oldest access time. Ties are
// broken by map iteration order, which is acceptable since access times are
// continuously valued in practice.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, accessedAt := range c.accessTimes {
		if oldestKey == "" || accessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = accessedAt
		}
	}
	if oldestKey == "" {
		return
	}
	delete(c.entries, oldestKey)
	delete(c.accessTimes, oldestKey)
	c.evictions++
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.accessTimes = make(map[string]time.Time)
}

// Size returns the number of live entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	utilization := 0.0
	if c.maxSize > 0 {
		utilization = float64(len(c.entries)) / float64(c.maxSize)
	}
	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		TTL:         c.ttl,
		Utilization: utilization,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
	}
}
