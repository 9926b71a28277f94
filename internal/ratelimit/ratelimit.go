// Package ratelimit provides the global token bucket guarding outbound calls
// to the upstream dictionary API.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Bucket is a token bucket with lazy refill. The quota protects the service's
// outbound identity against upstream throttling, so a single Bucket is shared
// by every caller rather than keeping one per client.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	now func() time.Time
}

// New creates a bucket allowing requestsPerMinute upstream calls, refilling
// continuously at requestsPerMinute/60 tokens per second.
func New(requestsPerMinute int) *Bucket {
	capacity := float64(requestsPerMinute)
	b := &Bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: capacity / 60.0,
		now:        time.Now,
	}
	b.lastRefill = b.now()
	slog.Default().Debug("initializing rate limiter", "requestsPerMinute", requestsPerMinute)
	return b
}

// refillLocked adds tokens for the elapsed time, capped at capacity.
// Callers must hold the mutex.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	}
	b.lastRefill = now
}

// Consume atomically refills and takes n tokens. On denial the token count is
// left unchanged.
func (b *Bucket) Consume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	slog.Default().Warn("rate limit exceeded", "requested", n, "remaining", int(b.tokens))
	return false
}

// Remaining reports the currently available whole tokens without consuming.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return int(b.tokens)
}

// Reset restores the bucket to full capacity.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = b.capacity
	b.lastRefill = b.now()
}
