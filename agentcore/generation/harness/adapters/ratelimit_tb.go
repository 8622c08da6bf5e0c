package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// TokenBucket limits generation calls per key (model id). Each Acquire
// consumes one token; tokens refill one per refillRate up to capacity.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration
	maxWait    time.Duration
	now        func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a limiter that fails immediately when a bucket is empty.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// WithMaxWait lets Acquire block up to d for the next token.
func (tb *TokenBucket) WithMaxWait(d time.Duration) *TokenBucket {
	tb.maxWait = d
	return tb
}

// Acquire takes a token for key. The returned release func is a no-op kept
// for the RateLimiter contract; tokens come back only through refill.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := tb.now().Add(tb.maxWait)
	for {
		wait, ok := tb.take(key)
		if ok {
			return func() {}, nil
		}
		if tb.maxWait <= 0 || tb.now().Add(wait).After(deadline) {
			return nil, &RateLimitError{Key: key, RetryAfter: wait}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token or reports how long until the next refill.
func (tb *TokenBucket) take(key string) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	if refills := int(now.Sub(b.lastRefill) / tb.refillRate); refills > 0 {
		b.tokens = min(b.tokens+refills, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(refills) * tb.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return 0, true
	}
	return b.lastRefill.Add(tb.refillRate).Sub(now), false
}

// RateLimitError is returned when a bucket stays empty past the allowed wait.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (retry after %s)", e.Key, e.RetryAfter)
}

// Ensure TokenBucket implements the RateLimiter interface.
var _ ports.RateLimiter = (*TokenBucket)(nil)
