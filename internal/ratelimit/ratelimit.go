package ratelimit

import (
	"sync"
	"time"
)

// bucket tracks the token state for a single key.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a token-bucket limiter keyed by client address. Each key may
// spend up to attempts tokens, refilled evenly over window.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	attempts int
	window   time.Duration
	now      func() time.Time // injectable clock for testing
}

// New creates a Limiter that allows attempts per window for each key.
func New(attempts int, window time.Duration) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*bucket),
		attempts: attempts,
		window:   window,
		now:      time.Now,
	}
}

// getBucket returns the bucket for key, creating a full one if needed.
// Must be called with l.mu held.
func (l *Limiter) getBucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.attempts), lastRefill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// refill adds tokens based on time elapsed since the last refill.
// Must be called with l.mu held.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * float64(l.attempts) / l.window.Seconds()
	if b.tokens > float64(l.attempts) {
		b.tokens = float64(l.attempts)
	}
	b.lastRefill = now
}

// Allow consumes one token for key and reports whether the attempt may
// proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long key must wait for its next token. Zero means
// an attempt would be allowed now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	l.refill(b)
	if b.tokens >= 1 {
		return 0
	}
	perToken := l.window.Seconds() / float64(l.attempts)
	wait := (1 - b.tokens) * perToken
	return time.Duration(wait * float64(time.Second)).Round(time.Millisecond)
}

// Status returns the limit, the whole tokens left for key, and when its
// bucket will be full again.
func (l *Limiter) Status(key string) (limit int, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	limit = l.attempts
	remaining = int(b.tokens)
	if remaining < 0 {
		remaining = 0
	}
	deficit := float64(l.attempts) - b.tokens
	if deficit <= 0 {
		resetAt = l.now()
	} else {
		perSecond := float64(l.attempts) / l.window.Seconds()
		resetAt = l.now().Add(time.Duration(deficit / perSecond * float64(time.Second)))
	}
	return
}

// Reset forgets key. A successful login resets its client's budget.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Prune drops buckets that have refilled completely and returns how many
// were removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, b := range l.buckets {
		l.refill(b)
		if b.tokens >= float64(l.attempts) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
