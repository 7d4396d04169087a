// Package ratelimit throttles repeated requests from one client with a
// token bucket per key.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter allows rate requests per window for each key. Tokens refill
// continuously, so a burst of rate is possible after a quiet window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter that allows rate requests per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// getBucket must be called with l.mu held.
func (l *Limiter) getBucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastRefill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// refill must be called with l.mu held.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(float64(l.rate), b.tokens+elapsed*l.perSecond())
	b.lastRefill = now
}

func (l *Limiter) perSecond() float64 {
	return float64(l.rate) / l.window.Seconds()
}

// Allow consumes one token for key and reports whether it was available.
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

// Status reports the limit, the whole tokens left for key and how long
// until the next token is available.
func (l *Limiter) Status(key string) (limit, remaining int, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	remaining = int(b.tokens)
	if b.tokens < 1 {
		missing := 1 - b.tokens
		retryAfter = time.Duration(missing / l.perSecond() * float64(time.Second))
	}
	return l.rate, remaining, retryAfter
}

// Reset forgets key, as after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
