// Package ratelimit throttles session creation per client address.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket refills at rate tokens per second up to capacity.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return newBucket(rate, capacity, time.Now)
}

func newBucket(rate float64, capacity int, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		rate:     rate,
		last:     now(),
		now:      now,
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.last).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.last = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.last
}

// Limiter combines an optional global bucket with one bucket per key.
// A rate of 0 disables that tier.
type Limiter struct {
	mu      sync.Mutex
	global  *TokenBucket
	perKey  map[string]*TokenBucket
	keyRate float64
	burst   int
	now     func() time.Time
}

// NewLimiter creates a limiter. globalRate and keyRate are in events per
// second; burst is the capacity of every bucket.
func NewLimiter(globalRate, keyRate float64, burst int) *Limiter {
	return newLimiter(globalRate, keyRate, burst, time.Now)
}

func newLimiter(globalRate, keyRate float64, burst int, now func() time.Time) *Limiter {
	l := &Limiter{perKey: make(map[string]*TokenBucket), keyRate: keyRate, burst: burst, now: now}
	if globalRate > 0 {
		l.global = newBucket(globalRate, burst, now)
	}
	return l
}

// Allow reports whether one more event for key fits both tiers.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if l.keyRate > 0 {
		l.mu.Lock()
		b, ok := l.perKey[key]
		if !ok {
			b = newBucket(l.keyRate, l.burst, l.now)
			l.perKey[key] = b
		}
		l.mu.Unlock()
		if !b.Allow() {
			return false
		}
	}
	if l.global != nil && !l.global.Allow() {
		return false
	}
	return true
}

// Sweep forgets keys that have not been seen for idle and returns how many
// were removed.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.perKey {
		if b.idleSince().Before(cutoff) {
			delete(l.perKey, k)
			n++
		}
	}
	return n
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}
