// Package ratelimit is a keyed token-bucket limiter shared by the SSH and
// HTTP front ends.
package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultPerMinute = 30
	defaultBurst     = 10
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter tracks one bucket per key. The zero value is not usable; call New.
type Limiter struct {
	mu            sync.Mutex
	buckets       map[string]bucket
	ratePerSecond float64
	burst         float64
	now           func() time.Time
}

// New returns a limiter refilling limitPerMinute tokens per minute up to
// burst. Non-positive arguments fall back to 30/min and a burst of 10.
func New(limitPerMinute, burst int) *Limiter {
	if limitPerMinute <= 0 {
		limitPerMinute = defaultPerMinute
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Limiter{
		buckets:       make(map[string]bucket),
		ratePerSecond: float64(limitPerMinute) / 60.0,
		burst:         float64(burst),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, l.now())
}

// AllowAt is Allow with an explicit clock.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b.last.IsZero() {
		b = bucket{tokens: l.burst, last: now}
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.ratePerSecond
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}

	if b.tokens < 1 {
		l.buckets[key] = b
		return false
	}

	b.tokens--
	l.buckets[key] = b
	return true
}

// Sweep drops buckets that would be full again by now and returns how many
// were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		refill := now.Sub(b.last).Seconds() * l.ratePerSecond
		if b.tokens+refill >= l.burst {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
