// Package ratelimit paces outbound calls per logical endpoint.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinInterval is the minimum spacing between two admitted calls on one key.
const MinInterval = time.Second

// Limiter admits at most one call per interval for each endpoint key. A denied
// call is not queued and does not consume the key's allowance.
type Limiter struct {
	interval time.Duration
	mu       sync.Mutex
	byKey    map[string]*rate.Limiter
	now      func() time.Time
}

// New creates a limiter with the given spacing; non-positive values fall back
// to MinInterval.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = MinInterval
	}
	return &Limiter{
		interval: interval,
		byKey:    make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Admit reports whether a call on key may proceed now.
func (l *Limiter) Admit(key string) bool {
	return l.AdmitAt(key, l.now())
}

// AdmitAt reports whether a call on key may proceed at now, recording it when
// admitted.
func (l *Limiter) AdmitAt(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.byKey[key]
	if !ok {
		// Burst of one turns the token bucket into strict minimum spacing.
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.byKey[key] = lim
	}
	return lim.AllowN(now, 1)
}

// Keys returns the number of endpoint keys seen so far.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
