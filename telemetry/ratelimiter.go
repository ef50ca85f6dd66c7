package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiter throttles self-logging so pipeline failures cannot flood
// the host application's logs. Suppressed events are counted so the
// next allowed log line can report how many were skipped.
type RateLimiter struct {
	interval   time.Duration
	lastTime   time.Time
	mu         sync.Mutex
	suppressed atomic.Uint64
}

// NewRateLimiter creates a limiter allowing one event per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow returns true if an action is allowed based on rate limiting.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	r.suppressed.Add(1)
	return false
}

// Suppressed returns and resets the count of events skipped since the
// last call.
func (r *RateLimiter) Suppressed() uint64 {
	return r.suppressed.Swap(0)
}
