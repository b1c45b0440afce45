// Package ratelimit implements a single-bucket token-bucket rate limiter,
// used to throttle how often the change-notification fan-out may push a
// fresh JobStats snapshot to the storage backend's listeners.
package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter: it holds up to burst tokens,
// refilled continuously at ratePerSecond, and Allow reports whether a
// token was available to consume.
type RateLimiter struct {
	mu sync.Mutex

	ratePerSecond float64
	burst         float64
	tokens        float64
	lastRefill    time.Time

	now func() time.Time
}

// New creates a RateLimiter that allows ratePerSecond events per second on
// average, bursting up to burst events.
func New(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		ratePerSecond: ratePerSecond,
		burst:         float64(burst),
		tokens:        float64(burst),
		lastRefill:    time.Now(),
		now:           time.Now,
	}
}

// Allow consumes a token if one is available and reports whether it did.
// Calls in the same instant are allowed up to burst times; after that one
// call is allowed each time a token refills, every 1/ratePerSecond seconds.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.ratePerSecond
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// SetLimit adjusts the refill rate and burst size, e.g. in response to an
// operator changing changeNotificationRateLimit at runtime.
func (rl *RateLimiter) SetLimit(ratePerSecond float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if burst < 1 {
		burst = 1
	}
	rl.ratePerSecond = ratePerSecond
	rl.burst = float64(burst)
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
}
