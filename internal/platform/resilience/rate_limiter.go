// Package resilience provides rate limiting and circuit breaking for
// upstream calls. There is deliberately no retry helper here: a failed
// resolution is cached as unresolved rather than retried.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimitExceeded is returned when rate limit is exceeded
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter implements token bucket rate limiting
type RateLimiter struct {
	rate       float64 // Tokens per second
	burst      int     // Max tokens (bucket size)
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter allowing rate requests per
// second with the given burst size
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = int(rate)
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// NewRateLimiterFromRPM creates a rate limiter from requests per minute
func NewRateLimiterFromRPM(requestsPerMinute, burst int) *RateLimiter {
	return NewRateLimiter(float64(requestsPerMinute)/60.0, burst)
}

// Allow reports whether a request may proceed now, consuming a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		select {
		case <-time.After(rl.waitTime()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// refill adds tokens based on elapsed time (caller must hold lock)
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate)

	rl.tokens += elapsed.Seconds() * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}

	rl.lastUpdate = now
}

// waitTime estimates how long until the next token is available
func (rl *RateLimiter) waitTime() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	needed := 1.0 - rl.tokens
	if needed < 0 {
		needed = 0
	}

	wait := time.Duration(needed / rl.rate * float64(time.Second))
	if wait < 5*time.Millisecond {
		wait = 5 * time.Millisecond
	}
	return wait
}
