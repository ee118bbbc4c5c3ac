package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited wraps a failed wait for a token.
var ErrRateLimited = errors.New("rate limited")

// RateLimiter keeps one token bucket per endpoint
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
	mu       sync.RWMutex
}

// NewRateLimiter creates limiters allowing rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// GetLimiter returns or creates the limiter for name
func (rl *RateLimiter) GetLimiter(name string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[name]; exists {
		return limiter
	}

	limit := rate.Inf
	if rl.rps > 0 {
		limit = rate.Limit(rl.rps)
	}
	limiter := rate.NewLimiter(limit, rl.burst)
	rl.limiters[name] = limiter

	return limiter
}

// Wait waits for the rate limiter to allow the request
func (rl *RateLimiter) Wait(ctx context.Context, name string) error {
	if err := rl.GetLimiter(name).Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// Allow checks if the request is allowed without waiting
func (rl *RateLimiter) Allow(name string) bool {
	return rl.GetLimiter(name).Allow()
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats(name string) map[string]interface{} {
	limiter := rl.GetLimiter(name)

	return map[string]interface{}{
		"name":   name,
		"limit":  float64(limiter.Limit()),
		"burst":  limiter.Burst(),
		"tokens": limiter.Tokens(),
	}
}

// Reset resets the rate limiter for name
func (rl *RateLimiter) Reset(name string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limiters, name)
}
