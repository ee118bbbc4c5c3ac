package limiter

import (
	"context"
	"fmt"
)

// ProtectionManager integrates rate limiting, retries, and circuit breaking
// around calls to one external endpoint.
type ProtectionManager struct {
	rateLimiter    *RateLimiter
	retryManager   *RetryManager
	circuitBreaker *CircuitBreakerManager
}

// NewProtectionManager wires the three mechanisms together. Nil parts are replaced by defaults.
func NewProtectionManager(rl *RateLimiter, rm *RetryManager, cbm *CircuitBreakerManager) *ProtectionManager {
	if rl == nil {
		rl = NewRateLimiter(0, 1)
	}
	if rm == nil {
		rm = NewRetryManager(nil)
	}
	if cbm == nil {
		cbm = NewCircuitBreakerManager(nil)
	}
	return &ProtectionManager{
		rateLimiter:    rl,
		retryManager:   rm,
		circuitBreaker: cbm,
	}
}

// ExecuteWithProtection executes a function with all protection mechanisms.
// The breaker counts one failure per exhausted retry sequence.
func (pm *ProtectionManager) ExecuteWithProtection(
	ctx context.Context,
	name string,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if pm.circuitBreaker.IsOpen(name) {
		return nil, fmt.Errorf("endpoint %s: %w", name, ErrCircuitOpen)
	}

	if err := pm.rateLimiter.Wait(ctx, name); err != nil {
		return nil, fmt.Errorf("rate limiting failed: %w", err)
	}

	result, err := pm.circuitBreaker.Execute(ctx, name, func() (interface{}, error) {
		return pm.retryManager.Execute(ctx, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("protected execution failed: %w", err)
	}

	return result, nil
}

// GetStats returns statistics for all protection mechanisms
func (pm *ProtectionManager) GetStats(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":            name,
		"rate_limiter":    pm.rateLimiter.GetStats(name),
		"circuit_breaker": pm.circuitBreaker.GetStats(name),
		"retry_config": map[string]interface{}{
			"max_retries":      pm.retryManager.config.MaxRetries,
			"base_delay":       pm.retryManager.config.BaseDelay.String(),
			"max_delay":        pm.retryManager.config.MaxDelay.String(),
			"backoff_factor":   pm.retryManager.config.BackoffFactor,
			"jitter":           pm.retryManager.config.Jitter,
			"retryable_errors": pm.retryManager.config.RetryableErrors,
		},
	}
}

// Reset resets the limiter and breaker of name
func (pm *ProtectionManager) Reset(name string) {
	pm.rateLimiter.Reset(name)
	pm.circuitBreaker.Reset(name)
}
