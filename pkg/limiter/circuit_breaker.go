package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Name        string                             `json:"name"`
	MaxRequests uint32                             `json:"max_requests"`
	Interval    time.Duration                      `json:"interval"`
	Timeout     time.Duration                      `json:"timeout"`
	ReadyToTrip func(counts gobreaker.Counts) bool `json:"-"`
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Open circuit if failure rate is > 50% and we have at least 5 requests
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
}

// ErrCircuitOpen is returned without calling out while a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(name string, from, to gobreaker.State)

// CircuitBreakerManager manages one circuit breaker per endpoint
type CircuitBreakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	configs  map[string]*CircuitBreakerConfig
	onChange StateChangeFunc
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(onChange StateChangeFunc) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  make(map[string]*CircuitBreakerConfig),
		onChange: onChange,
	}
}

// Configure sets the configuration used when the breaker for name is first created.
func (cbm *CircuitBreakerManager) Configure(name string, config *CircuitBreakerConfig) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	cbm.configs[name] = config
}

// GetBreaker returns or creates the circuit breaker for name
func (cbm *CircuitBreakerManager) GetBreaker(name string) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[name]; exists {
		return breaker
	}

	cbConfig, ok := cbm.configs[name]
	if !ok {
		cbConfig = DefaultCircuitBreakerConfig(name)
		cbm.configs[name] = cbConfig
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cbConfig.Name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: cbConfig.ReadyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if cbm.onChange != nil {
				cbm.onChange(name, from, to)
			}
		},
	})

	cbm.breakers[name] = breaker
	return breaker
}

// Execute executes a function through the circuit breaker
func (cbm *CircuitBreakerManager) Execute(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	breaker := cbm.GetBreaker(name)

	result, err := breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker execution failed: %w", err)
	}

	return result, nil
}

// GetState returns the current state of a circuit breaker
func (cbm *CircuitBreakerManager) GetState(name string) gobreaker.State {
	return cbm.GetBreaker(name).State()
}

// GetStats returns circuit breaker statistics
func (cbm *CircuitBreakerManager) GetStats(name string) map[string]interface{} {
	breaker := cbm.GetBreaker(name)
	counts := breaker.Counts()

	return map[string]interface{}{
		"name":                 name,
		"state":                breaker.State().String(),
		"requests":             counts.Requests,
		"total_success":        counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_success":  counts.ConsecutiveSuccesses,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// Reset drops the breaker for name; the next call starts closed.
func (cbm *CircuitBreakerManager) Reset(name string) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	delete(cbm.breakers, name)
}

// IsOpen checks if the circuit breaker is open
func (cbm *CircuitBreakerManager) IsOpen(name string) bool {
	return cbm.GetState(name) == gobreaker.StateOpen
}

// IsClosed checks if the circuit breaker is closed
func (cbm *CircuitBreakerManager) IsClosed(name string) bool {
	return cbm.GetState(name) == gobreaker.StateClosed
}

// IsBreakerRejection reports whether err came from an open or saturated breaker
// rather than from the protected call.
func IsBreakerRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
