package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryManager(t *testing.T) {
	config := DefaultRetryConfig()
	config.MaxRetries = 2
	config.BaseDelay = 10 * time.Millisecond

	rm := NewRetryManager(config)

	attempts := 0
	result, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return "success", nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got %v", result)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryManagerWithRetries(t *testing.T) {
	config := DefaultRetryConfig()
	config.MaxRetries = 3
	config.BaseDelay = 10 * time.Millisecond

	rm := NewRetryManager(config)
	var hooked []int
	rm.OnRetry(func(attempt int, err error) { hooked = append(hooked, attempt) })

	attempts := 0
	result, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, NewHTTPError(429, "Rate limited", "")
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("Expected success after retries, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got %v", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(hooked) != 2 || hooked[0] != 1 || hooked[1] != 2 {
		t.Errorf("Expected retry hook for attempts 1 and 2, got %v", hooked)
	}
}

func TestRetryManagerNonRetryable(t *testing.T) {
	rm := NewRetryManager(&RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})

	attempts := 0
	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, NewHTTPError(400, "Bad request", "")
	})

	if err == nil {
		t.Error("Expected error for non-retryable status")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryManagerExhausted(t *testing.T) {
	rm := NewRetryManager(&RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, RetryableErrors: []int{503}})

	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, NewHTTPError(503, "Unavailable", "")
	})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 503 {
		t.Errorf("Expected wrapped 503 error, got %v", err)
	}
}

func TestIsRetryableHTTPError(t *testing.T) {
	if !IsRetryableHTTPError(429) || !IsRetryableHTTPError(503) {
		t.Error("Expected 429 and 503 to be retryable")
	}
	if IsRetryableHTTPError(404) {
		t.Error("Expected 404 not to be retryable")
	}
}
