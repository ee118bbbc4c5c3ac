package execute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/snow-ghost/probe/core"
)

// DefaultTimeout bounds one invocation when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when a call outlives the guard's timeout.
var ErrTimeout = errors.New("execution timed out")

// Guard runs callee code on its own goroutine under a timeout and turns panics
// into *core.CalleeError. A call that times out is abandoned, not killed: the
// interpreted code runs until it returns on its own.
type Guard struct {
	timeout time.Duration
}

func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{timeout: timeout}
}

func (g *Guard) Timeout() time.Duration { return g.timeout }

// Wrap applies the timeout and runs the function.
func (g *Guard) Wrap(ctx context.Context, run func(ctx context.Context) (any, error)) (any, error) {
	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: &core.CalleeError{Err: fmt.Errorf("%v", rec), Panic: true}}
			}
		}()
		v, err := run(execCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
		}
		return nil, execCtx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
