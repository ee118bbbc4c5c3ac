package execute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/snow-ghost/probe/core"
)

func TestGuard_WrapReturnsValue(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGuard(time.Second)
	v, err := g.Wrap(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGuard_WrapTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGuard(10 * time.Millisecond)
	start := time.Now()
	_, err := g.Wrap(context.Background(), func(ctx context.Context) (any, error) {
		// Simulate long work
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return nil, nil
		}
	})
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(10))
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestGuard_WrapPanic(t *testing.T) {
	g := NewGuard(time.Second)
	_, err := g.Wrap(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	})
	var calleeErr *core.CalleeError
	require.ErrorAs(t, err, &calleeErr)
	assert.True(t, calleeErr.Panic)
	assert.Equal(t, "panic: boom", err.Error())
}

func TestGuard_WrapCallerCancel(t *testing.T) {
	g := NewGuard(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Wrap(ctx, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestGuard_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewGuard(0).Timeout())
	assert.Equal(t, time.Second, NewGuard(time.Second).Timeout())
}
