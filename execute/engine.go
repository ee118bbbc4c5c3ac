// Package execute invokes discovered callables and captures every failure in
// the returned test record.
package execute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/pkg/tracing"
)

var (
	errNoReceiver    = errors.New("instance method needs a bound instance")
	errWrongReceiver = errors.New("bound instance has the wrong class")
)

// Engine runs callables of one catalog.
type Engine struct {
	catalog *core.Catalog
	guard   *Guard
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

type Option func(*Engine)

// WithTimeout sets the per-call timeout; zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.guard = NewGuard(d) }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func NewEngine(catalog *core.Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: catalog, guard: NewGuard(0)}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).WithComponent("execute")
	return e
}

// Execute invokes sig with args and, for instance methods, the bound instance.
// It always returns a record: binding problems, callee errors, panics, traps
// and timeouts all become a failed outcome. The record starts unreviewed.
func (e *Engine) Execute(ctx context.Context, sig core.Signature, args core.ArgumentSet, bound *core.Instance) core.TestRecord {
	ctx, span := e.tracer.StartExecuteSpan(ctx, sig.ID(), sig.Kind.String())
	defer span.End()

	rec := core.TestRecord{
		ID:        uuid.NewString(),
		Callable:  sig.ID(),
		Kind:      sig.Kind,
		Args:      args,
		Verdict:   core.VerdictUnreviewed,
		Timestamp: time.Now(),
	}
	if bound != nil && sig.Kind == core.InstanceMethod {
		rec.Instance = bound.ID
	}

	value, err := e.invoke(ctx, sig, args, bound)
	rec.Duration = time.Since(rec.Timestamp)
	if err != nil {
		rec.Outcome = failure(err)
		tracing.RecordSpanError(span, err)
	} else {
		rec.Outcome = core.Outcome{Success: true, Value: jsonSafe(value), Rendered: core.Render(value)}
		tracing.RecordSpanSuccess(span)
	}

	outcome := "success"
	if !rec.Outcome.Success {
		outcome = rec.Outcome.Stage
	}
	e.metrics.RecordExecution(sig.Kind.String(), outcome, rec.Duration)
	e.logger.LogExecution(ctx, rec.Callable, sig.Kind.String(), rec.Outcome.Success, rec.Outcome.Stage, rec.Duration)
	return rec
}

func (e *Engine) invoke(ctx context.Context, sig core.Signature, args core.ArgumentSet, bound *core.Instance) (any, error) {
	var recv *core.Instance
	switch sig.Kind {
	case core.FreeFunction, core.StaticMethod, core.ClassMethod:
	case core.InstanceMethod:
		if bound == nil {
			return nil, &core.ArgumentError{Param: "receiver", Err: errNoReceiver}
		}
		if bound.Class != sig.Owner || bound.Module != sig.Module {
			return nil, &core.ArgumentError{Param: "receiver", Err: fmt.Errorf("%w: %s, want %s", errWrongReceiver, bound.Class, sig.Owner)}
		}
		recv = bound
	default:
		return nil, &core.ArgumentError{Err: fmt.Errorf("unsupported callable kind %s", sig.Kind)}
	}

	boundArgs, err := core.Bind(sig, args)
	if err != nil {
		return nil, err
	}
	rt, err := e.catalog.Runtime(sig.Language)
	if err != nil {
		return nil, &core.LoadError{Module: sig.Module, Err: err}
	}
	return e.guard.Wrap(ctx, func(ctx context.Context) (any, error) {
		return rt.Invoke(ctx, sig, recv, boundArgs)
	})
}

// failure describes err and the stage it belongs to.
func failure(err error) core.Outcome {
	out := core.Outcome{Error: err.Error(), Rendered: "error: " + err.Error()}
	var (
		argErr    *core.ArgumentError
		loadErr   *core.LoadError
		calleeErr *core.CalleeError
	)
	switch {
	case errors.As(err, &argErr):
		out.Stage = core.StageBinding
	case errors.As(err, &loadErr):
		out.Stage = core.StageLoad
	case errors.Is(err, ErrTimeout):
		out.Stage = core.StageTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Stage = core.StageCanceled
	case errors.As(err, &calleeErr):
		out.Stage = core.StageCall
	default:
		out.Stage = core.StageCall
	}
	return out
}

// jsonSafe drops results that cannot be encoded, such as funcs and channels.
// The rendered form is kept either way.
func jsonSafe(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return nil
	}
	return v
}
