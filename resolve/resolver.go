// Package resolve builds instances of discovered classes, generating
// constructor arguments and resolving class-typed constructor parameters in turn.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/execute"
	"github.com/snow-ghost/probe/generate"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/tracing"
)

// Resolver is bound to one catalog; instances it builds never outlive the
// discovery pass that produced their classes.
type Resolver struct {
	catalog *core.Catalog
	gen     *generate.Engine
	guard   *execute.Guard
	logger  *logging.Logger
	tracer  *tracing.Tracer
}

type Option func(*Resolver)

// WithTimeout bounds each constructor call; zero keeps execute.DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.guard = execute.NewGuard(d) }
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

func NewResolver(catalog *core.Catalog, gen *generate.Engine, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog, gen: gen, guard: execute.NewGuard(0)}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).WithComponent("resolve")
	return r
}

// Resolve returns existing when it is an instance of class, else a new
// instance built from generated constructor arguments.
func (r *Resolver) Resolve(ctx context.Context, class *core.ClassDescriptor, existing *core.Instance) (*core.Instance, error) {
	if class == nil {
		return nil, &core.ResolutionError{Err: core.ErrUnknownClass}
	}
	if existing != nil && existing.Class == class.Name && existing.Module == class.Module {
		return existing, nil
	}
	return r.resolve(ctx, class, nil)
}

// Construct builds an instance of class from explicit constructor arguments.
// Omitted parameters take their defaults.
func (r *Resolver) Construct(ctx context.Context, class *core.ClassDescriptor, args core.ArgumentSet) (*core.Instance, error) {
	if class == nil {
		return nil, &core.ResolutionError{Err: core.ErrUnknownClass}
	}
	ctx, span := r.tracer.StartResolveSpan(ctx, class.Key())
	defer span.End()

	inst, err := r.construct(ctx, class, args)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return nil, err
	}
	tracing.RecordSpanSuccess(span)
	return inst, nil
}

// Supply resolves p when its type hint names a class of sig's module, or when
// p is untyped and its name ends with a class name, as "mainPerson" does for Person.
func (r *Resolver) Supply(ctx context.Context, sig core.Signature, p core.Parameter, gctx core.GenContext) (any, bool, error) {
	return r.supply(ctx, sig, p, nil)
}

func (r *Resolver) supply(ctx context.Context, sig core.Signature, p core.Parameter, path []string) (any, bool, error) {
	class, ok := r.ClassFor(sig.Module, p)
	if !ok {
		return nil, false, nil
	}
	inst, err := r.resolve(ctx, class, path)
	if err != nil {
		return nil, true, err
	}
	return inst, true, nil
}

// ClassFor reports the class a parameter of module asks for.
func (r *Resolver) ClassFor(module string, p core.Parameter) (*core.ClassDescriptor, bool) {
	if cls, ok := r.catalog.ClassFor(module, p.TypeHint); ok {
		return cls, true
	}
	switch strings.TrimSpace(p.TypeHint) {
	case "", "any", "interface{}":
	default:
		return nil, false
	}
	name := strings.ToLower(p.Name)
	var best *core.ClassDescriptor
	for _, cls := range r.catalog.ClassesIn(module) {
		if strings.HasSuffix(name, strings.ToLower(cls.Name)) && (best == nil || len(cls.Name) > len(best.Name)) {
			best = cls
		}
	}
	return best, best != nil
}

func (r *Resolver) resolve(ctx context.Context, class *core.ClassDescriptor, path []string) (*core.Instance, error) {
	key := class.Key()
	for _, seen := range path {
		if seen == key {
			cycle := append(append([]string(nil), path...), key)
			return nil, &core.CycleError{Path: cycle}
		}
	}

	ctx, span := r.tracer.StartResolveSpan(ctx, key)
	defer span.End()

	ctor := class.Constructor
	gctx := r.gen.Context(ctor)
	gctx.Instances = scope{r: r, path: append(append([]string(nil), path...), key)}
	args, err := r.gen.GenerateSet(ctx, ctor, gctx)
	if err != nil {
		tracing.RecordSpanError(span, err)
		if errors.Is(err, core.ErrConstructionCycle) {
			return nil, err
		}
		var resErr *core.ResolutionError
		if errors.As(err, &resErr) {
			return nil, err
		}
		return nil, &core.ResolutionError{Class: key, Err: err}
	}

	inst, err := r.construct(ctx, class, args)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return nil, err
	}
	r.logger.Debug("Resolved instance", "class", key, "instance", inst.ID)
	tracing.RecordSpanSuccess(span)
	return inst, nil
}

func (r *Resolver) construct(ctx context.Context, class *core.ClassDescriptor, args core.ArgumentSet) (*core.Instance, error) {
	key := class.Key()
	rt, err := r.catalog.Runtime(class.Constructor.Language)
	if err != nil {
		return nil, &core.ResolutionError{Class: key, Err: err}
	}
	bound, err := core.Bind(class.Constructor, args)
	if err != nil {
		return nil, &core.ResolutionError{Class: key, Err: err}
	}
	v, err := r.guard.Wrap(ctx, func(ctx context.Context) (any, error) {
		return rt.Construct(ctx, *class, bound)
	})
	if err != nil {
		return nil, &core.ResolutionError{Class: key, Err: fmt.Errorf("constructor %s: %w", class.Constructor.Name, err)}
	}
	return &core.Instance{
		ID:        uuid.NewString(),
		Class:     class.Name,
		Module:    class.Module,
		Args:      args,
		Value:     v,
		CreatedAt: time.Now(),
	}, nil
}

// scope carries the construction path through nested generation.
type scope struct {
	r    *Resolver
	path []string
}

func (s scope) Supply(ctx context.Context, sig core.Signature, p core.Parameter, gctx core.GenContext) (any, bool, error) {
	return s.r.supply(ctx, sig, p, s.path)
}

var (
	_ core.InstanceSource = (*Resolver)(nil)
	_ core.InstanceSource = scope{}
)
