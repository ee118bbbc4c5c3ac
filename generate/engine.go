// Package generate produces argument values for discovered callables.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/inference"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
)

var ErrNegativeCount = errors.New("batch count must not be negative")

// Engine combines the strategies. With an inference client configured the
// external strategy is primary and every parameter it cannot serve falls back
// to the heuristic table on its own; without one the engine is heuristic only.
type Engine struct {
	heuristic *Heuristic
	external  *External
	seed      int64
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
}

type Option func(*Engine)

// WithInferer makes client the primary strategy. timeout bounds each round trip; zero means 8s.
func WithInferer(client inference.Client, timeout time.Duration) Option {
	return func(e *Engine) {
		if client != nil {
			e.external = NewExternal(client, timeout)
		}
	}
}

func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.heuristic = NewHeuristic(rules) }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{heuristic: NewHeuristic(nil)}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).WithComponent("generate")
	return e
}

// Strategy names the primary strategy.
func (e *Engine) Strategy() string {
	if e.external != nil {
		return e.external.Name()
	}
	return e.heuristic.Name()
}

func (e *Engine) Seed() int64 { return e.seed }

// Context returns the generation context for sig with the engine's seed.
func (e *Engine) Context(sig core.Signature) core.GenContext {
	return core.GenContext{Callable: sig, Doc: sig.Doc, Seed: e.seed}
}

// Generate returns one value for p. Only instance resolution can fail; external
// failures degrade to the heuristic value.
func (e *Engine) Generate(ctx context.Context, p core.Parameter, gctx core.GenContext) (any, error) {
	if v, ok, err := e.supply(ctx, p, gctx); ok || err != nil {
		return v, err
	}
	if e.external != nil {
		sig := gctx.Callable
		if gctx.Doc != "" {
			sig.Doc = gctx.Doc
		}
		out, err := e.external.suggest(ctx, sig, []core.Parameter{p})
		if err == nil {
			var s inference.Suggestion
			if s, err = pickSuggestion(out, p); err == nil {
				e.accepted(ctx, gctx.Callable, p, s)
				return s.Value, nil
			}
		}
		e.fallback(ctx, gctx.Callable, p, err)
	}
	e.metrics.RecordGeneration("heuristic")
	return e.heuristicValue(ctx, p, gctx)
}

// GenerateSet returns a fresh argument set covering every required parameter
// of sig. Parameters with defaults are left out and take their default at bind
// time. External suggestions for all remaining parameters come from one round trip.
func (e *Engine) GenerateSet(ctx context.Context, sig core.Signature, gctx core.GenContext) (core.ArgumentSet, error) {
	set, _, err := e.GenerateExplained(ctx, sig, gctx)
	return set, err
}

// GenerateExplained is GenerateSet plus the rationale the external strategy
// gave for each value it supplied. Parameters without one are absent.
func (e *Engine) GenerateExplained(ctx context.Context, sig core.Signature, gctx core.GenContext) (core.ArgumentSet, map[string]string, error) {
	gctx.Callable = sig
	if gctx.Doc == "" {
		gctx.Doc = sig.Doc
	}

	set := make(core.ArgumentSet)
	var rest []core.Parameter
	for _, p := range sig.RequiredParams() {
		v, ok, err := e.supply(ctx, p, gctx)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			set[p.Name] = v
			continue
		}
		rest = append(rest, p)
	}
	rationale := make(map[string]string)
	if len(rest) == 0 {
		return set, rationale, nil
	}

	var suggestions map[string]inference.Suggestion
	var inferErr error
	if e.external != nil {
		req := sig
		req.Doc = gctx.Doc
		suggestions, inferErr = e.external.suggest(ctx, req, rest)
	}

	for _, p := range rest {
		if e.external != nil {
			err := inferErr
			if err == nil {
				var s inference.Suggestion
				if s, err = pickSuggestion(suggestions, p); err == nil {
					set[p.Name] = s.Value
					if s.Rationale != "" {
						rationale[p.Name] = s.Rationale
					}
					e.accepted(ctx, sig, p, s)
					continue
				}
			}
			e.fallback(ctx, sig, p, err)
		}
		v, err := e.heuristicValue(ctx, p, gctx)
		if err != nil {
			return nil, nil, err
		}
		set[p.Name] = v
		e.metrics.RecordGeneration("heuristic")
	}
	return set, rationale, nil
}

// GenerateBatch returns count independent argument sets. The sets are drawn in
// order from one stream seeded by gctx.Seed, so a batch is reproducible while
// its sets differ. Nothing is de-duplicated.
func (e *Engine) GenerateBatch(ctx context.Context, sig core.Signature, count int, gctx core.GenContext) ([]core.ArgumentSet, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCount, count)
	}
	if gctx.Stream == nil {
		gctx.Stream = NewStream(gctx.Seed)
	}
	out := make([]core.ArgumentSet, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := e.GenerateSet(ctx, sig, gctx)
		if err != nil {
			return nil, fmt.Errorf("set %d: %w", i+1, err)
		}
		out = append(out, set)
	}
	return out, nil
}

// NewStream returns the random stream batch generation draws from.
func NewStream(seed int64) core.RandSource {
	return rand.New(rand.NewSource(seed))
}

// heuristicValue fills p from the rule table, except that a slice whose
// element type names a class gets instances from gctx.Instances.
func (e *Engine) heuristicValue(ctx context.Context, p core.Parameter, gctx core.GenContext) (any, error) {
	r := stream(gctx, p)
	items, ok, err := e.supplyElems(ctx, r, p, gctx)
	if ok || err != nil {
		return items, err
	}
	return e.heuristic.value(r, p), nil
}

func (e *Engine) supplyElems(ctx context.Context, r core.RandSource, p core.Parameter, gctx core.GenContext) ([]any, bool, error) {
	if gctx.Instances == nil {
		return nil, false, nil
	}
	f := newFeatures(p)
	if f.hint.shape != shapeSlice && !(f.hint.shape == shapeAny && f.plural) {
		return nil, false, nil
	}
	elem := core.Parameter{Name: singular(p.Name), TypeHint: f.hint.elem}
	first, ok, err := gctx.Instances.Supply(ctx, gctx.Callable, elem, gctx)
	if !ok || err != nil {
		return nil, ok, err
	}
	out := []any{first}
	for n := 2 + r.Intn(3); n > 0; n-- {
		v, _, err := gctx.Instances.Supply(ctx, gctx.Callable, elem, gctx)
		if err != nil {
			return nil, true, err
		}
		out = append(out, v)
	}
	return out, true, nil
}

func (e *Engine) supply(ctx context.Context, p core.Parameter, gctx core.GenContext) (any, bool, error) {
	if gctx.Instances == nil {
		return nil, false, nil
	}
	return gctx.Instances.Supply(ctx, gctx.Callable, p, gctx)
}

func (e *Engine) accepted(ctx context.Context, sig core.Signature, p core.Parameter, s inference.Suggestion) {
	if s.Rationale != "" {
		e.logger.LogSuggestion(ctx, sig.ID(), p.Name, s.Rationale)
	}
	e.metrics.RecordGeneration("external")
}

func (e *Engine) fallback(ctx context.Context, sig core.Signature, p core.Parameter, err error) {
	reason := fallbackReason(err)
	e.logger.LogFallback(ctx, sig.ID(), p.Name, reason, err)
	e.metrics.RecordFallback(reason)
}
