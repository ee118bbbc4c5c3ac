package generate

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/inference"
)

var (
	errMissing      = errors.New("no suggestion for parameter")
	errIncompatible = errors.New("suggestion does not fit the type hint")
)

// Heuristic produces values from an ordered rule table.
type Heuristic struct {
	rules []Rule
}

// NewHeuristic uses rules in order, falling back to the type hint. A nil table means DefaultRules.
func NewHeuristic(rules []Rule) *Heuristic {
	if rules == nil {
		rules = DefaultRules
	}
	return &Heuristic{rules: rules}
}

func (h *Heuristic) Name() string { return "heuristic" }

// GenerateValue draws from gctx.Stream when set, else from a source seeded by
// (gctx.Seed, callable id, parameter name), so equal inputs give equal values.
func (h *Heuristic) GenerateValue(ctx context.Context, p core.Parameter, gctx core.GenContext) (any, error) {
	return h.value(stream(gctx, p), p), nil
}

func (h *Heuristic) value(r core.RandSource, p core.Parameter) any {
	f := newFeatures(p)
	for _, rule := range h.rules {
		if rule.Match(f) {
			return rule.Generate(r, f)
		}
	}
	return fallback(r, f)
}

func stream(gctx core.GenContext, p core.Parameter) core.RandSource {
	if gctx.Stream != nil {
		return gctx.Stream
	}
	return rand.New(rand.NewSource(paramSeed(gctx.Seed, gctx.Callable.ID(), p.Name)))
}

func paramSeed(seed int64, callable, param string) int64 {
	h := fnv.New64a()
	h.Write([]byte(callable))
	h.Write([]byte{0})
	h.Write([]byte(param))
	return seed ^ int64(h.Sum64())
}

// External asks an inference.Client, bounded by a timeout.
type External struct {
	client  inference.Client
	timeout time.Duration
}

func NewExternal(client inference.Client, timeout time.Duration) *External {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &External{client: client, timeout: timeout}
}

func (x *External) Name() string { return "external:" + x.client.Model() }

// GenerateValue asks for p alone. Unlike the engine it reports failures.
func (x *External) GenerateValue(ctx context.Context, p core.Parameter, gctx core.GenContext) (any, error) {
	sig := gctx.Callable
	if gctx.Doc != "" {
		sig.Doc = gctx.Doc
	}
	out, err := x.suggest(ctx, sig, []core.Parameter{p})
	if err != nil {
		return nil, err
	}
	s, err := pickSuggestion(out, p)
	if err != nil {
		return nil, err
	}
	return s.Value, nil
}

func (x *External) suggest(ctx context.Context, sig core.Signature, params []core.Parameter) (map[string]inference.Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	return x.client.Infer(ctx, inference.NewRequest(sig, params))
}

func pickSuggestion(out map[string]inference.Suggestion, p core.Parameter) (inference.Suggestion, error) {
	s, ok := out[p.Name]
	if !ok {
		return inference.Suggestion{}, fmt.Errorf("%s: %w", p.Name, errMissing)
	}
	if !parseHint(p.TypeHint).accepts(s.Value) {
		return inference.Suggestion{}, fmt.Errorf("%s: %w: %s", p.Name, errIncompatible, core.Render(s.Value))
	}
	return s, nil
}

// fallbackReason names why an external value was not used.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, errMissing):
		return "missing"
	case errors.Is(err, errIncompatible):
		return "incompatible"
	}
	return inference.Reason(err)
}

var (
	_ core.ValueGenerator = (*Heuristic)(nil)
	_ core.ValueGenerator = (*External)(nil)
)
