// Package discovery walks a source tree and builds the callable catalog.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/pkg/tracing"
)

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"vendor":       true,
	"testdata":     true,
	"node_modules": true,
}

// Engine runs discovery passes over a set of providers. Providers are consulted
// in order; the first one matching a file owns it.
type Engine struct {
	providers []core.Provider
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
	tracer    *tracing.Tracer
}

type Option func(*Engine)

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func NewEngine(providers []core.Provider, opts ...Option) *Engine {
	e := &Engine{providers: providers}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).WithComponent("discovery")
	return e
}

type moduleKey struct {
	provider int
	module   string
}

// Discover scans root, a directory or a single file, and returns a new catalog.
// Only an unusable root is an error; unreadable or unparseable files become warnings.
func (e *Engine) Discover(ctx context.Context, root string) (*core.Catalog, error) {
	ctx, span := e.tracer.StartDiscoverSpan(ctx, root)
	defer span.End()
	start := time.Now()

	cat, err := e.discover(ctx, root)
	if err != nil {
		tracing.RecordSpanError(span, err)
		e.metrics.RecordDiscovery("error", 0, 0)
		return nil, err
	}

	for _, w := range cat.Warnings {
		e.logger.LogParseWarning(ctx, w.Path, w.Reason)
	}
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"discover.callables": len(cat.Entries),
		"discover.classes":   len(cat.Classes),
		"discover.warnings":  len(cat.Warnings),
	})
	tracing.RecordSpanDuration(span, time.Since(start))
	tracing.RecordSpanSuccess(span)
	e.metrics.RecordDiscovery("ok", len(cat.Entries), len(cat.Warnings))
	e.logger.Info("discovery completed",
		"root", cat.Root,
		"callables", len(cat.Entries),
		"classes", len(cat.Classes),
		"warnings", len(cat.Warnings),
		"duration_ms", time.Since(start).Milliseconds())
	return cat, nil
}

func (e *Engine) discover(ctx context.Context, root string) (*core.Catalog, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &core.DiscoveryError{Root: root, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &core.DiscoveryError{Root: root, Err: err}
	}

	base := abs
	var paths []string
	if info.IsDir() {
		paths, err = walk(ctx, abs)
		if err != nil {
			return nil, &core.DiscoveryError{Root: root, Err: err}
		}
	} else {
		base = filepath.Dir(abs)
		paths = []string{filepath.Base(abs)}
	}

	cat := core.NewCatalog(abs)
	modules := make(map[moduleKey][]core.SourceFile)
	for _, rel := range paths {
		idx := e.owner(rel)
		if idx < 0 {
			continue
		}
		content, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(rel)))
		if err != nil {
			cat.Warnings = append(cat.Warnings, core.ParseWarning{Path: rel, Reason: fmt.Sprintf("read failed: %v", err)})
			continue
		}
		key := moduleKey{provider: idx, module: e.providers[idx].ModuleOf(rel)}
		modules[key] = append(modules[key], core.SourceFile{Path: rel, Content: content})
	}

	keys := make([]moduleKey, 0, len(modules))
	for k := range modules {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		fi, fj := modules[keys[i]][0].Path, modules[keys[j]][0].Path
		if fi != fj {
			return fi < fj
		}
		return keys[i].provider < keys[j].provider
	})

	perProvider := make([]map[string][]core.SourceFile, len(e.providers))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, &core.DiscoveryError{Root: root, Err: err}
		}
		p := e.providers[k.provider]
		cat.Add(p.ParseModule(ctx, k.module, modules[k]))
		if perProvider[k.provider] == nil {
			perProvider[k.provider] = make(map[string][]core.SourceFile)
		}
		perProvider[k.provider][k.module] = modules[k]
	}
	for i, p := range e.providers {
		if perProvider[i] != nil {
			cat.SetRuntime(p.Language(), p.NewRuntime(perProvider[i]))
		}
	}
	return cat, nil
}

// owner returns the index of the provider that claims path, or -1.
func (e *Engine) owner(path string) int {
	for i, p := range e.providers {
		if p.Match(path) {
			return i
		}
	}
	return -1
}

// walk lists candidate files under root as sorted slash paths relative to root.
func walk(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable subtrees are skipped
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (ignored(name) || skippedDirs[name]) {
				return fs.SkipDir
			}
			return nil
		}
		if ignored(name) || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ignored follows the go tool: names starting with "." or "_" are not part of any package.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
