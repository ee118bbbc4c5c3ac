package wasm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/pkg/logging"
)

// Language is the catalog language tag of WebAssembly callables.
const Language = "wasm"

var errNoClasses = errors.New("webassembly modules have no classes")

// Frontend discovers exported functions of .wasm files. Each file is its own module.
type Frontend struct {
	logger *logging.Logger
}

func NewFrontend(logger *logging.Logger) *Frontend {
	return &Frontend{logger: logging.OrNop(logger)}
}

func (f *Frontend) Language() string { return Language }

func (f *Frontend) Match(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wasm")
}

func (f *Frontend) ModuleOf(path string) string {
	return filepath.ToSlash(path)
}

// ParseModule compiles the module and lists its exported functions in function index order.
func (f *Frontend) ParseModule(ctx context.Context, module string, files []core.SourceFile) core.ModuleResult {
	var res core.ModuleResult
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	for _, file := range files {
		compiled, err := rt.CompileModule(ctx, file.Content)
		if err != nil {
			res.Warnings = append(res.Warnings, core.ParseWarning{Path: file.Path, Reason: fmt.Sprintf("failed to compile WASM module: %v", err)})
			continue
		}
		defs := make([]api.FunctionDefinition, 0, len(compiled.ExportedFunctions()))
		for name, def := range compiled.ExportedFunctions() {
			if name == "" || strings.HasPrefix(name, "_") {
				continue
			}
			defs = append(defs, def)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].Index() < defs[j].Index() })
		for _, def := range defs {
			res.Entries = append(res.Entries, core.Entry{Signature: signature(module, def)})
		}
		_ = compiled.Close(ctx)
	}
	return res
}

func signature(module string, def api.FunctionDefinition) core.Signature {
	name := def.ExportNames()[0]
	sig := core.Signature{
		Module:        module,
		QualifiedName: name,
		Name:          name,
		Kind:          core.FreeFunction,
		Language:      Language,
	}
	names := def.ParamNames()
	for i, t := range def.ParamTypes() {
		pname := fmt.Sprintf("p%d", i)
		if i < len(names) && names[i] != "" {
			pname = names[i]
		}
		sig.Params = append(sig.Params, core.Parameter{Name: pname, TypeHint: api.ValueTypeName(t), Position: i})
	}
	for _, t := range def.ResultTypes() {
		sig.Results = append(sig.Results, api.ValueTypeName(t))
	}
	return sig
}

func (f *Frontend) NewRuntime(modules map[string][]core.SourceFile) core.Runtime {
	return NewRuntime(modules)
}

// Runtime implements core.Runtime using the wazero WASM runtime.
// Compiled modules are cached; every call gets a fresh instance.
type Runtime struct {
	runtime wazero.Runtime
	modules map[string][]core.SourceFile

	mu    sync.Mutex
	cache map[string]wazero.CompiledModule
}

// NewRuntime creates a WASM runtime with default configuration
func NewRuntime(modules map[string][]core.SourceFile) *Runtime {
	// Create runtime with memory and timeout limits
	config := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(64). // 64 pages = 4MB
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(context.Background(), config)

	// Enable WASI for modules built against it
	wasi_snapshot_preview1.MustInstantiate(context.Background(), runtime)

	return &Runtime{
		runtime: runtime,
		modules: modules,
		cache:   make(map[string]wazero.CompiledModule),
	}
}

// getOrCompileModule returns a compiled module, using cache if available
func (r *Runtime) getOrCompileModule(ctx context.Context, module string) (wazero.CompiledModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if compiled, exists := r.cache[module]; exists {
		return compiled, nil
	}
	files := r.modules[module]
	if len(files) == 0 {
		return nil, fmt.Errorf("no source for module %s", module)
	}
	compiled, err := r.runtime.CompileModule(ctx, files[0].Content)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}
	r.cache[module] = compiled
	return compiled, nil
}

// Invoke instantiates the module and calls one exported function.
func (r *Runtime) Invoke(ctx context.Context, sig core.Signature, recv *core.Instance, args []core.BoundArg) (any, error) {
	if sig.Kind != core.FreeFunction {
		return nil, &core.ArgumentError{Err: fmt.Errorf("%s callables are not supported for WASM", sig.Kind)}
	}
	compiled, err := r.getOrCompileModule(ctx, sig.Module)
	if err != nil {
		return nil, &core.LoadError{Module: sig.Module, Err: err}
	}

	instance, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions())
	if err != nil {
		return nil, &core.LoadError{Module: sig.Module, Err: fmt.Errorf("failed to instantiate module: %w", err)}
	}
	defer instance.Close(ctx)

	fn := instance.ExportedFunction(sig.Name)
	if fn == nil {
		return nil, &core.LoadError{Module: sig.Module, Err: fmt.Errorf("module does not export %q", sig.Name)}
	}
	def := fn.Definition()
	if len(args) != len(def.ParamTypes()) {
		return nil, &core.ArgumentError{Err: fmt.Errorf("expected %d arguments, got %d", len(def.ParamTypes()), len(args))}
	}

	params := make([]uint64, len(args))
	for i, t := range def.ParamTypes() {
		v, err := encode(args[i].Value, t)
		if err != nil {
			return nil, &core.ArgumentError{Param: args[i].Param.Name, Err: err}
		}
		params[i] = v
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.CalleeError{Err: err}
	}

	out := make([]any, len(results))
	for i, t := range def.ResultTypes() {
		out[i] = decode(results[i], t)
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

func encode(v any, t api.ValueType) (uint64, error) {
	if inst, ok := v.(*core.Instance); ok {
		v = inst.Value
	}
	switch t {
	case api.ValueTypeI32:
		n, ok := core.AsInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxUint32 {
			return 0, fmt.Errorf("cannot use %s as i32", core.Render(v))
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, ok := core.AsInt64(v)
		if !ok {
			return 0, fmt.Errorf("cannot use %s as i64", core.Render(v))
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32:
		f, ok := core.AsFloat64(v)
		if !ok || math.Abs(f) > math.MaxFloat32 {
			return 0, fmt.Errorf("cannot use %s as f32", core.Render(v))
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, ok := core.AsFloat64(v)
		if !ok {
			return 0, fmt.Errorf("cannot use %s as f64", core.Render(v))
		}
		return api.EncodeF64(f), nil
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func decode(v uint64, t api.ValueType) any {
	switch t {
	case api.ValueTypeI32:
		return int(api.DecodeI32(v))
	case api.ValueTypeI64:
		return int(int64(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	default:
		return v
	}
}

// Construct is unsupported: WASM modules export plain functions only.
func (r *Runtime) Construct(ctx context.Context, class core.ClassDescriptor, args []core.BoundArg) (any, error) {
	return nil, errNoClasses
}

// Close closes the runtime and cleans up resources
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

var (
	_ core.Provider = (*Frontend)(nil)
	_ core.Runtime  = (*Runtime)(nil)
)
