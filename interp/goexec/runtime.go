// Package goexec runs discovered Go callables inside the yaegi interpreter.
package goexec

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/discovery/gosource"
	"github.com/snow-ghost/probe/pkg/logging"
)

var (
	errNoReceiver = errors.New("instance method called without an instance")
	errNoSource   = errors.New("no parseable source files")
)

// Runtime loads one interpreter per package, lazily, for a single discovery pass.
type Runtime struct {
	parser  *gosource.Parser
	modules map[string][]core.SourceFile
	logger  *logging.Logger

	mu     sync.Mutex
	loaded map[string]*loadedPackage
}

type loadedPackage struct {
	interp *interp.Interpreter
	err    error
}

func NewRuntime(parser *gosource.Parser, modules map[string][]core.SourceFile, logger *logging.Logger) *Runtime {
	return &Runtime{
		parser:  parser,
		modules: modules,
		logger:  logging.OrNop(logger),
		loaded:  make(map[string]*loadedPackage),
	}
}

// load returns the interpreter of module, evaluating its merged source on first use.
// A failed load is remembered for the lifetime of the runtime unless ctx ended first.
func (r *Runtime) load(ctx context.Context, module string) (*interp.Interpreter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lp, ok := r.loaded[module]; ok {
		return lp.interp, lp.err
	}
	i, err := r.build(ctx, module)
	if err != nil {
		err = &core.LoadError{Module: module, Err: err}
		if ctx.Err() != nil {
			return nil, err
		}
		r.logger.Warn("package load failed", "module", module, "error", err)
	}
	r.loaded[module] = &loadedPackage{interp: i, err: err}
	return i, err
}

func (r *Runtime) build(ctx context.Context, module string) (i *interp.Interpreter, err error) {
	var units []*gosource.Unit
	var parsed []core.SourceFile
	for _, f := range r.modules[module] {
		u, err := gosource.SplitFile(ctx, f.Content)
		if err != nil {
			continue
		}
		units = append(units, u)
		parsed = append(parsed, f)
	}
	if len(units) == 0 {
		return nil, errNoSource
	}
	src, err := gosource.JoinUnits(units)
	if err != nil {
		return nil, err
	}
	res := r.parser.ParseModule(ctx, module, parsed)
	src += shims(res.Classes)

	defer func() {
		if rec := recover(); rec != nil {
			i, err = nil, fmt.Errorf("interpreter panic: %v", rec)
		}
	}()
	i = interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return nil, fmt.Errorf("package evaluation failed: %w", err)
	}
	return i, nil
}

// lookup evaluates a package-level function of the loaded package.
func lookup(i *interp.Interpreter, name string) (fn reflect.Value, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lookup %s: interpreter panic: %v", name, rec)
		}
	}()
	v, err := i.Eval("main." + name)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("lookup %s: %w", name, err)
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("lookup %s: not a function", name)
	}
	return v, nil
}

// Invoke calls sig in its package. Free functions and class methods are package-level
// functions; instance and static methods are bound through generated method shims.
func (r *Runtime) Invoke(ctx context.Context, sig core.Signature, recv *core.Instance, args []core.BoundArg) (any, error) {
	i, err := r.load(ctx, sig.Module)
	if err != nil {
		return nil, err
	}

	var fn reflect.Value
	var recvArg []reflect.Value
	switch sig.Kind {
	case core.FreeFunction, core.ClassMethod:
		fn, err = lookup(i, sig.Name)
	case core.InstanceMethod:
		if recv == nil || recv.Value == nil {
			return nil, &core.ArgumentError{Err: errNoReceiver}
		}
		fn, recvArg, err = r.method(i, sig, reflect.ValueOf(recv.Value))
	case core.StaticMethod:
		var zero reflect.Value
		if zero, err = r.newValue(i, sig.Owner); err == nil {
			fn, recvArg, err = r.method(i, sig, zero)
		}
	default:
		return nil, fmt.Errorf("unsupported callable kind %s", sig.Kind)
	}
	if err != nil {
		var ae *core.ArgumentError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &core.LoadError{Module: sig.Module, Err: err}
	}
	return call(fn, recvArg, args)
}

// Construct builds a *Type either through its New<Type> function or from exported fields.
func (r *Runtime) Construct(ctx context.Context, class core.ClassDescriptor, args []core.BoundArg) (any, error) {
	i, err := r.load(ctx, class.Module)
	if err != nil {
		return nil, err
	}

	if class.FieldInit {
		ptr, err := r.newValue(i, class.Name)
		if err != nil {
			return nil, &core.LoadError{Module: class.Module, Err: err}
		}
		st := ptr.Elem()
		for _, a := range args {
			if !a.Present && a.Value == nil {
				continue
			}
			if err := setFields(st, map[string]any{a.Param.Name: a.Value}); err != nil {
				return nil, &core.ArgumentError{Param: a.Param.Name, Err: err}
			}
		}
		return ptr.Interface(), nil
	}

	fn, err := lookup(i, class.Constructor.Name)
	if err != nil {
		return nil, &core.LoadError{Module: class.Module, Err: err}
	}
	v, err := call(fn, nil, args)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() != reflect.Pointer {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		return p.Interface(), nil
	}
	return v, nil
}

func (r *Runtime) newValue(i *interp.Interpreter, class string) (reflect.Value, error) {
	fn, err := lookup(i, shimNew(class))
	if err != nil {
		return reflect.Value{}, err
	}
	out := fn.Call(nil)
	if len(out) != 1 {
		return reflect.Value{}, fmt.Errorf("constructor shim for %s returned %d values", class, len(out))
	}
	return out[0], nil
}

// method returns the shim of sig, whose first parameter is the receiver.
func (r *Runtime) method(i *interp.Interpreter, sig core.Signature, recv reflect.Value) (reflect.Value, []reflect.Value, error) {
	shim, err := lookup(i, shimMethod(sig.Owner, sig.Name))
	if err != nil {
		return reflect.Value{}, nil, err
	}
	if shim.Type().NumIn() == 0 || !recv.Type().AssignableTo(shim.Type().In(0)) {
		return reflect.Value{}, nil, &core.ArgumentError{Param: "receiver", Err: fmt.Errorf("%s is not a *%s", recv.Type(), sig.Owner)}
	}
	return shim, []reflect.Value{recv}, nil
}

// call coerces args and invokes fn after the leading values in prefix.
// Panics in the callee are returned as *core.CalleeError.
func call(fn reflect.Value, prefix []reflect.Value, args []core.BoundArg) (out any, err error) {
	ft := fn.Type()
	in, err := coerceArgs(ft, len(prefix), args)
	if err != nil {
		return nil, err
	}
	in = append(prefix, in...)
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, &core.CalleeError{Err: fmt.Errorf("%v", rec), Panic: true}
		}
	}()
	var results []reflect.Value
	if ft.IsVariadic() {
		results = fn.CallSlice(in)
	} else {
		results = fn.Call(in)
	}
	return collect(results)
}

// Close drops every loaded interpreter.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = make(map[string]*loadedPackage)
	return nil
}

// Loaded lists modules whose interpreter has been built, for diagnostics.
func (r *Runtime) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.loaded))
	for m, lp := range r.loaded {
		if lp.err == nil {
			out = append(out, m)
		}
	}
	return out
}

func shimNew(class string) string {
	return "probeNew_" + class
}

func shimMethod(class, method string) string {
	return "probeMethod_" + class + "_" + method
}

// shims renders package-level helpers that expose construction and methods of
// interpreted types to the host. Method shims take the receiver first and
// repeat the method's declared parameter and result types.
func shims(classes []*core.ClassDescriptor) string {
	var b strings.Builder
	for _, cls := range classes {
		fmt.Fprintf(&b, "\nfunc %s() *%s { return new(%s) }\n", shimNew(cls.Name), cls.Name, cls.Name)
		for _, m := range cls.Methods {
			if m.Kind != core.InstanceMethod && m.Kind != core.StaticMethod {
				continue
			}
			params := []string{"recv *" + cls.Name}
			callArgs := make([]string, 0, len(m.Params))
			for i, p := range m.Params {
				name := fmt.Sprintf("p%d", i)
				params = append(params, name+" "+p.TypeHint)
				if p.Variadic {
					name += "..."
				}
				callArgs = append(callArgs, name)
			}
			call := fmt.Sprintf("recv.%s(%s)", m.Name, strings.Join(callArgs, ", "))
			body := call
			results := ""
			switch len(m.Results) {
			case 0:
			case 1:
				results = " " + m.Results[0]
				body = "return " + call
			default:
				results = " (" + strings.Join(m.Results, ", ") + ")"
				body = "return " + call
			}
			fmt.Fprintf(&b, "\nfunc %s(%s)%s { %s }\n", shimMethod(cls.Name, m.Name), strings.Join(params, ", "), results, body)
		}
	}
	return b.String()
}
