package core

import "context"

// Provider is a discovery front end for one source language.
type Provider interface {
	Language() string
	// Match reports whether a file (path relative to the root) belongs to this provider.
	Match(path string) bool
	// ModuleOf maps a matched file to the module it is parsed and loaded with.
	ModuleOf(path string) string
	// ParseModule extracts callables and classes from the files of one module.
	// Unparseable files are reported as warnings, never as errors.
	ParseModule(ctx context.Context, module string, files []SourceFile) ModuleResult
	// NewRuntime returns a runtime scoped to one discovery pass. modules holds the
	// files read during that pass, keyed by module.
	NewRuntime(modules map[string][]SourceFile) Runtime
}

// BoundArg is a parameter paired with the value bound to it for one call.
type BoundArg struct {
	Param   Parameter
	Value   any
	Present bool // false when the parameter was omitted and takes its default
}

// Runtime turns discovered callables into invocations.
type Runtime interface {
	// Invoke calls sig. recv is the bound receiver for instance methods and nil otherwise.
	// Coercion problems are reported as *ArgumentError, callee failures as *CalleeError.
	Invoke(ctx context.Context, sig Signature, recv *Instance, args []BoundArg) (any, error)
	// Construct builds a value of class from constructor arguments.
	Construct(ctx context.Context, class ClassDescriptor, args []BoundArg) (any, error)
	Close(ctx context.Context) error
}

// ValueGenerator is the common "generate value for parameter" contract.
type ValueGenerator interface {
	Name() string
	GenerateValue(ctx context.Context, p Parameter, gctx GenContext) (any, error)
}

// GenContext carries what a generator may know about the parameter's owner.
type GenContext struct {
	Callable Signature
	Doc      string
	Seed     int64
	// Stream, when set, is drawn from instead of a per-parameter seeded source.
	Stream RandSource
	// Instances supplies class-shaped parameters. Nil disables nested resolution.
	Instances InstanceSource
}

// InstanceSource produces values for parameters that name a discovered class.
// ok is false when p is not class-shaped; err is a *ResolutionError or wraps
// ErrConstructionCycle.
type InstanceSource interface {
	Supply(ctx context.Context, sig Signature, p Parameter, gctx GenContext) (value any, ok bool, err error)
}

// RandSource is the subset of *rand.Rand the generators use.
type RandSource interface {
	Intn(n int) int
	Float64() float64
	Int63() int64
}
