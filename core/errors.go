package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConstructionCycle = errors.New("construction cycle")
	ErrInvalidVerdict    = errors.New("invalid verdict")
	ErrVerdictRecorded   = errors.New("verdict already recorded")
	ErrUnknownRecord     = errors.New("unknown test record")
	ErrUnknownCallable   = errors.New("unknown callable")
	ErrUnknownClass      = errors.New("unknown class")
	ErrNoRuntime         = errors.New("no runtime for language")
)

// DiscoveryError is returned only when the discovery root itself is unusable.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery of %q failed: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// CycleError reports the construction path that loops back on itself.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConstructionCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrConstructionCycle }

// ResolutionError means an instance of Class could not be built.
type ResolutionError struct {
	Class string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Class, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ArgumentError is a binding or coercion failure before the callee runs.
type ArgumentError struct {
	Param string
	Err   error
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("argument binding: %v", e.Err)
	}
	return fmt.Sprintf("argument %q: %v", e.Param, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// CalleeError wraps an error raised by the callable itself (returned error, panic or trap).
type CalleeError struct {
	Err   error
	Panic bool
}

func (e *CalleeError) Error() string {
	if e.Panic {
		return fmt.Sprintf("panic: %v", e.Err)
	}
	return e.Err.Error()
}

func (e *CalleeError) Unwrap() error { return e.Err }

// LoadError means the module holding a callable could not be loaded by its runtime.
type LoadError struct {
	Module string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Module, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
