package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CallableKind is the tagged variant of callable shapes.
type CallableKind int

const (
	FreeFunction CallableKind = iota
	InstanceMethod
	StaticMethod
	ClassMethod
)

func (k CallableKind) String() string {
	switch k {
	case FreeFunction:
		return "function"
	case InstanceMethod:
		return "instance_method"
	case StaticMethod:
		return "static_method"
	case ClassMethod:
		return "class_method"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name so records and API payloads stay readable.
func (k CallableKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *CallableKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "function":
		*k = FreeFunction
	case "instance_method":
		*k = InstanceMethod
	case "static_method":
		*k = StaticMethod
	case "class_method":
		*k = ClassMethod
	default:
		return fmt.Errorf("unknown callable kind %q", b)
	}
	return nil
}

// Owned reports whether callables of this kind belong to a class.
func (k CallableKind) Owned() bool {
	return k != FreeFunction
}

type Parameter struct {
	Name       string `json:"name"`
	TypeHint   string `json:"type_hint,omitempty"`
	HasDefault bool   `json:"has_default"`
	Default    any    `json:"default,omitempty"`
	Position   int    `json:"position"`
	Variadic   bool   `json:"variadic,omitempty"`
}

// Required reports whether a value must be supplied for the parameter.
func (p Parameter) Required() bool {
	return !p.HasDefault
}

// Signature is the normalized model of one callable.
type Signature struct {
	Module          string       `json:"module"`         // package dir or module file, relative to the root
	QualifiedName   string       `json:"qualified_name"` // "Add" | "Calculator.Add"
	Name            string       `json:"name"`
	Params          []Parameter  `json:"params"`
	Results         []string     `json:"results,omitempty"`
	Doc             string       `json:"doc,omitempty"`
	Kind            CallableKind `json:"kind"`
	Owner           string       `json:"owner,omitempty"`
	PointerReceiver bool         `json:"pointer_receiver,omitempty"`
	Language        string       `json:"language"` // "go" | "wasm"
}

// ID is the stable callable identity used by presentation layers.
func (s Signature) ID() string {
	return s.Module + "::" + s.QualifiedName
}

// Param returns the parameter with the given name.
func (s Signature) Param(name string) (Parameter, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// RequiredParams returns the parameters without a default, in declaration order.
func (s Signature) RequiredParams() []Parameter {
	out := make([]Parameter, 0, len(s.Params))
	for _, p := range s.Params {
		if p.Required() {
			out = append(out, p)
		}
	}
	return out
}

// ClassDescriptor describes one discovered type. Immutable once a discovery pass ends.
type ClassDescriptor struct {
	Name        string      `json:"name"`
	Module      string      `json:"module"`
	Doc         string      `json:"doc,omitempty"`
	Constructor Signature   `json:"constructor"`
	Methods     []Signature `json:"methods"`
	// FieldInit marks a constructor synthesized from exported fields rather than a New<Type> function.
	FieldInit bool `json:"field_init,omitempty"`
}

// Key identifies the class within a catalog.
func (c ClassDescriptor) Key() string {
	return ClassKey(c.Module, c.Name)
}

func ClassKey(module, name string) string {
	return module + "." + name
}

// Instance is a Resolved Instance: a constructed value plus the arguments that built it.
type Instance struct {
	ID        string      `json:"id"`
	Class     string      `json:"class"`
	Module    string      `json:"module"`
	Args      ArgumentSet `json:"args"`
	Value     any         `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}

func (i *Instance) String() string {
	if i == nil {
		return "<nil instance>"
	}
	return fmt.Sprintf("%s%s", i.Class, Render(i.Value))
}

// ArgumentSet maps parameter names to concrete values. Never mutated after creation.
type ArgumentSet map[string]any

// Names returns the argument names sorted by the signature's parameter order,
// followed by names the signature does not declare.
func (a ArgumentSet) Names(sig Signature) []string {
	out := make([]string, 0, len(a))
	seen := make(map[string]bool, len(a))
	for _, p := range sig.Params {
		if _, ok := a[p.Name]; ok {
			out = append(out, p.Name)
			seen[p.Name] = true
		}
	}
	var extra []string
	for k := range a {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Covers reports whether every required parameter of sig has a value.
func (a ArgumentSet) Covers(sig Signature) bool {
	for _, p := range sig.RequiredParams() {
		if _, ok := a[p.Name]; !ok {
			return false
		}
	}
	return true
}

type Verdict string

const (
	VerdictUnreviewed Verdict = "unreviewed"
	VerdictPass       Verdict = "pass"
	VerdictFail       Verdict = "fail"
)

// ParseVerdict accepts the reviewer spellings used by the front ends.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "y", "yes", "true":
		return VerdictPass, nil
	case "fail", "failed", "n", "no", "false":
		return VerdictFail, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, s)
	}
}

// Stage names where an execution failure happened.
const (
	StageResolve  = "resolve"
	StageLoad     = "load"
	StageBinding  = "binding"
	StageCall     = "call"
	StageTimeout  = "timeout"
	StageCanceled = "canceled" // the caller gave up before the callee returned
)

type Outcome struct {
	Success  bool   `json:"success"`
	Value    any    `json:"value,omitempty"`
	Rendered string `json:"rendered"`
	Error    string `json:"error,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// TestRecord is one logged execution attempt and its reviewer verdict.
type TestRecord struct {
	ID        string        `json:"id"`
	Callable  string        `json:"callable"`
	Kind      CallableKind  `json:"kind"`
	Args      ArgumentSet   `json:"args"`
	Instance  string        `json:"instance,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	Verdict   Verdict       `json:"verdict"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Entry pairs a discovered callable with its owning class, if any.
type Entry struct {
	Signature Signature        `json:"signature"`
	Class     *ClassDescriptor `json:"class,omitempty"`
}

// ParseWarning records a source file skipped during discovery.
type ParseWarning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (w ParseWarning) String() string {
	return w.Path + ": " + w.Reason
}

// ModuleResult is what a provider extracts from one module.
type ModuleResult struct {
	Entries  []Entry
	Classes  []*ClassDescriptor
	Warnings []ParseWarning
}

// SourceFile is a file handed to a provider, path relative to the discovery root.
type SourceFile struct {
	Path    string
	Content []byte
}
