// Package session holds the state of one interactive run: the catalog of a
// discovery pass, the instances built so far and the append-only record log.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/execute"
	"github.com/snow-ghost/probe/generate"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/pkg/tracing"
	"github.com/snow-ghost/probe/resolve"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrUnknownSession = errors.New("unknown session")
	ErrNotAClass      = errors.New("class payload names no discovered class")
)

// Session serializes construction and invocation: at most one of them runs at
// a time, later requests queue on the semaphore until their context ends.
// Records and verdicts are guarded separately so reads never wait for a call.
type Session struct {
	ID        string
	CreatedAt time.Time

	catalog  *core.Catalog
	gen      *generate.Engine
	resolver *resolve.Resolver
	exec     *execute.Engine
	logger   *logging.Logger
	metrics  *metrics.PrometheusMetrics

	sem *semaphore.Weighted
	// stream advances with every Generate and GenerateParam; guarded by sem.
	stream core.RandSource

	mu        sync.Mutex
	records   []core.TestRecord
	index     map[string]int
	instances map[string]*core.Instance
	lastUsed  time.Time
	closed    bool
}

// Options configures the engines a session builds around its catalog.
type Options struct {
	ExecTimeout time.Duration
	Logger      *logging.Logger
	Metrics     *metrics.PrometheusMetrics
	Tracer      *tracing.Tracer
}

// New creates a session owning catalog. Closing the session closes the catalog.
func New(id string, catalog *core.Catalog, gen *generate.Engine, opts Options) *Session {
	logger := logging.OrNop(opts.Logger).WithSession(id)
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		catalog:   catalog,
		gen:       gen,
		resolver:  resolve.NewResolver(catalog, gen,
			resolve.WithTimeout(opts.ExecTimeout),
			resolve.WithLogger(logger),
			resolve.WithTracer(opts.Tracer),
		),
		exec: execute.NewEngine(catalog,
			execute.WithTimeout(opts.ExecTimeout),
			execute.WithLogger(logger),
			execute.WithMetrics(opts.Metrics),
			execute.WithTracer(opts.Tracer),
		),
		logger:    logger,
		metrics:   opts.Metrics,
		sem:       semaphore.NewWeighted(1),
		stream:    generate.NewStream(gen.Seed()),
		index:     make(map[string]int),
		instances: make(map[string]*core.Instance),
		lastUsed:  now,
	}
}

func (s *Session) Catalog() *core.Catalog { return s.catalog }

func (s *Session) Resolver() *resolve.Resolver { return s.resolver }

func (s *Session) Generator() *generate.Engine { return s.gen }

// acquire waits for the session's turn and returns the release func.
func (s *Session) acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.lastUsed = time.Now()
	s.mu.Unlock()
	if closed {
		s.sem.Release(1)
		return nil, ErrClosed
	}
	return func() { s.sem.Release(1) }, nil
}

// Generate returns one fresh argument set for the callable. Class-typed
// parameters get newly built instances. Successive calls draw from the
// session's stream, so they differ while a new session with the same seed
// replays the same sequence.
func (s *Session) Generate(ctx context.Context, sig core.Signature) (core.ArgumentSet, error) {
	args, _, err := s.GenerateExplained(ctx, sig)
	return args, err
}

// GenerateExplained is Generate plus the rationale behind externally suggested values.
func (s *Session) GenerateExplained(ctx context.Context, sig core.Signature) (core.ArgumentSet, map[string]string, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	gctx := s.genContext(sig)
	gctx.Stream = s.stream
	return s.gen.GenerateExplained(ctx, sig, gctx)
}

// GenerateParam returns a fresh value for one parameter of sig.
func (s *Session) GenerateParam(ctx context.Context, sig core.Signature, p core.Parameter) (any, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	gctx := s.genContext(sig)
	gctx.Stream = s.stream
	return s.gen.Generate(ctx, p, gctx)
}

// GenerateFrom draws one argument set from stream, as the cases of a batch do.
func (s *Session) GenerateFrom(ctx context.Context, sig core.Signature, stream core.RandSource) (core.ArgumentSet, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	gctx := s.genContext(sig)
	gctx.Stream = stream
	return s.gen.GenerateSet(ctx, sig, gctx)
}

// GenerateBatch returns count independent argument sets for the callable.
func (s *Session) GenerateBatch(ctx context.Context, sig core.Signature, count int) ([]core.ArgumentSet, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.gen.GenerateBatch(ctx, sig, count, s.genContext(sig))
}

func (s *Session) genContext(sig core.Signature) core.GenContext {
	gctx := s.gen.Context(sig)
	gctx.Instances = s.resolver
	return gctx
}

// ResolveInstance returns the session's instance of class, building one the first time.
func (s *Session) ResolveInstance(ctx context.Context, class *core.ClassDescriptor) (*core.Instance, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.resolveLocked(ctx, class)
}

func (s *Session) resolveLocked(ctx context.Context, class *core.ClassDescriptor) (*core.Instance, error) {
	if class == nil {
		return nil, &core.ResolutionError{Err: core.ErrUnknownClass}
	}
	s.mu.Lock()
	existing := s.instances[class.Key()]
	s.mu.Unlock()

	inst, err := s.resolver.Resolve(ctx, class, existing)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.instances[class.Key()] = inst
	s.mu.Unlock()
	return inst, nil
}

// NewInstance builds an instance of class from explicit arguments and makes it
// the session's instance for later method calls.
func (s *Session) NewInstance(ctx context.Context, class *core.ClassDescriptor, args core.ArgumentSet) (*core.Instance, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := s.resolver.Construct(ctx, class, args)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.instances[class.Key()] = inst
	s.mu.Unlock()
	return inst, nil
}

// Instance returns the session's current instance of a class key.
func (s *Session) Instance(classKey string) (*core.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[classKey]
	return inst, ok
}

// Execute runs the callable and appends its record. Instance methods are bound
// to the session's instance of their class, built on first use. Only a failure
// to build that instance or to expand class payloads is returned as an error;
// everything the call itself does ends up in the record.
func (s *Session) Execute(ctx context.Context, entry core.Entry, args core.ArgumentSet) (core.TestRecord, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return core.TestRecord{}, err
	}
	defer release()

	args, err = s.expandPayloads(ctx, entry.Signature, args)
	if err != nil {
		return core.TestRecord{}, err
	}

	var bound *core.Instance
	if entry.Signature.Kind == core.InstanceMethod {
		if bound, err = s.resolveLocked(ctx, entry.Class); err != nil {
			return core.TestRecord{}, err
		}
	}

	rec := s.exec.Execute(ctx, entry.Signature, args, bound)
	s.append(rec)
	return rec, nil
}

// ExecuteWith runs the callable against an explicit bound instance, as the
// batch runner does with one receiver per case.
func (s *Session) ExecuteWith(ctx context.Context, sig core.Signature, args core.ArgumentSet, bound *core.Instance) (core.TestRecord, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return core.TestRecord{}, err
	}
	defer release()

	rec := s.exec.Execute(ctx, sig, args, bound)
	s.append(rec)
	return rec, nil
}

// Append adds a record produced outside Execute, such as a batch case whose
// arguments could not be generated.
func (s *Session) Append(rec core.TestRecord) {
	s.append(rec)
}

func (s *Session) append(rec core.TestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
}

// expandPayloads replaces {"__class__": name, "__params__": {...}} values with
// instances built from those parameters. Payloads may nest.
func (s *Session) expandPayloads(ctx context.Context, sig core.Signature, args core.ArgumentSet) (core.ArgumentSet, error) {
	var out core.ArgumentSet
	for name, v := range args {
		expanded, changed, err := s.expand(ctx, sig.Module, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		if !changed {
			continue
		}
		if out == nil {
			out = make(core.ArgumentSet, len(args))
			for k, v := range args {
				out[k] = v
			}
		}
		out[name] = expanded
	}
	if out == nil {
		return args, nil
	}
	return out, nil
}

func (s *Session) expand(ctx context.Context, module string, v any) (any, bool, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, false, nil
	}
	name, ok := m["__class__"].(string)
	if !ok {
		return v, false, nil
	}
	class, ok := s.catalog.ClassFor(module, name)
	if !ok {
		return nil, false, &core.ResolutionError{Class: name, Err: ErrNotAClass}
	}
	params, _ := m["__params__"].(map[string]any)
	args := make(core.ArgumentSet, len(params))
	for k, pv := range params {
		expanded, _, err := s.expand(ctx, module, pv)
		if err != nil {
			return nil, false, err
		}
		args[k] = expanded
	}
	inst, err := s.resolver.Construct(ctx, class, args)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// RecordVerdict sets the reviewer verdict of a record. A record moves from
// unreviewed to pass or fail exactly once.
func (s *Session) RecordVerdict(id string, verdict core.Verdict) (core.TestRecord, error) {
	if verdict != core.VerdictPass && verdict != core.VerdictFail {
		return core.TestRecord{}, fmt.Errorf("%w: %q", core.ErrInvalidVerdict, verdict)
	}
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return core.TestRecord{}, fmt.Errorf("%w: %s", core.ErrUnknownRecord, id)
	}
	if s.records[i].Verdict != core.VerdictUnreviewed {
		s.mu.Unlock()
		return core.TestRecord{}, fmt.Errorf("%w: %s is %s", core.ErrVerdictRecorded, id, s.records[i].Verdict)
	}
	s.records[i].Verdict = verdict
	rec := s.records[i]
	s.mu.Unlock()

	s.metrics.RecordVerdict(string(verdict))
	s.logger.LogVerdict(context.Background(), s.ID, id, string(verdict))
	return rec, nil
}

// LatestUnreviewed returns the newest unreviewed record of a callable.
func (s *Session) LatestUnreviewed(callable string) (core.TestRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Callable == callable && s.records[i].Verdict == core.VerdictUnreviewed {
			return s.records[i], true
		}
	}
	return core.TestRecord{}, false
}

func (s *Session) Record(id string) (core.TestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return core.TestRecord{}, fmt.Errorf("%w: %s", core.ErrUnknownRecord, id)
	}
	return s.records[i], nil
}

// Records returns a copy of the log in execution order.
func (s *Session) Records() []core.TestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TestRecord(nil), s.records...)
}

func (s *Session) Summary() core.Summary {
	return core.Summarize(s.Records())
}

// Export is the serialized form of a session log.
type Export struct {
	Session string            `json:"session" yaml:"session"`
	Root    string            `json:"root" yaml:"root"`
	Summary core.Summary      `json:"summary" yaml:"summary"`
	Records []core.TestRecord `json:"records" yaml:"records"`
}

// Export writes the log as "json" (the default) or "yaml".
func (s *Session) Export(w io.Writer, format string) error {
	records := s.Records()
	doc := Export{Session: s.ID, Root: s.catalog.Root, Summary: core.Summarize(records), Records: records}
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// IdleSince reports when the session last started an operation.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Close drops the session's instances and releases its catalog. It waits for
// the operation in flight, if any.
func (s *Session) Close(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.instances = make(map[string]*core.Instance)
	s.mu.Unlock()
	return s.catalog.Close(ctx)
}
