package resolve_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/discovery"
	"github.com/snow-ghost/probe/execute"
	"github.com/snow-ghost/probe/generate"
	"github.com/snow-ghost/probe/interp/goexec"
	"github.com/snow-ghost/probe/interp/wasm"
	"github.com/snow-ghost/probe/resolve"
)

const sampleRoot = "../testdata/sample"

func newResolver(t *testing.T) (*resolve.Resolver, *core.Catalog) {
	t.Helper()
	engine := discovery.NewEngine([]core.Provider{goexec.NewFrontend(nil), wasm.NewFrontend(nil)})
	cat, err := engine.Discover(context.Background(), sampleRoot)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close(context.Background()) })
	return resolve.NewResolver(cat, generate.NewEngine(generate.WithSeed(9))), cat
}

func class(t *testing.T, cat *core.Catalog, key string) *core.ClassDescriptor {
	t.Helper()
	cls, ok := cat.Class(key)
	require.True(t, ok, "unknown class %s", key)
	return cls
}

func field(t *testing.T, v any, name string) any {
	t.Helper()
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	f := rv.FieldByName(name)
	require.True(t, f.IsValid(), "no field %s", name)
	return f.Interface()
}

func TestResolver_Resolve(t *testing.T) {
	r, cat := newResolver(t)
	person := class(t, cat, "people.Person")

	inst, err := r.Resolve(context.Background(), person, nil)
	require.NoError(t, err)
	assert.Equal(t, "Person", inst.Class)
	assert.Equal(t, "people", inst.Module)
	assert.NotEmpty(t, inst.ID)
	assert.True(t, inst.Args.Covers(person.Constructor))
	assert.Equal(t, inst.Args["name"], field(t, inst.Value, "Name"))
	assert.Equal(t, inst.Args["age"], field(t, inst.Value, "Age"))

	again, err := r.Resolve(context.Background(), person, inst)
	require.NoError(t, err)
	assert.Same(t, inst, again)

	address := class(t, cat, "people.Address")
	other, err := r.Resolve(context.Background(), address, inst)
	require.NoError(t, err)
	assert.NotSame(t, inst, other)
	assert.Equal(t, "Address", other.Class)
}

func TestResolver_FieldDefaults(t *testing.T) {
	r, cat := newResolver(t)

	inst, err := r.Resolve(context.Background(), class(t, cat, "people.Address"), nil)
	require.NoError(t, err)
	assert.Contains(t, inst.Args, "Street")
	assert.NotContains(t, inst.Args, "City")
	assert.Equal(t, "Springfield", field(t, inst.Value, "City"))
	assert.Equal(t, 12345, field(t, inst.Value, "Zip"))
}

func TestResolver_SelfReferenceIsCycle(t *testing.T) {
	r, cat := newResolver(t)

	_, err := r.Resolve(context.Background(), class(t, cat, "graph.Node"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConstructionCycle)

	var cycle *core.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"graph.Node", "graph.Node"}, cycle.Path)
}

func TestResolver_Construct(t *testing.T) {
	r, cat := newResolver(t)
	person := class(t, cat, "people.Person")

	inst, err := r.Construct(context.Background(), person, core.ArgumentSet{"name": "Alice", "age": 30})
	require.NoError(t, err)
	assert.Equal(t, "Alice", field(t, inst.Value, "Name"))
	assert.Equal(t, 30, field(t, inst.Value, "Age"))

	var resErr *core.ResolutionError
	_, err = r.Construct(context.Background(), person, core.ArgumentSet{"name": "Bob", "age": "old"})
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "people.Person", resErr.Class)

	_, err = r.Construct(context.Background(), person, core.ArgumentSet{"name": "Bob", "age": 1, "height": 2})
	assert.ErrorAs(t, err, &resErr)

	_, err = r.Construct(context.Background(), nil, nil)
	assert.ErrorIs(t, err, core.ErrUnknownClass)
}

func TestResolver_SupplyClassParameters(t *testing.T) {
	r, cat := newResolver(t)
	entry, err := cat.Lookup("people::GetPersonInfo")
	require.NoError(t, err)

	gen := generate.NewEngine(generate.WithSeed(1))
	gctx := gen.Context(entry.Signature)
	gctx.Instances = r
	set, err := gen.GenerateSet(context.Background(), entry.Signature, gctx)
	require.NoError(t, err)

	inst, ok := set["person"].(*core.Instance)
	require.True(t, ok, "got %T", set["person"])
	assert.Equal(t, "Person", inst.Class)

	_, ok, err = r.Supply(context.Background(), entry.Signature, core.Parameter{Name: "count", TypeHint: "int"}, gctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_ClassFor(t *testing.T) {
	r, _ := newResolver(t)

	cls, ok := r.ClassFor("people", core.Parameter{Name: "mainPerson"})
	require.True(t, ok)
	assert.Equal(t, "Person", cls.Name)

	cls, ok = r.ClassFor("people", core.Parameter{Name: "x", TypeHint: "people.Address"})
	require.True(t, ok)
	assert.Equal(t, "Address", cls.Name)

	_, ok = r.ClassFor("people", core.Parameter{Name: "person", TypeHint: "string"})
	assert.False(t, ok)

	_, ok = r.ClassFor("calc", core.Parameter{Name: "person"})
	assert.False(t, ok)
}

const slowSource = `package slow

import "time"

type Slow struct {
	Ready bool
}

func NewSlow() *Slow {
	time.Sleep(2 * time.Second)
	return &Slow{Ready: true}
}

type Quick struct {
	Ready bool
}

func NewQuick() *Quick {
	return &Quick{Ready: true}
}
`

func TestResolver_ConstructorTimeout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "slow"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "slow", "slow.go"), []byte(slowSource), 0o644))
	engine := discovery.NewEngine([]core.Provider{goexec.NewFrontend(nil)})
	cat, err := engine.Discover(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close(context.Background()) })

	r := resolve.NewResolver(cat, generate.NewEngine(), resolve.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err = r.Resolve(context.Background(), class(t, cat, "slow.Slow"), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	var resErr *core.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "slow.Slow", resErr.Class)
	assert.ErrorIs(t, err, execute.ErrTimeout)

	inst, err := r.Resolve(context.Background(), class(t, cat, "slow.Quick"), nil)
	require.NoError(t, err)
	assert.Equal(t, true, field(t, inst.Value, "Ready"))
}
