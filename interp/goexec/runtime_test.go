package goexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
)

const sampleRoot = "../../testdata/sample"

type fixture struct {
	rt      *Runtime
	sigs    map[string]core.Signature
	classes map[string]*core.ClassDescriptor
}

func readPackage(t *testing.T, dir string) []core.SourceFile {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(sampleRoot, dir))
	require.NoError(t, err)
	var files []core.SourceFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_test.go") || filepath.Ext(name) != ".go" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(sampleRoot, dir, name))
		require.NoError(t, err)
		files = append(files, core.SourceFile{Path: dir + "/" + name, Content: content})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func newFixture(t *testing.T, dirs ...string) *fixture {
	t.Helper()
	f := NewFrontend(nil)
	modules := make(map[string][]core.SourceFile)
	fx := &fixture{sigs: map[string]core.Signature{}, classes: map[string]*core.ClassDescriptor{}}
	for _, dir := range dirs {
		files := readPackage(t, dir)
		modules[dir] = files
		res := f.ParseModule(context.Background(), dir, files)
		for _, e := range res.Entries {
			fx.sigs[e.Signature.ID()] = e.Signature
		}
		for _, c := range res.Classes {
			fx.classes[c.Key()] = c
		}
	}
	fx.rt = NewRuntime(f.Parser, modules, nil)
	t.Cleanup(func() { _ = fx.rt.Close(context.Background()) })
	return fx
}

func (fx *fixture) invoke(t *testing.T, id string, recv *core.Instance, args core.ArgumentSet) (any, error) {
	t.Helper()
	sig, ok := fx.sigs[id]
	require.True(t, ok, "unknown callable %s", id)
	bound, err := core.Bind(sig, args)
	require.NoError(t, err)
	return fx.rt.Invoke(context.Background(), sig, recv, bound)
}

func (fx *fixture) construct(t *testing.T, key string, args core.ArgumentSet) *core.Instance {
	t.Helper()
	cls, ok := fx.classes[key]
	require.True(t, ok, "unknown class %s", key)
	bound, err := core.Bind(cls.Constructor, args)
	require.NoError(t, err)
	v, err := fx.rt.Construct(context.Background(), *cls, bound)
	require.NoError(t, err)
	return &core.Instance{Class: cls.Name, Value: v}
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

func TestRuntime_FreeFunctions(t *testing.T) {
	fx := newFixture(t, "calc")

	got, err := fx.invoke(t, "calc::Add", nil, core.ArgumentSet{"a": 10, "b": 20})
	require.NoError(t, err)
	assert.Equal(t, 30, got)

	got, err = fx.invoke(t, "calc::Factorial", nil, core.ArgumentSet{"n": 5})
	require.NoError(t, err)
	assert.Equal(t, 120, got)

	got, err = fx.invoke(t, "calc::Divide", nil, core.ArgumentSet{"a": 1, "b": 4})
	require.NoError(t, err)
	assert.Equal(t, 0.25, got)
}

func TestRuntime_CalleeFailures(t *testing.T) {
	fx := newFixture(t, "calc")

	_, err := fx.invoke(t, "calc::Divide", nil, core.ArgumentSet{"a": 1, "b": 0})
	var ce *core.CalleeError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.False(t, ce.Panic)
	assert.Contains(t, ce.Error(), "division by zero")

	_, err = fx.invoke(t, "calc::Factorial", nil, core.ArgumentSet{"n": -1})
	require.True(t, errors.As(err, &ce))

	_, err = fx.invoke(t, "calc::Explode", nil, core.ArgumentSet{"message": "boom"})
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.True(t, ce.Panic)
	assert.Contains(t, ce.Error(), "boom")
}

func TestRuntime_ArgumentErrors(t *testing.T) {
	fx := newFixture(t, "calc")

	_, err := fx.invoke(t, "calc::Add", nil, core.ArgumentSet{"a": "ten", "b": 1})
	var ae *core.ArgumentError
	require.True(t, errors.As(err, &ae), "got %v", err)
	assert.Equal(t, "a", ae.Param)

	_, err = fx.invoke(t, "calc::Calculator.Add", nil, core.ArgumentSet{"a": 1, "b": 2})
	require.True(t, errors.As(err, &ae), "got %v", err)
}

func TestRuntime_Methods(t *testing.T) {
	fx := newFixture(t, "calc")

	calc := fx.construct(t, "calc.Calculator", core.ArgumentSet{})
	assert.Equal(t, 2, field(t, calc.Value, "Precision"))

	got, err := fx.invoke(t, "calc::Calculator.Add", calc, core.ArgumentSet{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	got, err = fx.invoke(t, "calc::Calculator.Double", nil, core.ArgumentSet{"x": 2.5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	got, err = fx.invoke(t, "calc::Calculator.Sum", nil, core.ArgumentSet{"values": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	got, err = fx.invoke(t, "calc::Calculator.Sum", nil, core.ArgumentSet{})
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	sci, err := fx.invoke(t, "calc::Calculator.Scientific", nil, core.ArgumentSet{"precision": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, field(t, sci, "Precision"))
}

func TestRuntime_Constructors(t *testing.T) {
	fx := newFixture(t, "people")

	alice := fx.construct(t, "people.Person", core.ArgumentSet{"name": "Alice", "age": 30})
	got, err := fx.invoke(t, "people::GetPersonInfo", nil, core.ArgumentSet{"person": alice})
	require.NoError(t, err)
	assert.Equal(t, "Alice is 30 years old", got)

	got, err = fx.invoke(t, "people::Person.Greet", alice, core.ArgumentSet{"greeting": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Alice!", got)

	addr := fx.construct(t, "people.Address", core.ArgumentSet{"Street": "Main"})
	assert.Equal(t, 12345, field(t, addr.Value, "Zip"))
	got, err = fx.invoke(t, "people::Address.Label", addr, nil)
	require.NoError(t, err)
	assert.Equal(t, "Main, Springfield", got)
}

func TestRuntime_ValueTypedClassArgument(t *testing.T) {
	fx := newFixture(t, "people")

	bob := fx.construct(t, "people.Person", core.ArgumentSet{"name": "Bob", "age": 40})
	got, err := fx.invoke(t, "people::Introduce", nil, core.ArgumentSet{"person": bob})
	require.NoError(t, err)
	assert.Equal(t, "This is Bob", got)

	// the callee gets a copy, the instance keeps its own state
	_, err = fx.invoke(t, "people::Person.Birthday", bob, nil)
	require.NoError(t, err)
	assert.Equal(t, 41, field(t, bob.Value, "Age"))

	got, err = fx.invoke(t, "people::Introduce", nil, core.ArgumentSet{"person": map[string]any{"Name": "Eve"}})
	require.NoError(t, err)
	assert.Equal(t, "This is Eve", got)
}

func TestRuntime_SkipsBrokenFiles(t *testing.T) {
	fx := newFixture(t, "broken")
	got, err := fx.invoke(t, "broken::Fine", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, []string{"broken"}, fx.rt.Loaded())
}

func TestRuntime_UnknownModule(t *testing.T) {
	rt := NewRuntime(NewFrontend(nil).Parser, nil, nil)
	_, err := rt.Invoke(context.Background(), core.Signature{Module: "gone", Name: "F", Kind: core.FreeFunction}, nil, nil)
	var le *core.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "gone", le.Module)

	// the failure is remembered
	_, err = rt.Invoke(context.Background(), core.Signature{Module: "gone", Name: "G", Kind: core.FreeFunction}, nil, nil)
	assert.True(t, errors.As(err, &le))
	assert.Empty(t, rt.Loaded())
}
