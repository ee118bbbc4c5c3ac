package wasm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snow-ghost/probe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = "arith.wasm"

func parseTestModule(t *testing.T) core.ModuleResult {
	t.Helper()
	f := NewFrontend(nil)
	require.True(t, f.Match("lib/arith.wasm"))
	require.False(t, f.Match("lib/arith.go"))
	return f.ParseModule(context.Background(), testModule, []core.SourceFile{{Path: testModule, Content: GetTestModule()}})
}

func TestFrontend_ParseModule(t *testing.T) {
	res := parseTestModule(t)
	require.Empty(t, res.Warnings)
	require.Len(t, res.Entries, 2)

	add := res.Entries[0].Signature
	assert.Equal(t, "arith.wasm::add", add.ID())
	assert.Equal(t, core.FreeFunction, add.Kind)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "a", add.Params[0].Name)
	assert.Equal(t, "i32", add.Params[0].TypeHint)
	assert.Equal(t, []string{"i32"}, add.Results)

	div := res.Entries[1].Signature
	assert.Equal(t, "div", div.Name)
	assert.Equal(t, "p0", div.Params[0].Name)
	assert.Equal(t, "p1", div.Params[1].Name)
}

func TestFrontend_ParseModuleInvalid(t *testing.T) {
	f := NewFrontend(nil)
	res := f.ParseModule(context.Background(), "bad.wasm", []core.SourceFile{{Path: "bad.wasm", Content: []byte("not wasm")}})
	assert.Empty(t, res.Entries)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "bad.wasm", res.Warnings[0].Path)
}

func TestRuntime_Invoke(t *testing.T) {
	res := parseTestModule(t)
	rt := NewRuntime(map[string][]core.SourceFile{testModule: {{Path: testModule, Content: GetTestModule()}}})
	defer rt.Close(context.Background())

	ctx := context.Background()
	add, div := res.Entries[0].Signature, res.Entries[1].Signature

	t.Run("add", func(t *testing.T) {
		args, err := core.Bind(add, core.ArgumentSet{"a": 10, "b": 20})
		require.NoError(t, err)
		got, err := rt.Invoke(ctx, add, nil, args)
		require.NoError(t, err)
		assert.Equal(t, 30, got)
	})

	t.Run("negative numbers", func(t *testing.T) {
		args, err := core.Bind(add, core.ArgumentSet{"a": -5, "b": 2.0})
		require.NoError(t, err)
		got, err := rt.Invoke(ctx, add, nil, args)
		require.NoError(t, err)
		assert.Equal(t, -3, got)
	})

	t.Run("trap is a callee error", func(t *testing.T) {
		args, err := core.Bind(div, core.ArgumentSet{"p0": 1, "p1": 0})
		require.NoError(t, err)
		_, err = rt.Invoke(ctx, div, nil, args)
		var ce *core.CalleeError
		require.True(t, errors.As(err, &ce), "got %v", err)
	})

	t.Run("type mismatch", func(t *testing.T) {
		args, err := core.Bind(add, core.ArgumentSet{"a": "ten", "b": 1})
		require.NoError(t, err)
		_, err = rt.Invoke(ctx, add, nil, args)
		var ae *core.ArgumentError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "a", ae.Param)
	})

	t.Run("fractional value for i32", func(t *testing.T) {
		args, err := core.Bind(add, core.ArgumentSet{"a": 1.5, "b": 1})
		require.NoError(t, err)
		_, err = rt.Invoke(ctx, add, nil, args)
		var ae *core.ArgumentError
		assert.True(t, errors.As(err, &ae))
	})
}

func TestRuntime_MissingModule(t *testing.T) {
	rt := NewRuntime(nil)
	defer rt.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := rt.Invoke(ctx, core.Signature{Module: "gone.wasm", Name: "f"}, nil, nil)
	var le *core.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "gone.wasm", le.Module)

	_, err = rt.Construct(ctx, core.ClassDescriptor{}, nil)
	assert.Error(t, err)
}
