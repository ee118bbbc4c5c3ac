package discovery_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/discovery"
	"github.com/snow-ghost/probe/interp/goexec"
	"github.com/snow-ghost/probe/interp/wasm"
	"github.com/snow-ghost/probe/pkg/metrics"
)

const sampleRoot = "../testdata/sample"

func newEngine(opts ...discovery.Option) *discovery.Engine {
	return discovery.NewEngine([]core.Provider{goexec.NewFrontend(nil), wasm.NewFrontend(nil)}, opts...)
}

func discover(t *testing.T, root string) *core.Catalog {
	t.Helper()
	cat, err := newEngine().Discover(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close(context.Background()) })
	return cat
}

func TestDiscover_SampleTree(t *testing.T) {
	cat := discover(t, sampleRoot)

	assert.Equal(t, []string{
		"broken::Fine",
		"calc::Calculator.Add",
		"calc::Calculator.Double",
		"calc::Calculator.Sum",
		"calc::Calculator.Scientific",
		"calc::Add",
		"calc::Divide",
		"calc::Explode",
		"calc::Factorial",
		"calc::Shout",
		"graph::Node.Len",
		"people::Address.Label",
		"people::Person.Greet",
		"people::Person.Birthday",
		"people::GetPersonInfo",
		"people::Introduce",
		"people::Roster",
		"wasm/arith.wasm::add",
		"wasm/arith.wasm::div",
	}, cat.IDs())

	require.Len(t, cat.Warnings, 1)
	assert.Equal(t, "broken/broken.go", cat.Warnings[0].Path)

	for _, key := range []string{"calc.Calculator", "graph.Node", "people.Address", "people.Person"} {
		_, ok := cat.Class(key)
		assert.True(t, ok, key)
	}
	_, ok := cat.Class("dep.Dep")
	assert.False(t, ok)

	_, err := cat.Runtime(goexec.Language)
	assert.NoError(t, err)
	_, err = cat.Runtime(wasm.Language)
	assert.NoError(t, err)
}

func TestDiscover_Idempotent(t *testing.T) {
	first := discover(t, sampleRoot)
	second := discover(t, sampleRoot)

	opts := cmp.Options{cmpopts.IgnoreUnexported(core.Catalog{}), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Fatalf("repeated discovery differs (-first +second):\n%s", diff)
	}
}

func TestDiscover_SingleFile(t *testing.T) {
	cat := discover(t, filepath.Join(sampleRoot, "calc", "math_util.go"))
	assert.Equal(t, []string{".::Factorial", ".::Shout"}, cat.IDs())
	assert.Empty(t, cat.Warnings)
}

func TestDiscover_InvalidRoot(t *testing.T) {
	m := metrics.NewPrometheusMetrics()
	_, err := newEngine(discovery.WithMetrics(m)).Discover(context.Background(), filepath.Join(sampleRoot, "missing"))
	var de *core.DiscoveryError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDiscover_EmptyDirectory(t *testing.T) {
	cat := discover(t, t.TempDir())
	assert.Empty(t, cat.Entries)
	assert.Empty(t, cat.Warnings)
	_, err := cat.Runtime(goexec.Language)
	assert.ErrorIs(t, err, core.ErrNoRuntime)
}

func TestDiscover_SkipsIgnoredNames(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, src string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	write("lib/lib.go", "package lib\n\nfunc Visible() int { return 1 }\n")
	write("lib/_skip.go", "package lib\n\nfunc Skipped() int { return 1 }\n")
	write("lib/lib_test.go", "package lib\n\nfunc TestOnly() int { return 1 }\n")
	write("node_modules/x/x.go", "package x\n\nfunc X() {}\n")
	write(".git/hooks/h.go", "package hooks\n\nfunc H() {}\n")
	write("notes.txt", "not code")

	cat := discover(t, dir)
	assert.Equal(t, []string{"lib::Visible"}, cat.IDs())
}
