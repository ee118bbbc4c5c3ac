package gosource

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
)

const sampleRoot = "../../testdata/sample"

// loadPackage reads the parseable files of one fixture package in path order.
func loadPackage(t *testing.T, dir string) []core.SourceFile {
	t.Helper()
	p := NewParser()
	entries, err := os.ReadDir(filepath.Join(sampleRoot, dir))
	require.NoError(t, err)
	var files []core.SourceFile
	for _, e := range entries {
		rel := dir + "/" + e.Name()
		if e.IsDir() || strings.HasPrefix(e.Name(), "_") || !p.Match(rel) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(sampleRoot, rel))
		require.NoError(t, err)
		files = append(files, core.SourceFile{Path: rel, Content: content})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func ids(entries []core.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Signature.ID()
	}
	return out
}

func TestParser_Match(t *testing.T) {
	p := NewParser()
	assert.True(t, p.Match("calc/calculator.go"))
	assert.False(t, p.Match("calc/calc_test.go"))
	assert.False(t, p.Match("calc/notes.txt"))
	assert.Equal(t, "calc", p.ModuleOf("calc/calculator.go"))
	assert.Equal(t, ".", p.ModuleOf("main.go"))
}

func TestParseModule_Calculator(t *testing.T) {
	p := NewParser()
	res := p.ParseModule(context.Background(), "calc", loadPackage(t, "calc"))
	require.Empty(t, res.Warnings)

	assert.Equal(t, []string{
		"calc::Calculator.Add",
		"calc::Calculator.Double",
		"calc::Calculator.Sum",
		"calc::Calculator.Scientific",
		"calc::Add",
		"calc::Divide",
		"calc::Explode",
		"calc::Factorial",
		"calc::Shout",
	}, ids(res.Entries))

	require.Len(t, res.Classes, 1)
	calc := res.Classes[0]
	assert.Equal(t, "Calculator", calc.Name)
	assert.Equal(t, "Calculator does arithmetic with a fixed precision.", calc.Doc)
	assert.True(t, calc.FieldInit)
	require.Len(t, calc.Constructor.Params, 1)
	assert.Equal(t, core.Parameter{Name: "Precision", TypeHint: "int", HasDefault: true, Default: 2}, calc.Constructor.Params[0])

	byID := map[string]core.Signature{}
	for _, e := range res.Entries {
		byID[e.Signature.ID()] = e.Signature
		if e.Signature.Kind.Owned() {
			require.NotNil(t, e.Class)
			assert.Equal(t, "Calculator", e.Class.Name)
		} else {
			assert.Nil(t, e.Class)
		}
	}

	add := byID["calc::Calculator.Add"]
	assert.Equal(t, core.InstanceMethod, add.Kind)
	assert.Equal(t, "Calculator", add.Owner)
	assert.Equal(t, "Add returns the sum of a and b.", add.Doc)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "a", add.Params[0].Name)
	assert.Equal(t, "b", add.Params[1].Name)
	assert.Equal(t, 1, add.Params[1].Position)
	assert.Equal(t, "int", add.Params[1].TypeHint)

	assert.Equal(t, core.StaticMethod, byID["calc::Calculator.Double"].Kind)

	sum := byID["calc::Calculator.Sum"]
	assert.Equal(t, core.StaticMethod, sum.Kind)
	assert.True(t, sum.PointerReceiver)
	require.Len(t, sum.Params, 1)
	assert.Equal(t, "...int", sum.Params[0].TypeHint)
	assert.True(t, sum.Params[0].Variadic)
	assert.True(t, sum.Params[0].HasDefault)
	assert.Equal(t, []any{}, sum.Params[0].Default)

	sci := byID["calc::Calculator.Scientific"]
	assert.Equal(t, core.ClassMethod, sci.Kind)
	assert.Equal(t, "Scientific", sci.Name)
	assert.Equal(t, "Calculator.Scientific", sci.QualifiedName)
	assert.Equal(t, "Calculator", sci.Owner)
	_, free := byID["calc::Scientific"]
	assert.False(t, free, "factories are owned by the class they build")

	div := byID["calc::Divide"]
	assert.Equal(t, core.FreeFunction, div.Kind)
	assert.Empty(t, div.Owner)
	assert.Equal(t, []string{"float64", "error"}, div.Results)
}

func TestParseModule_People(t *testing.T) {
	p := NewParser()
	res := p.ParseModule(context.Background(), "people", loadPackage(t, "people"))
	require.Empty(t, res.Warnings)

	assert.Equal(t, []string{
		"people::Address.Label",
		"people::Person.Greet",
		"people::Person.Birthday",
		"people::GetPersonInfo",
		"people::Introduce",
		"people::Roster",
	}, ids(res.Entries))

	require.Len(t, res.Classes, 2)
	addr, person := res.Classes[0], res.Classes[1]

	assert.Equal(t, "Address", addr.Name)
	assert.True(t, addr.FieldInit)
	require.Len(t, addr.Constructor.Params, 3)
	assert.False(t, addr.Constructor.Params[0].HasDefault)
	assert.Equal(t, "Springfield", addr.Constructor.Params[1].Default)
	assert.Equal(t, 12345, addr.Constructor.Params[2].Default)

	assert.Equal(t, "Person", person.Name)
	assert.False(t, person.FieldInit)
	assert.Equal(t, "NewPerson", person.Constructor.Name)
	require.Len(t, person.Constructor.Params, 2)
	assert.Equal(t, "name", person.Constructor.Params[0].Name)
	assert.Equal(t, "age", person.Constructor.Params[1].Name)

	info := res.Entries[3].Signature
	require.Len(t, info.Params, 1)
	assert.Equal(t, "*Person", info.Params[0].TypeHint)
}

func TestParseModule_SkipsGenericsAndForeignMethods(t *testing.T) {
	src := `package gen

// Map is generic.
func Map[T any](xs []T) []T { return xs }

type Box[T any] struct{ V T }

func (b *Box[T]) Get() T { return b.V }

type Celsius float64

func (c Celsius) Fahrenheit() float64 { return float64(c)*9/5 + 32 }

// Plain returns x.
func Plain(x int) int { return x }

func Unnamed(int, string) bool { return true }

func _private() {}
`
	p := NewParser()
	res := p.ParseModule(context.Background(), "gen", []core.SourceFile{{Path: "gen/gen.go", Content: []byte(src)}})
	require.Empty(t, res.Warnings)
	assert.Empty(t, res.Classes)
	assert.Equal(t, []string{"gen::Plain", "gen::Unnamed"}, ids(res.Entries))

	assert.Equal(t, "Plain returns x.", res.Entries[0].Signature.Doc)
	unnamed := res.Entries[1].Signature
	require.Len(t, unnamed.Params, 2)
	assert.Equal(t, "arg0", unnamed.Params[0].Name)
	assert.Equal(t, "arg1", unnamed.Params[1].Name)
	assert.Equal(t, "string", unnamed.Params[1].TypeHint)
}

func TestParseModule_BrokenFileIsAWarning(t *testing.T) {
	p := NewParser()
	res := p.ParseModule(context.Background(), "broken", loadPackage(t, "broken"))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "broken/broken.go", res.Warnings[0].Path)
	assert.Contains(t, res.Warnings[0].Reason, "syntax error")
	assert.Equal(t, []string{"broken::Fine"}, ids(res.Entries))
}

func TestSplitAndJoin(t *testing.T) {
	ctx := context.Background()
	a, err := SplitFile(ctx, []byte("package calc\n\nimport \"errors\"\n\nvar ErrX = errors.New(\"x\")\n"))
	require.NoError(t, err)
	assert.Equal(t, "calc", a.Package)
	assert.Equal(t, []string{`"errors"`}, a.Imports)

	b, err := SplitFile(ctx, []byte("package calc\n\nimport (\n\t\"errors\"\n\tstr \"strings\"\n)\n\nfunc Up(s string) string { return str.ToUpper(s) }\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`"errors"`, `str "strings"`}, b.Imports)

	src, err := JoinUnits([]*Unit{a, b})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, "package main\n"))
	assert.Equal(t, 1, strings.Count(src, `"errors"`))
	assert.Contains(t, src, `str "strings"`)
	assert.Contains(t, src, "var ErrX")
	assert.Contains(t, src, "func Up(s string) string")

	_, err = SplitFile(ctx, []byte("package calc\nfunc ("))
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)

	c := &Unit{Imports: []string{`str "bytes"`}}
	_, err = JoinUnits([]*Unit{b, c})
	assert.Error(t, err)
}
