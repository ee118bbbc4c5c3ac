package gosource

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/snow-ghost/probe/core"
)

// Language is the catalog language tag of Go callables.
const Language = "go"

// Parser extracts callables and classes from Go packages. One module is one package directory.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Language() string { return Language }

func (p *Parser) Match(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".go") && !strings.HasSuffix(base, "_test.go")
}

func (p *Parser) ModuleOf(path string) string {
	return filepath.ToSlash(filepath.Dir(path))
}

// ParseModule parses the files of one package. Files are expected in path order.
func (p *Parser) ParseModule(ctx context.Context, module string, files []core.SourceFile) core.ModuleResult {
	var res core.ModuleResult
	var models []*fileModel
	for _, f := range files {
		fm, err := parseFile(ctx, f.Path, f.Content)
		if err != nil {
			res.Warnings = append(res.Warnings, core.ParseWarning{Path: f.Path, Reason: err.Error()})
			continue
		}
		models = append(models, fm)
	}
	b := newBuilder(module, models)
	b.build(&res)
	return res
}

type builder struct {
	module  string
	models  []*fileModel
	classes map[string]*core.ClassDescriptor
	ctors   map[string]*funcDecl
	owned   map[*funcDecl]bool
}

func newBuilder(module string, models []*fileModel) *builder {
	return &builder{
		module:  module,
		models:  models,
		classes: make(map[string]*core.ClassDescriptor),
		ctors:   make(map[string]*funcDecl),
		owned:   make(map[*funcDecl]bool),
	}
}

func exported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// resultClass returns the class a function's first result names, if any.
func (b *builder) resultClass(fd *funcDecl) (string, bool) {
	if len(fd.results) == 0 {
		return "", false
	}
	name := strings.TrimPrefix(fd.results[0], "*")
	_, ok := b.classes[name]
	return name, ok
}

func (b *builder) build(res *core.ModuleResult) {
	var order []string
	types := make(map[string]*typeDecl)
	for _, fm := range b.models {
		for _, d := range fm.decls {
			td := d.typ
			if td == nil || !td.isStruct || td.generic || !exported(td.name) {
				continue
			}
			if _, dup := types[td.name]; dup {
				continue
			}
			types[td.name] = td
			order = append(order, td.name)
			b.classes[td.name] = &core.ClassDescriptor{Name: td.name, Module: b.module, Doc: td.doc}
		}
	}

	// constructors first so factories never claim a New<Type> function
	for _, fm := range b.models {
		for _, d := range fm.decls {
			fd := d.fn
			if fd == nil || fd.method || fd.generic || !strings.HasPrefix(fd.name, "New") {
				continue
			}
			name, ok := b.resultClass(fd)
			if !ok || fd.name != "New"+name {
				continue
			}
			if _, dup := b.ctors[name]; !dup {
				b.ctors[name] = fd
				b.owned[fd] = true
			}
		}
	}

	for _, name := range order {
		cls := b.classes[name]
		if ctor, ok := b.ctors[name]; ok {
			cls.Constructor = b.signature(ctor, core.ClassMethod, name)
			cls.Constructor.QualifiedName = ctor.name
		} else {
			cls.Constructor = b.fieldConstructor(types[name])
			cls.FieldInit = true
		}
	}

	for _, fm := range b.models {
		for _, d := range fm.decls {
			fd := d.fn
			if fd == nil || fd.generic || !exported(fd.name) || b.owned[fd] {
				continue
			}
			if fd.method {
				cls, ok := b.classes[fd.recvType]
				if !ok {
					continue
				}
				kind := core.InstanceMethod
				if fd.recvName == "" || fd.recvName == "_" {
					kind = core.StaticMethod
				}
				cls.Methods = append(cls.Methods, b.signature(fd, kind, cls.Name))
				b.owned[fd] = true
				continue
			}
			if name, ok := b.resultClass(fd); ok {
				cls := b.classes[name]
				cls.Methods = append(cls.Methods, b.signature(fd, core.ClassMethod, name))
				b.owned[fd] = true
			}
		}
	}

	for _, name := range order {
		res.Classes = append(res.Classes, b.classes[name])
	}

	// entries follow declaration order; a class contributes its methods where the type is declared
	for _, fm := range b.models {
		for _, d := range fm.decls {
			switch {
			case d.typ != nil:
				cls, ok := b.classes[d.typ.name]
				if !ok || types[d.typ.name] != d.typ {
					continue
				}
				for _, m := range cls.Methods {
					res.Entries = append(res.Entries, core.Entry{Signature: m, Class: cls})
				}
			case d.fn != nil:
				fd := d.fn
				if fd.method || fd.generic || !exported(fd.name) || b.owned[fd] {
					continue
				}
				res.Entries = append(res.Entries, core.Entry{Signature: b.signature(fd, core.FreeFunction, "")})
			}
		}
	}
}

func (b *builder) signature(fd *funcDecl, kind core.CallableKind, owner string) core.Signature {
	qualified := fd.name
	if owner != "" {
		qualified = owner + "." + fd.name
	}
	sig := core.Signature{
		Module:          b.module,
		QualifiedName:   qualified,
		Name:            fd.name,
		Results:         fd.results,
		Doc:             fd.doc,
		Kind:            kind,
		Owner:           owner,
		PointerReceiver: fd.recvPointer,
		Language:        Language,
	}
	seen := make(map[string]bool, len(fd.params))
	for i, p := range fd.params {
		name := p.name
		if name == "" || name == "_" || seen[name] {
			name = "arg" + strconv.Itoa(i)
		}
		seen[name] = true
		param := core.Parameter{Name: name, TypeHint: p.typ, Position: i}
		if p.variadic {
			param.TypeHint = "..." + p.typ
			param.Variadic = true
			param.HasDefault = true
			param.Default = []any{}
		}
		sig.Params = append(sig.Params, param)
	}
	return sig
}

// fieldConstructor synthesizes a constructor from the exported fields of td.
func (b *builder) fieldConstructor(td *typeDecl) core.Signature {
	sig := core.Signature{
		Module:        b.module,
		QualifiedName: td.name,
		Name:          td.name,
		Results:       []string{"*" + td.name},
		Doc:           td.doc,
		Kind:          core.ClassMethod,
		Owner:         td.name,
		Language:      Language,
	}
	for _, f := range td.fields {
		if !exported(f.name) {
			continue
		}
		param := core.Parameter{Name: f.name, TypeHint: f.typ, Position: len(sig.Params)}
		if f.hasDefault {
			param.HasDefault = true
			param.Default = core.ParseLiteral(f.def)
			if f.typ == "string" {
				param.Default = f.def
			}
		}
		sig.Params = append(sig.Params, param)
	}
	return sig
}
