// Package gosource discovers callables in Go source with tree-sitter.
package gosource

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

type param struct {
	name     string
	typ      string
	variadic bool
}

type funcDecl struct {
	name        string
	doc         string
	method      bool
	recvName    string
	recvType    string
	recvPointer bool
	generic     bool
	params      []param
	results     []string
}

type field struct {
	name       string
	typ        string
	def        string
	hasDefault bool
}

type typeDecl struct {
	name     string
	doc      string
	isStruct bool
	generic  bool
	fields   []field
}

// decl is one top-level declaration in source order. Exactly one of fn and typ is set.
type decl struct {
	fn  *funcDecl
	typ *typeDecl
}

type fileModel struct {
	path  string
	pkg   string
	decls []decl
}

// SyntaxError reports the first error node of a failed parse.
type SyntaxError struct {
	Line   int
	Column int
	Near   string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at %d:%d", e.Line, e.Column)
	}
	return fmt.Sprintf("syntax error at %d:%d near %q", e.Line, e.Column, e.Near)
}

func parseTree(ctx context.Context, content []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	root := tree.RootNode()
	if root.HasError() {
		defer tree.Close()
		return nil, syntaxError(root, content)
	}
	return tree, nil
}

func syntaxError(root *sitter.Node, content []byte) error {
	n := findFirstError(root)
	if n == nil {
		n = root
	}
	near := strings.TrimSpace(n.Content(content))
	if i := strings.IndexByte(near, '\n'); i >= 0 {
		near = near[:i]
	}
	if len(near) > 40 {
		near = near[:40]
	}
	return &SyntaxError{
		Line:   int(n.StartPoint().Row + 1),
		Column: int(n.StartPoint().Column + 1),
		Near:   near,
	}
}

func findFirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if n := findFirstError(node.Child(int(i))); n != nil {
			return n
		}
	}
	return nil
}

// parseFile builds the declaration model of one file.
func parseFile(ctx context.Context, path string, content []byte) (*fileModel, error) {
	tree, err := parseTree(ctx, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	fm := &fileModel{path: path}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "package_identifier" {
					fm.pkg = id.Content(content)
				}
			}
		case "function_declaration":
			fm.decls = append(fm.decls, decl{fn: parseFunc(child, content, false)})
		case "method_declaration":
			fm.decls = append(fm.decls, decl{fn: parseFunc(child, content, true)})
		case "type_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "type_spec" {
					continue
				}
				td := parseTypeSpec(spec, content)
				td.doc = docComment(spec, content)
				if td.doc == "" {
					td.doc = docComment(child, content)
				}
				fm.decls = append(fm.decls, decl{typ: td})
			}
		}
	}
	return fm, nil
}

func parseFunc(node *sitter.Node, content []byte, method bool) *funcDecl {
	fd := &funcDecl{method: method, doc: docComment(node, content)}
	if name := node.ChildByFieldName("name"); name != nil {
		fd.name = name.Content(content)
	}
	fd.generic = node.ChildByFieldName("type_parameters") != nil
	if method {
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			parseReceiver(recv, content, fd)
		}
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		fd.params = parseParams(params, content)
	}
	if res := node.ChildByFieldName("result"); res != nil {
		if res.Type() == "parameter_list" {
			for _, p := range parseParams(res, content) {
				fd.results = append(fd.results, p.typ)
			}
		} else {
			fd.results = []string{res.Content(content)}
		}
	}
	return fd
}

func parseReceiver(list *sitter.Node, content []byte, fd *funcDecl) {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		pd := list.NamedChild(i)
		if pd.Type() != "parameter_declaration" {
			continue
		}
		if name := pd.ChildByFieldName("name"); name != nil {
			fd.recvName = name.Content(content)
		}
		typ := pd.ChildByFieldName("type")
		if typ == nil {
			return
		}
		if typ.Type() == "pointer_type" {
			fd.recvPointer = true
			if typ.NamedChildCount() > 0 {
				typ = typ.NamedChild(0)
			}
		}
		if typ.Type() == "generic_type" {
			fd.generic = true
			if t := typ.ChildByFieldName("type"); t != nil {
				typ = t
			}
		}
		fd.recvType = typ.Content(content)
		return
	}
}

// parseParams flattens a parameter_list; "a, b int" yields two params.
func parseParams(list *sitter.Node, content []byte) []param {
	var out []param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		pd := list.NamedChild(i)
		variadic := pd.Type() == "variadic_parameter_declaration"
		if pd.Type() != "parameter_declaration" && !variadic {
			continue
		}
		var typ string
		if t := pd.ChildByFieldName("type"); t != nil {
			typ = t.Content(content)
		}
		var names []string
		for j := 0; j < int(pd.NamedChildCount()); j++ {
			if n := pd.NamedChild(j); n.Type() == "identifier" {
				names = append(names, n.Content(content))
			}
		}
		if len(names) == 0 {
			names = []string{""}
		}
		for _, n := range names {
			out = append(out, param{name: n, typ: typ, variadic: variadic})
		}
	}
	return out
}

func parseTypeSpec(spec *sitter.Node, content []byte) *typeDecl {
	td := &typeDecl{}
	if name := spec.ChildByFieldName("name"); name != nil {
		td.name = name.Content(content)
	}
	td.generic = spec.ChildByFieldName("type_parameters") != nil
	typ := spec.ChildByFieldName("type")
	if typ == nil || typ.Type() != "struct_type" {
		return td
	}
	td.isStruct = true
	for i := 0; i < int(typ.NamedChildCount()); i++ {
		list := typ.NamedChild(i)
		if list.Type() != "field_declaration_list" {
			continue
		}
		for j := 0; j < int(list.NamedChildCount()); j++ {
			fdecl := list.NamedChild(j)
			if fdecl.Type() == "field_declaration" {
				td.fields = append(td.fields, parseField(fdecl, content)...)
			}
		}
	}
	return td
}

func parseField(node *sitter.Node, content []byte) []field {
	var typ, def string
	var hasDefault bool
	if t := node.ChildByFieldName("type"); t != nil {
		typ = t.Content(content)
	}
	if tag := node.ChildByFieldName("tag"); tag != nil {
		def, hasDefault = defaultTag(tag.Content(content))
	}
	var out []field
	for i := 0; i < int(node.NamedChildCount()); i++ {
		n := node.NamedChild(i)
		if n.Type() != "field_identifier" {
			continue
		}
		out = append(out, field{name: n.Content(content), typ: typ, def: def, hasDefault: hasDefault})
	}
	return out
}

// defaultTag reads the `default:"..."` key of a struct tag literal.
func defaultTag(lit string) (string, bool) {
	raw, err := strconv.Unquote(lit)
	if err != nil {
		return "", false
	}
	return reflect.StructTag(raw).Lookup("default")
}

// docComment joins the line comments directly above node.
func docComment(node *sitter.Node, content []byte) string {
	var lines []string
	line := node.StartPoint().Row
	for prev := node.PrevNamedSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevNamedSibling() {
		if prev.EndPoint().Row+1 != line {
			break
		}
		lines = append(lines, prev.Content(content))
		line = prev.StartPoint().Row
	}
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(lines) - 1; i >= 0; i-- {
		text := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(text, "//"):
			text = strings.TrimSpace(strings.TrimPrefix(text, "//"))
		case strings.HasPrefix(text, "/*"):
			text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/"))
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String()
}
