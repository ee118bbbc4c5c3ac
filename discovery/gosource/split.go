package gosource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Unit is a Go file cut into its package name, import specs and remaining declarations.
type Unit struct {
	Package string
	Imports []string // import_spec source text, e.g. `"fmt"` or `str "strings"`
	Body    string
}

// SplitFile cuts a file so several files of one package can be joined into a single source.
func SplitFile(ctx context.Context, content []byte) (*Unit, error) {
	tree, err := parseTree(ctx, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	u := &Unit{}
	var body strings.Builder
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "package_identifier" {
					u.Package = id.Content(content)
				}
			}
		case "import_declaration":
			collectImports(child, content, &u.Imports)
		default:
			body.WriteString(child.Content(content))
			body.WriteString("\n\n")
		}
	}
	u.Body = body.String()
	return u, nil
}

func collectImports(node *sitter.Node, content []byte, out *[]string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			*out = append(*out, child.Content(content))
		case "import_spec_list":
			collectImports(child, content, out)
		}
	}
}

// JoinUnits renders units as one `package main` source with the union of their imports.
func JoinUnits(units []*Unit) (string, error) {
	seen := make(map[string]bool)
	var imports []string
	for _, u := range units {
		for _, imp := range u.Imports {
			if !seen[imp] {
				seen[imp] = true
				imports = append(imports, imp)
			}
		}
	}
	if err := checkImportNames(imports); err != nil {
		return "", err
	}
	sort.Strings(imports)

	var b strings.Builder
	b.WriteString("package main\n\n")
	if len(imports) > 0 {
		b.WriteString("import (\n")
		for _, imp := range imports {
			b.WriteString("\t" + imp + "\n")
		}
		b.WriteString(")\n\n")
	}
	for _, u := range units {
		b.WriteString(u.Body)
	}
	return b.String(), nil
}

// checkImportNames rejects two files binding the same local name to different paths.
func checkImportNames(imports []string) error {
	bound := make(map[string]string)
	for _, imp := range imports {
		fields := strings.Fields(imp)
		path := strings.Trim(fields[len(fields)-1], "\"`")
		name := path[strings.LastIndexByte(path, '/')+1:]
		if len(fields) == 2 {
			name = fields[0]
		}
		if name == "_" || name == "." {
			continue
		}
		if prev, ok := bound[name]; ok && prev != path {
			return fmt.Errorf("import name %q bound to both %s and %s", name, prev, path)
		}
		bound[name] = path
	}
	return nil
}
