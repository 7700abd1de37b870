// Package spec derives the name, signature and specification text of a target
// function from its Go declaration.
package spec

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"go/types"
	"os"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
)

// ErrNoFunction is returned when a source contains no matching top-level function.
var ErrNoFunction = errors.New("no top-level function declaration found")

// Param is one declared parameter. Name is empty for unnamed parameters.
type Param struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type" yaml:"type"`
}

// Spec describes a function to implement.
type Spec struct {
	Name      string   `json:"name" yaml:"name"`
	Signature string   `json:"signature" yaml:"signature"` // Name(params) results
	Doc       string   `json:"doc" yaml:"doc"`
	Package   string   `json:"package" yaml:"package"`
	Params    []Param  `json:"params,omitempty" yaml:"params,omitempty"`
	Results   []string `json:"results,omitempty" yaml:"results,omitempty"`
	FuncType  string   `json:"func_type" yaml:"func_type"` // func(types) results
}

// QualifiedName returns package.Name, or Name when the package is unknown.
func (s Spec) QualifiedName() string {
	if s.Package == "" {
		return s.Name
	}
	return s.Package + "." + s.Name
}

// WithDoc returns a copy of s whose doc text is replaced by the normalized doc.
// An empty doc leaves s unchanged.
func (s Spec) WithDoc(doc string) Spec {
	if strings.TrimSpace(doc) == "" {
		return s
	}
	s.Doc = NormalizeDoc(doc)
	return s
}

// Sketch renders a sketch body as an indented skeleton of the function.
func (s Spec) Sketch(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for i, line := range lines {
		lines[i] = "    " + strings.TrimSpace(line)
	}
	return fmt.Sprintf("func %s {\n%s\n}", s.Signature, strings.Join(lines, "\n"))
}

// NormalizeDoc trims the doc text and every one of its lines.
func NormalizeDoc(doc string) string {
	lines := strings.Split(strings.TrimSpace(doc), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

// FromDecl parses a single function declaration. The package clause and the
// function body are optional; a leading doc comment becomes the specification.
func FromDecl(src string) (Spec, error) {
	return FromSource(src, "")
}

// FromFile reads a Go source file and extracts the named top-level function.
func FromFile(path, name string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return FromSource(string(data), name)
}

// FromSource extracts the named top-level function from Go source. An empty
// name selects the first top-level function.
func FromSource(src, name string) (Spec, error) {
	if !hasPackageClause(src) {
		src = "package main\n\n" + src
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "decl.go", src, parser.ParseComments)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid declaration: %w", err)
	}

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv != nil {
			continue
		}
		if name != "" && fd.Name.Name != name {
			continue
		}
		return fromFuncDecl(fset, file.Name.Name, fd)
	}

	if name != "" {
		return Spec{}, fmt.Errorf("%w: %s", ErrNoFunction, name)
	}
	return Spec{}, ErrNoFunction
}

func fromFuncDecl(fset *token.FileSet, pkg string, fd *ast.FuncDecl) (Spec, error) {
	if fd.Type.TypeParams != nil && len(fd.Type.TypeParams.List) > 0 {
		return Spec{}, fmt.Errorf("generic function %s is not supported", fd.Name.Name)
	}

	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, fd.Type); err != nil {
		return Spec{}, fmt.Errorf("failed to print signature of %s: %w", fd.Name.Name, err)
	}

	s := Spec{
		Name:      fd.Name.Name,
		Signature: fd.Name.Name + strings.TrimPrefix(buf.String(), "func"),
		Doc:       NormalizeDoc(fd.Doc.Text()),
		Package:   pkg,
	}

	for _, field := range fd.Type.Params.List {
		typ := CanonicalType(types.ExprString(field.Type))
		if len(field.Names) == 0 {
			s.Params = append(s.Params, Param{Type: typ})
			continue
		}
		for _, n := range field.Names {
			s.Params = append(s.Params, Param{Name: n.Name, Type: typ})
		}
	}
	s.Results = fieldTypes(fd.Type.Results)

	resolveAliases(fd.Type)
	s.FuncType = FuncType(fieldTypes(fd.Type.Params), fieldTypes(fd.Type.Results))
	return s, nil
}

// fieldTypes lists one type per declared name, or one per unnamed field.
func fieldTypes(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var out []string
	for _, field := range fl.List {
		typ := CanonicalType(types.ExprString(field.Type))
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, typ)
		}
	}
	return out
}

// resolveAliases spells byte and rune as uint8 and int32, which is how
// reflect prints them. Field names and selectors are left alone.
func resolveAliases(n ast.Node) {
	astutil.Apply(n, func(c *astutil.Cursor) bool {
		id, ok := c.Node().(*ast.Ident)
		if !ok {
			return true
		}
		if _, field := c.Parent().(*ast.Field); field && c.Name() == "Names" {
			return true
		}
		if c.Name() == "Sel" {
			return true
		}
		switch id.Name {
		case "byte":
			id.Name = "uint8"
		case "rune":
			id.Name = "int32"
		}
		return true
	}, nil)
}

// FuncType formats parameter and result types the way reflect prints a func type.
func FuncType(params, results []string) string {
	out := "func(" + strings.Join(params, ", ") + ")"
	switch len(results) {
	case 0:
		return out
	case 1:
		return out + " " + results[0]
	default:
		return out + " (" + strings.Join(results, ", ") + ")"
	}
}

// CanonicalType rewrites the spellings of the empty interface to "any" so that
// declared types and reflect type strings compare equal.
func CanonicalType(t string) string {
	t = strings.ReplaceAll(t, "interface {}", "any")
	return strings.ReplaceAll(t, "interface{}", "any")
}

func hasPackageClause(src string) bool {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return strings.HasPrefix(trimmed, "package ")
	}
	return false
}
