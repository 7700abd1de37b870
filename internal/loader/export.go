package loader

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"
)

// Export converts a loaded candidate's source into an ordinary Go file of
// package pkg. The helper bindings added for the interpreter are removed, so
// the result refers to helpers the way the model wrote them.
func Export(src, pkg string) (string, error) {
	if pkg == "" {
		pkg = "main"
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", src, parser.ParseComments)
	if err != nil {
		return "", fmt.Errorf("failed to parse candidate: %w", err)
	}
	file.Name = ast.NewIdent(pkg)

	decls := file.Decls[:0]
	for _, decl := range file.Decls {
		if isHelperBinding(decl) {
			continue
		}
		decls = append(decls, decl)
	}
	file.Decls = decls
	astutil.DeleteNamedImport(fset, file, helperImportName, helperImportPath)
	file.Comments = ast.NewCommentMap(fset, file, file.Comments).Filter(file).Comments()

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return "", fmt.Errorf("failed to format candidate: %w", err)
	}
	return buf.String(), nil
}

// isHelperBinding matches `var Name = _nathelpers.Name`.
func isHelperBinding(decl ast.Decl) bool {
	gd, ok := decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.VAR || len(gd.Specs) != 1 {
		return false
	}
	vs, ok := gd.Specs[0].(*ast.ValueSpec)
	if !ok || len(vs.Values) != 1 {
		return false
	}
	sel, ok := vs.Values[0].(*ast.SelectorExpr)
	if !ok {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == helperImportName
}
