// Package loader turns generated Go source into a callable candidate.
//
// Candidates run in a fresh yaegi interpreter per load so that nothing a
// candidate declares leaks into the next one. Trusted helper functions are
// registered with the interpreter and any candidate declaration sharing a
// helper's name is discarded before evaluation.
package loader

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"io"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/tools/go/ast/astutil"

	"natural/internal/logging"
	"natural/internal/spec"
)

const (
	helperImportPath = "natural.local/helpers"
	helperImportName = "_nathelpers"
)

// Kind classifies why a candidate could not be loaded.
type Kind int

const (
	KindSyntax Kind = iota
	KindMissingSymbol
	KindSignature
	KindDisallowedImport
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindMissingSymbol:
		return "missing_symbol"
	case KindSignature:
		return "signature"
	case KindDisallowedImport:
		return "disallowed_import"
	default:
		return "unknown"
	}
}

// LoadError is a load failure the model can be told about and retry.
type LoadError struct {
	Kind   Kind
	Symbol string
	Trace  string
	// Got and Want are set for KindSignature.
	Got, Want string
	// Imports and Policy are set for KindDisallowedImport.
	Imports []string
	Policy  string
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case KindMissingSymbol:
		return fmt.Sprintf("candidate does not declare %s", e.Symbol)
	case KindSignature:
		return fmt.Sprintf("candidate %s has type %s, want %s", e.Symbol, e.Got, e.Want)
	case KindDisallowedImport:
		return fmt.Sprintf("candidate imports disallowed packages: %s", strings.Join(e.Imports, ", "))
	default:
		return "candidate failed to compile: " + firstLine(e.Trace)
	}
}

// Feedback is the message handed back to the model.
func (e *LoadError) Feedback() string {
	switch e.Kind {
	case KindMissingSymbol:
		return fmt.Sprintf("Your implementation does not contain a top level function called %q", e.Symbol)
	case KindSignature:
		return fmt.Sprintf("Your function %q has type %s but its signature requires %s", e.Symbol, e.Got, e.Want)
	case KindDisallowedImport:
		return fmt.Sprintf("Your implementation imports packages that are not available: %s. %s",
			strings.Join(e.Imports, ", "), e.Policy)
	default:
		return "Your implementation failed to compile:\n" + e.Trace
	}
}

// Options configures a Loader.
type Options struct {
	Helpers []Helper
	Imports ImportPolicy
	// Stdout and Stderr receive candidate output. Both default to io.Discard.
	Stdout io.Writer
	Stderr io.Writer
}

// Loader loads candidates for one synthesis run.
type Loader struct {
	stage   *Stage
	helpers []Helper
	imports ImportPolicy
	stdout  io.Writer
	stderr  io.Writer
}

// New creates a Loader staging candidates in stage.
func New(stage *Stage, opts Options) *Loader {
	l := &Loader{
		stage:   stage,
		helpers: opts.Helpers,
		imports: opts.Imports,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
	}
	if l.stdout == nil {
		l.stdout = io.Discard
	}
	if l.stderr == nil {
		l.stderr = io.Discard
	}
	return l
}

// Load evaluates code and returns the function named by target. Failures
// the model can fix are returned as *LoadError; anything else is an
// infrastructure error.
func (l *Loader) Load(code string, target spec.Spec) (*Candidate, error) {
	timer := logging.StartTimer(logging.CategoryLoader, "Load")
	defer timer.Stop()

	src := CleanCode(code)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", ensurePackage(src), parser.ParseComments)
	if err != nil {
		return nil, &LoadError{Kind: KindSyntax, Symbol: target.Name, Trace: err.Error()}
	}

	if bad := l.imports.violations(file); len(bad) > 0 {
		return nil, &LoadError{
			Kind:    KindDisallowedImport,
			Symbol:  target.Name,
			Imports: bad,
			Policy:  l.imports.Describe(),
		}
	}

	declared := l.rewrite(fset, file, target.Name)

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, &LoadError{Kind: KindSyntax, Symbol: target.Name, Trace: err.Error()}
	}

	path, cleanup, err := l.stage.write(buf.String())
	if err != nil {
		return nil, err
	}
	defer cleanup()

	i := interp.New(interp.Options{Stdout: l.stdout, Stderr: l.stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if exports := helperExports(l.helpers, target.Name); len(exports) > 0 {
		if err := i.Use(exports); err != nil {
			return nil, fmt.Errorf("failed to register helpers: %w", err)
		}
	}

	if err := evalPath(i, path); err != nil {
		trace := strings.ReplaceAll(err.Error(), path, "candidate.go")
		logging.LoaderDebug("Candidate for %s failed to evaluate: %s", target.Name, firstLine(trace))
		return nil, &LoadError{Kind: KindSyntax, Symbol: target.Name, Trace: trace}
	}

	if !declared {
		return nil, &LoadError{Kind: KindMissingSymbol, Symbol: target.Name}
	}
	v, err := i.Eval("main." + target.Name)
	if err != nil || v.Kind() != reflect.Func {
		return nil, &LoadError{Kind: KindMissingSymbol, Symbol: target.Name}
	}

	got := spec.CanonicalType(v.Type().String())
	if target.FuncType != "" && got != target.FuncType {
		return nil, &LoadError{Kind: KindSignature, Symbol: target.Name, Got: got, Want: target.FuncType}
	}

	logging.LoaderDebug("Loaded candidate %s (%s)", target.Name, got)
	return &Candidate{Name: target.Name, Source: buf.String(), fn: v, interp: i}, nil
}

// evalPath runs EvalPath, converting interpreter panics into errors.
func evalPath(i *interp.Interpreter, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_, err = i.EvalPath(path)
	return err
}

// rewrite normalizes file into an interpretable main package: func main is
// dropped, declarations shadowing a helper are removed and the helpers are
// bound under their own names. It reports whether target is declared at top
// level, either as a function or as a variable.
func (l *Loader) rewrite(fset *token.FileSet, file *ast.File, target string) bool {
	file.Name = ast.NewIdent("main")

	shadowed := make(map[string]bool, len(l.helpers))
	for _, h := range l.helpers {
		if h.Name != target && h.Value != nil {
			shadowed[h.Name] = true
		}
	}

	declared := false
	decls := file.Decls[:0]
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.Name == "main" {
				continue
			}
			if d.Recv == nil && shadowed[d.Name.Name] {
				logging.LoaderDebug("Dropping candidate definition of helper %s", d.Name.Name)
				continue
			}
			if d.Recv == nil && d.Name.Name == target {
				declared = true
			}
		case *ast.GenDecl:
			if d.Tok == token.VAR || d.Tok == token.CONST {
				d.Specs = dropShadowed(d.Specs, shadowed)
				if len(d.Specs) == 0 {
					continue
				}
				if d.Tok == token.VAR && declaresName(d.Specs, target) {
					declared = true
				}
			}
		}
		decls = append(decls, decl)
	}
	file.Decls = decls

	if len(shadowed) > 0 {
		astutil.AddNamedImport(fset, file, helperImportName, helperImportPath)
		for _, h := range l.helpers {
			if !shadowed[h.Name] {
				continue
			}
			file.Decls = append(file.Decls, &ast.GenDecl{
				Tok: token.VAR,
				Specs: []ast.Spec{&ast.ValueSpec{
					Names:  []*ast.Ident{ast.NewIdent(h.Name)},
					Values: []ast.Expr{&ast.SelectorExpr{X: ast.NewIdent(helperImportName), Sel: ast.NewIdent(h.Name)}},
				}},
			})
		}
	}
	file.Comments = ast.NewCommentMap(fset, file, file.Comments).Filter(file).Comments()
	return declared
}

func dropShadowed(specs []ast.Spec, shadowed map[string]bool) []ast.Spec {
	kept := specs[:0]
	for _, s := range specs {
		vs, ok := s.(*ast.ValueSpec)
		if !ok {
			kept = append(kept, s)
			continue
		}
		drop := false
		for _, n := range vs.Names {
			if shadowed[n.Name] {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, s)
		}
	}
	return kept
}

func declaresName(specs []ast.Spec, name string) bool {
	for _, s := range specs {
		vs, ok := s.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, n := range vs.Names {
			if n.Name == name {
				return true
			}
		}
	}
	return false
}

func ensurePackage(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "package ") {
			return src
		}
		break
	}
	return "package main\n\n" + src
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
