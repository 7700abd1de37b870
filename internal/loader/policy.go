package loader

import (
	"go/ast"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/stdlib"
)

// ImportPolicy decides which packages candidate code may import.
type ImportPolicy struct {
	// Allowed is an explicit allow-list. When empty every standard library
	// package the interpreter ships is allowed, minus Blocked.
	Allowed []string
	Blocked []string
}

// DefaultImportPolicy allows the standard library except packages that
// reach outside the process.
var DefaultImportPolicy = ImportPolicy{
	Blocked: []string{
		"os/exec",
		"syscall",
		"unsafe",
		"plugin",
		"runtime/cgo",
		"net",
	},
}

// Allows reports whether importPath may be imported.
func (p ImportPolicy) Allows(importPath string) bool {
	for _, b := range p.Blocked {
		if importPath == b || strings.HasPrefix(importPath, b+"/") {
			return false
		}
	}
	if len(p.Allowed) > 0 {
		for _, a := range p.Allowed {
			if importPath == a {
				return true
			}
		}
		return false
	}
	return isStdlib(importPath)
}

func isStdlib(importPath string) bool {
	if _, ok := stdlib.Symbols[importPath+"/"+path.Base(importPath)]; ok {
		return true
	}
	// Versioned paths such as math/rand/v2 are keyed by package name.
	for key := range stdlib.Symbols {
		if path.Dir(key) == importPath {
			return true
		}
	}
	return false
}

// Describe renders the policy for the model's instructions.
func (p ImportPolicy) Describe() string {
	if len(p.Allowed) > 0 {
		allowed := append([]string(nil), p.Allowed...)
		sort.Strings(allowed)
		return "Only import these packages: " + strings.Join(allowed, ", ") + "."
	}
	if len(p.Blocked) == 0 {
		return "Only import packages from Go's standard library."
	}
	blocked := append([]string(nil), p.Blocked...)
	sort.Strings(blocked)
	return "Only import packages from Go's standard library, and never import " + strings.Join(blocked, ", ") + "."
}

// violations returns the imports of file the policy rejects, in source order.
func (p ImportPolicy) violations(file *ast.File) []string {
	var bad []string
	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			importPath = imp.Path.Value
		}
		if !p.Allows(importPath) {
			bad = append(bad, importPath)
		}
	}
	return bad
}
