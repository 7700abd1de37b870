package loader

import (
	"fmt"
	"os"
	"reflect"
	"regexp"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Helper is a trusted function made available to candidates by name.
type Helper struct {
	Name  string
	Value any
}

// helperExports builds the interpreter symbol table for helpers, leaving out
// the one named like the target so the candidate's own definition is used.
func helperExports(helpers []Helper, target string) interp.Exports {
	symbols := make(map[string]reflect.Value, len(helpers))
	for _, h := range helpers {
		if h.Name == target || h.Value == nil {
			continue
		}
		symbols[h.Name] = reflect.ValueOf(h.Value)
	}
	if len(symbols) == 0 {
		return nil
	}
	return interp.Exports{helperImportPath + "/helpers": symbols}
}

// LoadHelpers evaluates the Go file at path in its own interpreter and
// returns the named top-level symbols as helpers.
func LoadHelpers(path string, names []string) ([]Helper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read helper file %s: %w", path, err)
	}
	return HelpersFromSource(string(data), names)
}

// HelpersFromSource is LoadHelpers for in-memory source.
func HelpersFromSource(src string, names []string) ([]Helper, error) {
	src = asMainPackage(src)

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("failed to evaluate helpers: %w", err)
	}

	helpers := make([]Helper, 0, len(names))
	for _, name := range names {
		v, err := i.Eval("main." + name)
		if err != nil {
			return nil, fmt.Errorf("helper %s not found: %w", name, err)
		}
		helpers = append(helpers, Helper{Name: name, Value: v.Interface()})
	}
	return helpers, nil
}

var packageClause = regexp.MustCompile(`(?m)^package\s+\w+`)

// asMainPackage renames the package clause so the source can be evaluated as
// a program.
func asMainPackage(src string) string {
	src = ensurePackage(src)
	loc := packageClause.FindStringIndex(src)
	if loc == nil {
		return src
	}
	return src[:loc[0]] + "package main" + src[loc[1]:]
}
