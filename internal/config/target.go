package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"natural/internal/implementer"
	"natural/internal/loader"
	"natural/internal/spec"
	"natural/internal/tester"
)

// Target is a function to synthesize, as described by a target file.
//
//	declaration: |
//	  // Variance returns the population variance of ls.
//	  func Variance(ls []float64) float64
//	helpers:
//	  - file: stats.go
//	    functions: [Mean]
//	tests:
//	  - args: [[1, 2, 3]]
//	    equals: 0.6666666667
//	    tolerance: 1e-9
//	  - args: [[]]
//	    raises: panic
type Target struct {
	Declaration string      `yaml:"declaration" validate:"required"`
	Doc         string      `yaml:"doc,omitempty"`
	Sketch      string      `yaml:"sketch,omitempty"`
	Helpers     []HelperRef `yaml:"helpers,omitempty" validate:"dive"`
	Tests       []TestCase  `yaml:"tests,omitempty"`
	MaxAttempts *int        `yaml:"max_attempts,omitempty" validate:"omitempty,gte=0"`
	ID          string      `yaml:"id,omitempty"`

	// Dir resolves relative helper paths. Set by LoadTarget.
	Dir string `yaml:"-"`
}

// HelperRef names functions of a Go source file made available to the model.
type HelperRef struct {
	File      string   `yaml:"file" validate:"required"`
	Functions []string `yaml:"functions" validate:"min=1,dive,required"`
}

// TestCase is one entry of a target's tests. Each expectation is set only
// when its key is present, so `equals: null` expects nil.
type TestCase struct {
	Args      []any
	Equals    tester.Optional[any]
	Unequals  tester.Optional[any]
	Tolerance tester.Optional[float64]
	Raises    tester.Optional[string]
}

// UnmarshalYAML records which expectation keys are present.
func (tc *TestCase) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: test case must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "args":
			if err := value.Decode(&tc.Args); err != nil {
				return fmt.Errorf("line %d: args: %w", value.Line, err)
			}
		case "equals":
			v, err := decodeAny(value)
			if err != nil {
				return err
			}
			tc.Equals = tester.Some(v)
		case "unequals":
			v, err := decodeAny(value)
			if err != nil {
				return err
			}
			tc.Unequals = tester.Some(v)
		case "tolerance":
			var t float64
			if err := value.Decode(&t); err != nil {
				return fmt.Errorf("line %d: tolerance: %w", value.Line, err)
			}
			tc.Tolerance = tester.Some(t)
		case "raises":
			var kind string
			if value.Tag == "!!bool" {
				var b bool
				if err := value.Decode(&b); err != nil {
					return err
				}
				if !b {
					continue
				}
			} else if err := value.Decode(&kind); err != nil {
				return fmt.Errorf("line %d: raises: %w", value.Line, err)
			}
			tc.Raises = tester.Some(kind)
		default:
			return fmt.Errorf("line %d: unknown test key %q", key.Line, key.Value)
		}
	}
	return nil
}

func decodeAny(node *yaml.Node) (any, error) {
	if node.Tag == "!!null" {
		return nil, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return v, nil
}

// LoadTarget reads and validates a target file.
func LoadTarget(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target: %w", err)
	}
	t, err := ParseTarget(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Dir = filepath.Dir(path)
	return t, nil
}

// ParseTarget parses and validates target file contents.
func ParseTarget(data []byte) (*Target, error) {
	var t Target
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse target: %w", err)
	}
	if err := validate.Struct(&t); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	return &t, nil
}

// Spec extracts the target function from its declaration.
func (t *Target) Spec() (spec.Spec, error) {
	return spec.FromDecl(t.Declaration)
}

// Tester builds the declared test cases.
func (t *Target) Tester() (*tester.Tester, error) {
	tr := tester.New()
	for i, tc := range t.Tests {
		var opts []tester.Expectation
		if v, ok := tc.Equals.Get(); ok {
			opts = append(opts, tester.Equals(v))
		}
		if v, ok := tc.Unequals.Get(); ok {
			opts = append(opts, tester.Unequals(v))
		}
		if v, ok := tc.Tolerance.Get(); ok {
			opts = append(opts, tester.Tolerance(v))
		}
		if name, ok := tc.Raises.Get(); ok {
			kind, err := tester.ParseErrorKind(name)
			if err != nil {
				return nil, fmt.Errorf("test %d: %w", i+1, err)
			}
			opts = append(opts, tester.Raises(kind))
		}
		args := tc.Args
		if args == nil {
			args = []any{}
		}
		tr.Check(args, opts...)
	}
	return tr, nil
}

// Functions loads the helper functions the target may use.
func (t *Target) Functions() ([]implementer.Function, error) {
	var functions []implementer.Function
	for _, h := range t.Helpers {
		path := h.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(t.Dir, path)
		}
		helpers, err := loader.LoadHelpers(path, h.Functions)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", h.File, err)
		}
		for _, helper := range helpers {
			s, err := spec.FromFile(path, helper.Name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h.File, err)
			}
			functions = append(functions, implementer.Function{Spec: s, Impl: helper.Value})
		}
	}
	return functions, nil
}

// Attempts returns the target's attempt budget, falling back to def.
func (t *Target) Attempts(def int) int {
	if t.MaxAttempts != nil {
		return *t.MaxAttempts
	}
	return def
}
