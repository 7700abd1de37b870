package spec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFromDecl(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Spec
	}{
		{
			name: "doc comment and body-less declaration",
			src: `// Mean returns the mean of a list of floats.
func Mean(ls []float64) float64`,
			want: Spec{
				Name:      "Mean",
				Signature: "Mean(ls []float64) float64",
				Doc:       "Mean returns the mean of a list of floats.",
				Package:   "main",
				Params:    []Param{{Name: "ls", Type: "[]float64"}},
				Results:   []string{"float64"},
				FuncType:  "func([]float64) float64",
			},
		},
		{
			name: "grouped params, multiple results, explicit package",
			src: `package stats

// Clamp limits v to [lo, hi].
//   Returns an error when lo > hi.
func Clamp(v, lo, hi int) (int, error) { return 0, nil }`,
			want: Spec{
				Name:      "Clamp",
				Signature: "Clamp(v, lo, hi int) (int, error)",
				Doc:       "Clamp limits v to [lo, hi].\nReturns an error when lo > hi.",
				Package:   "stats",
				Params: []Param{
					{Name: "v", Type: "int"},
					{Name: "lo", Type: "int"},
					{Name: "hi", Type: "int"},
				},
				Results:  []string{"int", "error"},
				FuncType: "func(int, int, int) (int, error)",
			},
		},
		{
			name: "no doc, variadic, empty interface",
			src:  `func Greet(args ...interface{})`,
			want: Spec{
				Name:      "Greet",
				Signature: "Greet(args ...interface{})",
				Package:   "main",
				Params:    []Param{{Name: "args", Type: "...any"}},
				FuncType:  "func(...any)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromDecl(tt.src)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FromDecl() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromSourceSelectsByName(t *testing.T) {
	src := `package helpers

import "math"

// Square squares x.
func Square(x float64) float64 { return x * x }

// Root returns the square root of x.
func Root(x float64) float64 { return math.Sqrt(x) }
`
	s, err := FromSource(src, "Root")
	require.NoError(t, err)
	assert.Equal(t, "Root(x float64) float64", s.Signature)
	assert.Equal(t, "Root returns the square root of x.", s.Doc)
	assert.Equal(t, "helpers.Root", s.QualifiedName())

	_, err = FromSource(src, "Cube")
	assert.ErrorIs(t, err, ErrNoFunction)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mean.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\n// Mean averages.\nfunc Mean(ls []float64) float64 { return 0 }\n"), 0644))

	s, err := FromFile(path, "Mean")
	require.NoError(t, err)
	assert.Equal(t, "Mean averages.", s.Doc)
}

func TestFromDeclErrors(t *testing.T) {
	_, err := FromDecl("func (")
	assert.Error(t, err)

	_, err = FromDecl("var x = 1")
	assert.ErrorIs(t, err, ErrNoFunction)

	_, err = FromDecl("func Map[T any](xs []T) []T")
	assert.ErrorContains(t, err, "generic")
}

func TestWithDocAndSketch(t *testing.T) {
	s, err := FromDecl("func Variance(ls []float64) float64")
	require.NoError(t, err)
	assert.Empty(t, s.Doc)

	s = s.WithDoc("  Returns the variance.\n    Empty input yields 0.  ")
	assert.Equal(t, "Returns the variance.\nEmpty input yields 0.", s.Doc)
	assert.Equal(t, s, s.WithDoc("   "))

	sketch := s.Sketch(`
		// TODO: if ls is empty then return 0
		m := Mean(ls)
	`)
	assert.Equal(t, "func Variance(ls []float64) float64 {\n    // TODO: if ls is empty then return 0\n    m := Mean(ls)\n}", sketch)
}

func TestCanonicalType(t *testing.T) {
	assert.Equal(t, "func(any) map[string]any", CanonicalType("func(interface {}) map[string]interface {}"))
	assert.Equal(t, "func([]int) int", FuncType([]string{"[]int"}, []string{"int"}))
	assert.Equal(t, "func()", FuncType(nil, nil))
}

func TestFuncTypeSpellsAliasesLikeReflect(t *testing.T) {
	tests := []struct {
		decl     string
		funcType string
		params   []Param
	}{
		{
			decl:     "func Upper(b []byte) []byte",
			funcType: "func([]uint8) []uint8",
			params:   []Param{{Name: "b", Type: "[]byte"}},
		},
		{
			decl:     "func First(s string) rune",
			funcType: "func(string) int32",
			params:   []Param{{Name: "s", Type: "string"}},
		},
		{
			decl:     "func Count(m map[rune]int, f func(byte) rune) (n int, err error)",
			funcType: "func(map[int32]int, func(uint8) int32) (int, error)",
			params: []Param{
				{Name: "m", Type: "map[rune]int"},
				{Name: "f", Type: "func(byte) rune"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			s, err := FromDecl(tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.funcType, s.FuncType)
			assert.Equal(t, tt.params, s.Params)
			assert.NotContains(t, s.Signature, "uint8")
		})
	}
}
