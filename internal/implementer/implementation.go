package implementer

import (
	"context"
	"fmt"
	"reflect"

	"natural/internal/loader"
	"natural/internal/spec"
)

// Implementation is a validated candidate carrying the target's metadata.
type Implementation struct {
	Name          string
	QualifiedName string
	Package       string
	Signature     string
	Doc           string
	Params        []spec.Param
	Results       []string

	Source string
	// Attempts is the number of decision cycles used; zero for cached results.
	Attempts int
	Cached   bool

	candidate *loader.Candidate
}

func newImplementation(target spec.Spec, c *loader.Candidate, attempts int, cached bool) *Implementation {
	return &Implementation{
		Name:          target.Name,
		QualifiedName: target.QualifiedName(),
		Package:       target.Package,
		Signature:     target.Signature,
		Doc:           target.Doc,
		Params:        append([]spec.Param(nil), target.Params...),
		Results:       append([]string(nil), target.Results...),
		Source:        c.Source,
		Attempts:      attempts,
		Cached:        cached,
		candidate:     c,
	}
}

// Invoke calls the implementation. See loader.Candidate.Invoke.
func (i *Implementation) Invoke(args []any) (any, error) {
	return i.candidate.Invoke(args)
}

// Func returns the implementation as a reflect.Value of kind Func.
func (i *Implementation) Func() reflect.Value {
	return i.candidate.Func()
}

func (i *Implementation) String() string {
	return "func " + i.Signature
}

// Bind converts impl to the Go function type F.
func Bind[F any](impl *Implementation) (F, error) {
	var zero F
	want := reflect.TypeOf((*F)(nil)).Elem()
	if want.Kind() != reflect.Func {
		return zero, fmt.Errorf("cannot bind %s to non-function type %s", impl.Name, want)
	}
	fn := impl.Func()
	if !fn.Type().ConvertibleTo(want) {
		return zero, fmt.Errorf("cannot bind %s of type %s to %s", impl.Name, fn.Type(), want)
	}
	return fn.Convert(want).Interface().(F), nil
}

// ImplementFunc synthesizes the function declared by decl and returns it as F.
func ImplementFunc[F any](ctx context.Context, decl string, cfg Config) (F, error) {
	impl, err := Implement(ctx, decl, cfg)
	if err != nil {
		var zero F
		return zero, err
	}
	return Bind[F](impl)
}
