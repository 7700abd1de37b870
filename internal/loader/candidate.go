package loader

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/traefik/yaegi/interp"

	"natural/internal/tester"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Candidate is a loaded implementation of one target function.
type Candidate struct {
	Name   string
	Source string

	fn     reflect.Value
	interp *interp.Interpreter
}

// Func returns the underlying function value.
func (c *Candidate) Func() reflect.Value {
	return c.fn
}

// Lookup resolves another top-level symbol in the candidate's namespace.
func (c *Candidate) Lookup(name string) (reflect.Value, error) {
	v, err := c.interp.Eval("main." + name)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("symbol %s not found: %w", name, err)
	}
	return v, nil
}

// Invoke calls the candidate with args converted to its parameter types.
// A trailing error result is returned as the call's failure and a panic is
// recovered into *tester.PanicError. Zero remaining results yield nil, one
// yields the value and several yield a []any.
func (c *Candidate) Invoke(args []any) (result any, err error) {
	t := c.fn.Type()
	in, err := convertArgs(t, args)
	if err != nil {
		return nil, err
	}

	var out []reflect.Value
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &tester.PanicError{Value: r, Stack: string(debug.Stack())}
			}
		}()
		out = c.fn.Call(in)
	}()
	if err != nil {
		return nil, err
	}

	if n := len(out); n > 0 && t.Out(n-1) == errorType {
		if e, _ := out[n-1].Interface().(error); e != nil {
			return nil, e
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, nil
	}
}

func convertArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	if t.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		pt := paramType(t, i)
		v, err := tester.Coerce(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

func paramType(t reflect.Type, i int) reflect.Type {
	if t.IsVariadic() && i >= t.NumIn()-1 {
		return t.In(t.NumIn() - 1).Elem()
	}
	return t.In(i)
}
