// Package tester declares test cases for a target function and evaluates
// candidate implementations against them.
//
// A Tester is built with chained Check calls:
//
//	t := tester.New().
//		Check(tester.Args([]float64{}), tester.Equals(0.0)).
//		Check(tester.Args([]float64{1, 2, 3}), tester.Equals(2.0/3), tester.Tolerance(1e-9)).
//		Check(tester.Args(nil), tester.Raises(tester.AnyError))
//
// Each Check honours a single expectation, chosen by fixed precedence:
// Equals, then Unequals, then Raises. A Check without any of them only
// requires the call to complete without an error or panic.
package tester

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Optional marks a value as present or absent. It lets expectations of nil,
// zero or false be told apart from "no expectation".
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the held value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.ok
}

// Expectation configures a single Check call.
type Expectation func(*expectations)

type expectations struct {
	equals    Optional[any]
	unequals  Optional[any]
	tolerance Optional[float64]
	raises    Optional[ErrorKind]
}

// Equals expects the call to return v.
func Equals(v any) Expectation {
	return func(e *expectations) { e.equals = Some(v) }
}

// Unequals expects the call to return anything but v.
func Unequals(v any) Expectation {
	return func(e *expectations) { e.unequals = Some(v) }
}

// Tolerance allows numeric results of Equals and Unequals checks to deviate by t.
func Tolerance(t float64) Expectation {
	return func(e *expectations) { e.tolerance = Some(t) }
}

// Raises expects the call to fail with an error or panic of the given kind.
func Raises(kind ErrorKind) Expectation {
	return func(e *expectations) { e.raises = Some(kind) }
}

// Args is a readability helper for the argument list of Check.
func Args(args ...any) []any {
	return args
}

type valueCase struct {
	args      []any
	value     any
	tolerance Optional[float64]
}

type raisesCase struct {
	args []any
	kind ErrorKind
}

// Tester holds the declared cases in insertion order.
type Tester struct {
	runs     [][]any
	equals   []valueCase
	unequals []valueCase
	raises   []raisesCase
}

// New returns an empty Tester.
func New() *Tester {
	return &Tester{}
}

// Check adds a test case calling the target with args. Only the first
// expectation in precedence order Equals, Unequals, Raises is kept.
func (t *Tester) Check(args []any, opts ...Expectation) *Tester {
	var e expectations
	for _, opt := range opts {
		opt(&e)
	}

	if v, ok := e.equals.Get(); ok {
		t.equals = append(t.equals, valueCase{args: args, value: v, tolerance: e.tolerance})
	} else if v, ok := e.unequals.Get(); ok {
		t.unequals = append(t.unequals, valueCase{args: args, value: v, tolerance: e.tolerance})
	} else if k, ok := e.raises.Get(); ok {
		t.raises = append(t.raises, raisesCase{args: args, kind: k})
	} else {
		t.runs = append(t.runs, args)
	}
	return t
}

// Len returns the number of declared cases.
func (t *Tester) Len() int {
	if t == nil {
		return 0
	}
	return len(t.runs) + len(t.equals) + len(t.unequals) + len(t.raises)
}

// Counts returns the number of run-only, equals, unequals and raises cases.
func (t *Tester) Counts() (runs, equals, unequals, raises int) {
	if t == nil {
		return 0, 0, 0, 0
	}
	return len(t.runs), len(t.equals), len(t.unequals), len(t.raises)
}

// Fingerprint returns a stable digest of the declared cases.
func (t *Tester) Fingerprint() string {
	h := sha256.New()
	if t != nil {
		for _, args := range t.runs {
			fmt.Fprintf(h, "run|%s\n", FormatArgs(args))
		}
		for _, c := range t.equals {
			fmt.Fprintf(h, "eq|%s|%s|%s\n", FormatArgs(c.args), Format(c.value), formatTolerance(c.tolerance))
		}
		for _, c := range t.unequals {
			fmt.Fprintf(h, "ne|%s|%s|%s\n", FormatArgs(c.args), Format(c.value), formatTolerance(c.tolerance))
		}
		for _, c := range t.raises {
			fmt.Fprintf(h, "raises|%s|%s\n", FormatArgs(c.args), c.kind)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatTolerance(tol Optional[float64]) string {
	if v, ok := tol.Get(); ok {
		return fmt.Sprintf("%g", v)
	}
	return "-"
}
