package tester

import (
	"fmt"

	"natural/internal/logging"
)

// Callable is a candidate implementation under test. Invoke returns the call's
// value and the failure it raised: a non-nil error result or a *PanicError.
type Callable interface {
	Invoke(args []any) (any, error)
}

// Evaluate runs every declared case against fn and returns one human-readable
// description per failing case. Cases never stop the evaluation early; the
// order is run-only, equals, unequals, raises, each in insertion order.
func (t *Tester) Evaluate(name string, fn Callable) []string {
	if t == nil {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryTester, "Evaluate")
	defer timer.Stop()

	var errs []string
	for _, args := range t.runs {
		call := FormatCall(name, args)
		if _, err := fn.Invoke(args); err != nil {
			errs = append(errs, fmt.Sprintf("%s raised an unexpected %s", call, describeFailure(err)))
		}
	}

	for _, c := range t.equals {
		call := FormatCall(name, c.args)
		want := formatExpected(c.value, c.tolerance)
		predicted, err := fn.Invoke(c.args)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s should return %s but raised %s instead", call, want, describeFailure(err)))
			continue
		}
		if !matches(predicted, c.value, c.tolerance) {
			errs = append(errs, fmt.Sprintf("%s should return %s but returned %s instead", call, want, Format(predicted)))
		}
	}

	for _, c := range t.unequals {
		call := FormatCall(name, c.args)
		forbidden := formatExpected(c.value, c.tolerance)
		predicted, err := fn.Invoke(c.args)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s should return a value other than %s but raised %s instead", call, forbidden, describeFailure(err)))
			continue
		}
		if matches(predicted, c.value, c.tolerance) {
			errs = append(errs, fmt.Sprintf("%s should not return %s but returned %s", call, forbidden, Format(predicted)))
		}
	}

	for _, c := range t.raises {
		call := FormatCall(name, c.args)
		predicted, err := fn.Invoke(c.args)
		if err == nil {
			errs = append(errs, fmt.Sprintf("%s should fail with %s but returned %s instead", call, c.kind, Format(predicted)))
			continue
		}
		if !c.kind.Matches(err) {
			errs = append(errs, fmt.Sprintf("%s should fail with %s but raised %s instead", call, c.kind, describeFailure(err)))
		}
	}

	logging.TesterDebug("%s: %d/%d cases failed", name, len(errs), t.Len())
	return errs
}

func formatExpected(v any, tolerance Optional[float64]) string {
	if tol, ok := tolerance.Get(); ok && isNumeric(v) {
		return fmt.Sprintf("%s (±%g)", Format(v), tol)
	}
	return Format(v)
}
