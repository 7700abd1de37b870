package tester

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/go-cmp/cmp"
)

// Format renders a value in Go syntax for feedback messages.
func Format(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%#v", v)
}

// FormatArgs renders an argument list.
func FormatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Format(a)
	}
	return strings.Join(parts, ", ")
}

// FormatCall renders name(args...).
func FormatCall(name string, args []any) string {
	return name + "(" + FormatArgs(args) + ")"
}

// Coerce converts v into a value of type t. Assignable values pass through,
// numbers convert between numeric kinds when no information is lost, and
// everything else (decoded YAML lists and maps in particular) goes through
// mapstructure.
func Coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumericKind(rv.Kind()) && isNumericKind(t.Kind()) {
		return convertNumber(rv, t)
	}

	out := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out.Interface(),
		TagName:    "json",
		DecodeHook: mapstructure.DecodeHookFuncValue(numberHook),
	})
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s: %w", Format(v), t, err)
	}
	if err := dec.Decode(v); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s: %w", Format(v), t, err)
	}
	return out.Elem(), nil
}

// numberHook applies the numeric conversion rules of Coerce to nested values.
func numberHook(from, to reflect.Value) (any, error) {
	if !from.IsValid() || !isNumericKind(from.Kind()) || !isNumericKind(to.Kind()) || from.Type() == to.Type() {
		return from.Interface(), nil
	}
	out, err := convertNumber(from, to.Type())
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// convertNumber converts rv to the numeric type t and fails when the result
// does not hold the same number.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	floatIn, floatOut := isFloatKind(rv.Kind()), isFloatKind(t.Kind())
	if floatIn {
		f := rv.Float()
		if floatOut {
			out := rv.Convert(t)
			if math.IsInf(out.Float(), 0) && !math.IsInf(f, 0) {
				return reflect.Value{}, fmt.Errorf("cannot use %s as %s: out of range", Format(rv.Interface()), t)
			}
			return out, nil
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
			return reflect.Value{}, fmt.Errorf("cannot use %s as %s: not an integer", Format(rv.Interface()), t)
		}
	}

	out := rv.Convert(t)
	if isNegative(out) != isNegative(rv) || !out.Convert(rv.Type()).Equal(rv) {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s: out of range", Format(rv.Interface()), t)
	}
	return out, nil
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNegative(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() < 0
	case reflect.Float32, reflect.Float64:
		return v.Float() < 0
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isNumeric(v any) bool {
	return v != nil && isNumericKind(reflect.ValueOf(v).Kind())
}

func toFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int())
	case rv.CanUint():
		return float64(rv.Uint())
	default:
		return rv.Float()
	}
}

// numericEqual compares two numbers exactly. Integers are compared without a
// detour through float64 so large values keep their precision.
func numericEqual(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case ra.CanInt() && rb.CanInt():
		return ra.Int() == rb.Int()
	case ra.CanUint() && rb.CanUint():
		return ra.Uint() == rb.Uint()
	case ra.CanInt() && rb.CanUint():
		return ra.Int() >= 0 && uint64(ra.Int()) == rb.Uint()
	case ra.CanUint() && rb.CanInt():
		return rb.Int() >= 0 && uint64(rb.Int()) == ra.Uint()
	default:
		return toFloat(a) == toFloat(b)
	}
}

// matches reports whether predicted satisfies expected. With a tolerance and
// two numbers the values match when |predicted - expected| <= tolerance; in
// every other case equality is strict.
func matches(predicted, expected any, tolerance Optional[float64]) bool {
	if isNumeric(predicted) && isNumeric(expected) {
		if tol, ok := tolerance.Get(); ok {
			return math.Abs(toFloat(predicted)-toFloat(expected)) <= tol
		}
		return numericEqual(predicted, expected)
	}
	return strictEqual(predicted, expected)
}

func strictEqual(predicted, expected any) (equal bool) {
	if predicted == nil || expected == nil {
		return isNil(predicted) && isNil(expected)
	}
	if reflect.TypeOf(expected) != reflect.TypeOf(predicted) {
		if coerced, err := Coerce(expected, reflect.TypeOf(predicted)); err == nil {
			expected = coerced.Interface()
		}
	}

	defer func() {
		if recover() != nil {
			equal = reflect.DeepEqual(predicted, expected)
		}
	}()
	return cmp.Equal(predicted, expected, cmp.Exporter(func(reflect.Type) bool { return true }))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
