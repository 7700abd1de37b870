package tester

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PanicError is the error reported for a call that panicked.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorKind is a category of failure a raises-test expects.
type ErrorKind struct {
	name  string
	match func(error) bool
}

func (k ErrorKind) String() string {
	return k.name
}

// Matches reports whether err belongs to the kind.
func (k ErrorKind) Matches(err error) bool {
	if err == nil || k.match == nil {
		return false
	}
	return k.match(err)
}

var (
	// AnyError matches a returned error as well as a panic.
	AnyError = ErrorKind{name: "an error or panic", match: func(error) bool { return true }}

	// ReturnedError matches a non-nil error result.
	ReturnedError = ErrorKind{name: "an error", match: func(err error) bool { return !IsPanic(err) }}

	// Panic matches a panic.
	Panic = ErrorKind{name: "a panic", match: IsPanic}
)

// ErrorIs matches failures for which errors.Is(err, target) holds.
func ErrorIs(target error) ErrorKind {
	return ErrorKind{
		name:  fmt.Sprintf("an error matching %q", target),
		match: func(err error) bool { return errors.Is(err, target) },
	}
}

// ErrorMatching matches failures whose message matches pattern.
func ErrorMatching(pattern string) (ErrorKind, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorKind{}, fmt.Errorf("invalid error pattern %q: %w", pattern, err)
	}
	return ErrorKind{
		name:  fmt.Sprintf("an error matching /%s/", pattern),
		match: func(err error) bool { return re.MatchString(err.Error()) },
	}, nil
}

// ParseErrorKind maps a textual kind to an ErrorKind: "any", "error",
// "panic" or "match:<regexp>".
func ParseErrorKind(s string) (ErrorKind, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "any", "":
		return AnyError, nil
	case "error":
		return ReturnedError, nil
	case "panic":
		return Panic, nil
	}
	if pattern, ok := strings.CutPrefix(trimmed, "match:"); ok {
		return ErrorMatching(pattern)
	}
	return ErrorKind{}, fmt.Errorf("unknown error kind %q (want any, error, panic or match:<regexp>)", s)
}

// IsPanic reports whether err records a panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// describeFailure names the kind of a raised failure together with its message.
func describeFailure(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("panic %q", fmt.Sprint(pe.Value))
	}
	return fmt.Sprintf("error %q", err.Error())
}
