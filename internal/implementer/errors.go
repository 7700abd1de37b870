package implementer

import (
	"errors"
	"fmt"
)

// Cause is the reason a run ended without an implementation.
type Cause int

const (
	CauseImpossible Cause = iota + 1
	CauseAttemptsExhausted
)

func (c Cause) String() string {
	switch c {
	case CauseImpossible:
		return "impossible"
	case CauseAttemptsExhausted:
		return "attempts_exhausted"
	default:
		return "unknown"
	}
}

var (
	// ErrImpossible matches an ImplementationError the model ended by
	// declaring the function impossible.
	ErrImpossible = errors.New("implementation declared impossible")
	// ErrAttemptsExhausted matches an ImplementationError caused by the
	// attempt budget running out.
	ErrAttemptsExhausted = errors.New("attempt budget exhausted")
)

// ImplementationError reports that no implementation could be produced.
type ImplementationError struct {
	Function string
	Cause    Cause
	// Reason is the model's justification for CauseImpossible.
	Reason string
	// Limit is the configured budget for CauseAttemptsExhausted.
	Limit int
}

func (e *ImplementationError) Error() string {
	switch e.Cause {
	case CauseImpossible:
		return fmt.Sprintf("the model determined that the function %q is impossible to implement because: %s", e.Function, e.Reason)
	case CauseAttemptsExhausted:
		return fmt.Sprintf("the model failed to implement function %q in %d iterations", e.Function, e.Limit)
	default:
		return fmt.Sprintf("failed to implement function %q", e.Function)
	}
}

// Is lets errors.Is match ErrImpossible and ErrAttemptsExhausted.
func (e *ImplementationError) Is(target error) bool {
	switch target {
	case ErrImpossible:
		return e.Cause == CauseImpossible
	case ErrAttemptsExhausted:
		return e.Cause == CauseAttemptsExhausted
	}
	return false
}
