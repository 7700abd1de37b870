package implementer

import (
	"context"
	"fmt"
	"io"

	"natural/internal/loader"
	"natural/internal/prompter"
	"natural/internal/spec"
	"natural/internal/tester"
)

// Function is a helper the model may call but must not define.
type Function struct {
	Spec spec.Spec
	Impl any
}

// Helper builds a Function from its Go declaration and implementation.
func Helper(decl string, impl any) (Function, error) {
	s, err := spec.FromDecl(decl)
	if err != nil {
		return Function{}, fmt.Errorf("invalid helper declaration: %w", err)
	}
	return Function{Spec: s, Impl: impl}, nil
}

// Record is a validated implementation as stored in a Cache.
type Record struct {
	Key       string
	Name      string
	Signature string
	Model     string
	Source    string
	Attempts  int
}

// Cache persists validated implementations between runs.
type Cache interface {
	Lookup(ctx context.Context, key string) (source string, ok bool, err error)
	Save(ctx context.Context, r Record) error
}

// Recorder observes attempt and run outcomes.
type Recorder interface {
	ObserveAttempt(outcome string)
	ObserveRun(result string)
}

// Attempt outcomes passed to Recorder.ObserveAttempt.
const (
	OutcomeLoadError   = "load_error"
	OutcomeTestFailure = "test_failure"
	OutcomePassed      = "passed"
	OutcomeImpossible  = "impossible"
)

// Run results passed to Recorder.ObserveRun.
const (
	ResultImplemented = "implemented"
	ResultCached      = "cached"
	ResultImpossible  = "impossible"
	ResultExhausted   = "exhausted"
	ResultError       = "error"
)

// Config holds the knobs of one synthesis run. It is copied by New and never
// modified afterwards.
type Config struct {
	Model prompter.Model
	// ModelID identifies the model in cache keys.
	ModelID string
	// Doc replaces the target's doc comment when non-empty.
	Doc    string
	Sketch string
	// Functions are helpers available to the candidate under their own names.
	Functions []Function
	// MaxAttempts bounds the number of decision cycles. Zero means unbounded.
	MaxAttempts int
	Tester      *tester.Tester
	// LogFile receives the transcript. Nil disables transcript logging.
	LogFile         io.Writer
	AllowInjections bool
	Injector        prompter.Injector
	ID              string
	// Imports restricts candidate imports. The zero value means
	// loader.DefaultImportPolicy.
	Imports loader.ImportPolicy
	// ScratchDir is the parent of the run's staging directory.
	ScratchDir string
	Cache      Cache
	Metrics    Recorder
}

func (c Config) importPolicy() loader.ImportPolicy {
	if len(c.Imports.Allowed) == 0 && len(c.Imports.Blocked) == 0 {
		return loader.DefaultImportPolicy
	}
	return c.Imports
}

func (c Config) observeAttempt(outcome string) {
	if c.Metrics != nil {
		c.Metrics.ObserveAttempt(outcome)
	}
}

func (c Config) observeRun(result string) {
	if c.Metrics != nil {
		c.Metrics.ObserveRun(result)
	}
}
