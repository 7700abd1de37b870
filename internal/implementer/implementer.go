// Package implementer drives the synthesis loop for one target function.
//
// Each decision cycle asks the model to reason, then to pick between
// "implement" (with source) and "impossible" (with a reason). Source is
// loaded and validated against the configured tests; load errors and test
// failures are fed back and the cycle repeats until a candidate passes, the
// model declares the function impossible, or the attempt budget runs out.
package implementer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"natural/internal/loader"
	"natural/internal/logging"
	"natural/internal/prompter"
	"natural/internal/spec"
)

// Implementer synthesizes one target function.
type Implementer struct {
	target  spec.Spec
	cfg     Config
	helpers []loader.Helper
}

// New prepares a run for target. cfg.Doc, when set, replaces target's doc.
func New(target spec.Spec, cfg Config) (*Implementer, error) {
	if cfg.Model == nil {
		return nil, errors.New("implementer: no model configured")
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("implementer: max attempts must not be negative, got %d", cfg.MaxAttempts)
	}
	if target.Name == "" {
		return nil, errors.New("implementer: target has no name")
	}

	cfg.Functions = append([]Function(nil), cfg.Functions...)
	helpers := make([]loader.Helper, 0, len(cfg.Functions))
	for _, f := range cfg.Functions {
		if f.Spec.Name == "" {
			return nil, errors.New("implementer: helper function has no name")
		}
		if f.Impl == nil {
			return nil, fmt.Errorf("implementer: helper %s has no implementation", f.Spec.Name)
		}
		if reflect.TypeOf(f.Impl).Kind() != reflect.Func {
			return nil, fmt.Errorf("implementer: helper %s is a %T, not a function", f.Spec.Name, f.Impl)
		}
		helpers = append(helpers, loader.Helper{Name: f.Spec.Name, Value: f.Impl})
	}

	return &Implementer{
		target:  target.WithDoc(cfg.Doc),
		cfg:     cfg,
		helpers: helpers,
	}, nil
}

// Target returns the target spec after the doc override.
func (im *Implementer) Target() spec.Spec {
	return im.target
}

// Implement runs the loop until a candidate passes every test or the run
// fails. A failed run returns *ImplementationError for the two terminal
// causes and a wrapped error for model or staging failures.
func (im *Implementer) Implement(ctx context.Context) (*Implementation, error) {
	timer := logging.StartTimer(logging.CategorySynthesis, "Implement "+im.target.Name)
	defer timer.Stop()

	stage, err := loader.NewStage(im.cfg.ScratchDir)
	if err != nil {
		im.cfg.observeRun(ResultError)
		return nil, err
	}
	defer func() {
		if err := stage.Close(); err != nil {
			logging.SynthesisWarn("%v", err)
		}
	}()

	ld := loader.New(stage, loader.Options{Helpers: im.helpers, Imports: im.cfg.importPolicy()})
	key := im.CacheKey()

	if impl := im.fromCache(ctx, ld, key); impl != nil {
		im.cfg.observeRun(ResultCached)
		return impl, nil
	}

	p := prompter.New(im.cfg.Model, prompter.Options{
		Log:             im.cfg.LogFile,
		ID:              im.cfg.ID,
		Injector:        im.cfg.Injector,
		AllowInjections: im.cfg.AllowInjections,
	})
	p.Add(prompter.RoleDeveloper, roleInstruction(im.cfg.importPolicy()))
	p.Add(prompter.RoleUser,
		taskMessage(im.target),
		sketchMessage(im.target, im.cfg.Sketch),
		helperMessage(im.cfg.Functions))

	logging.Synthesis("[%s] Implementing %s", p.ID(), im.target.Signature)

	var feedback string
	for attempt := 0; ; attempt++ {
		if im.cfg.MaxAttempts > 0 && attempt >= im.cfg.MaxAttempts {
			im.cfg.observeRun(ResultExhausted)
			return nil, &ImplementationError{Function: im.target.Name, Cause: CauseAttemptsExhausted, Limit: im.cfg.MaxAttempts}
		}

		p.Add(prompter.RoleUser, feedback, reasoningPrompt)
		feedback = ""

		if _, err := p.Respond(ctx); err != nil {
			im.cfg.observeRun(ResultError)
			return nil, fmt.Errorf("attempt %d for %s: %w", attempt+1, im.target.Name, err)
		}
		d, err := prompter.Choose(ctx, p, decisionOptions...)
		if err != nil {
			im.cfg.observeRun(ResultError)
			return nil, fmt.Errorf("attempt %d for %s: %w", attempt+1, im.target.Name, err)
		}

		switch d := d.(type) {
		case impossibleDecision:
			im.cfg.observeAttempt(OutcomeImpossible)
			im.cfg.observeRun(ResultImpossible)
			logging.Synthesis("[%s] %s declared impossible", p.ID(), im.target.Name)
			return nil, &ImplementationError{Function: im.target.Name, Cause: CauseImpossible, Reason: d.reason}

		case implementDecision:
			candidate, err := ld.Load(d.code, im.target)
			var loadErr *loader.LoadError
			if errors.As(err, &loadErr) {
				im.cfg.observeAttempt(OutcomeLoadError)
				logging.SynthesisDebug("[%s] attempt %d: %v", p.ID(), attempt+1, loadErr)
				feedback = loadErr.Feedback()
				continue
			}
			if err != nil {
				im.cfg.observeRun(ResultError)
				return nil, fmt.Errorf("attempt %d for %s: %w", attempt+1, im.target.Name, err)
			}

			if errs := im.cfg.Tester.Evaluate(im.target.Name, candidate); len(errs) > 0 {
				im.cfg.observeAttempt(OutcomeTestFailure)
				logging.SynthesisDebug("[%s] attempt %d: %d failing cases", p.ID(), attempt+1, len(errs))
				feedback = mistakesMessage(errs)
				continue
			}

			im.cfg.observeAttempt(OutcomePassed)
			im.cfg.observeRun(ResultImplemented)
			impl := newImplementation(im.target, candidate, attempt+1, false)
			im.save(ctx, key, impl)
			logging.Synthesis("[%s] Implemented %s in %d attempt(s)", p.ID(), im.target.Name, attempt+1)
			return impl, nil
		}
	}
}

// CacheKey identifies this run's inputs: target signature and doc, sketch,
// helper signatures, declared tests and model.
func (im *Implementer) CacheKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "signature|%s\n", im.target.Signature)
	fmt.Fprintf(h, "doc|%s\n", im.target.Doc)
	fmt.Fprintf(h, "sketch|%s\n", strings.TrimSpace(im.cfg.Sketch))
	for _, f := range im.cfg.Functions {
		fmt.Fprintf(h, "helper|%s|%s\n", f.Spec.Signature, f.Spec.Doc)
	}
	fmt.Fprintf(h, "tests|%s\n", im.cfg.Tester.Fingerprint())
	fmt.Fprintf(h, "model|%s\n", im.cfg.ModelID)
	return hex.EncodeToString(h.Sum(nil))
}

// fromCache returns a cached implementation that still loads and passes the
// tests, or nil.
func (im *Implementer) fromCache(ctx context.Context, ld *loader.Loader, key string) *Implementation {
	if im.cfg.Cache == nil {
		return nil
	}
	src, ok, err := im.cfg.Cache.Lookup(ctx, key)
	if err != nil {
		logging.SynthesisWarn("Cache lookup for %s failed: %v", im.target.Name, err)
		return nil
	}
	if !ok {
		return nil
	}

	candidate, err := ld.Load(src, im.target)
	if err != nil {
		logging.SynthesisWarn("Cached implementation of %s no longer loads: %v", im.target.Name, err)
		return nil
	}
	if errs := im.cfg.Tester.Evaluate(im.target.Name, candidate); len(errs) > 0 {
		logging.SynthesisWarn("Cached implementation of %s fails %d case(s)", im.target.Name, len(errs))
		return nil
	}
	logging.Synthesis("Using cached implementation of %s", im.target.Name)
	return newImplementation(im.target, candidate, 0, true)
}

func (im *Implementer) save(ctx context.Context, key string, impl *Implementation) {
	if im.cfg.Cache == nil {
		return
	}
	err := im.cfg.Cache.Save(ctx, Record{
		Key:       key,
		Name:      impl.QualifiedName,
		Signature: impl.Signature,
		Model:     im.cfg.ModelID,
		Source:    impl.Source,
		Attempts:  impl.Attempts,
	})
	if err != nil {
		logging.SynthesisWarn("Failed to cache implementation of %s: %v", im.target.Name, err)
	}
}

// Implement synthesizes the function declared by decl.
func Implement(ctx context.Context, decl string, cfg Config) (*Implementation, error) {
	target, err := spec.FromDecl(decl)
	if err != nil {
		return nil, err
	}
	im, err := New(target, cfg)
	if err != nil {
		return nil, err
	}
	return im.Implement(ctx)
}
