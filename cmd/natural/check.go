package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"natural/internal/config"
	"natural/internal/loader"
)

// errCheckFailed makes the command exit non-zero after the report is printed.
var errCheckFailed = errors.New("check failed")

// checkCmd runs a target's tests against a hand-written implementation
var checkCmd = &cobra.Command{
	Use:   "check [target.yaml] [impl.go]",
	Short: "Check an implementation against a target's tests without a model",
	Long: `Loads the implementation the same way synthesized candidates are loaded
(import policy, helper binding, signature check) and runs the target's tests.
The report is the feedback the model would have received.`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	target, err := config.LoadTarget(args[0])
	if err != nil {
		return err
	}
	s, err := target.Spec()
	if err != nil {
		return err
	}
	if target.Doc != "" {
		s = s.WithDoc(target.Doc)
	}
	tr, err := target.Tester()
	if err != nil {
		return err
	}
	functions, err := target.Functions()
	if err != nil {
		return err
	}
	code, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read implementation: %w", err)
	}

	stage, err := loader.NewStage(cfg.ScratchDir)
	if err != nil {
		return err
	}
	defer stage.Close()

	helpers := make([]loader.Helper, 0, len(functions))
	for _, f := range functions {
		helpers = append(helpers, loader.Helper{Name: f.Spec.Name, Value: f.Impl})
	}
	policy := loader.ImportPolicy{Allowed: cfg.Imports.Allowed, Blocked: cfg.Imports.Blocked}
	if len(policy.Allowed) == 0 && len(policy.Blocked) == 0 {
		policy = loader.DefaultImportPolicy
	}
	ld := loader.New(stage, loader.Options{Helpers: helpers, Imports: policy})

	out := cmd.OutOrStdout()
	logger.Debug("Checking implementation", zap.String("target", args[0]), zap.String("file", args[1]))

	candidate, err := ld.Load(string(code), s)
	if err != nil {
		var le *loader.LoadError
		if errors.As(err, &le) {
			fmt.Fprintf(out, "FAIL %s: %s\n%s\n", s.Name, le.Kind, le.Feedback())
			return errCheckFailed
		}
		return err
	}

	failures := tr.Evaluate(s.Name, candidate)
	if len(failures) == 0 {
		fmt.Fprintf(out, "PASS %s: %d test case(s)\n", s.Name, tr.Len())
		return nil
	}
	fmt.Fprintf(out, "FAIL %s: %d of %d test case(s) failed\n", s.Name, len(failures), tr.Len())
	for i, f := range failures {
		fmt.Fprintf(out, "%d. %s\n", i+1, f)
	}
	return errCheckFailed
}
