package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"natural/internal/config"
	"natural/internal/implementer"
	"natural/internal/llm"
	"natural/internal/loader"
	"natural/internal/metrics"
	"natural/internal/prompter"
	"natural/internal/store"
)

var (
	// Implement flags
	maxAttempts  int
	logFile      string
	interactive  bool
	noCache      bool
	outPath      string
	watchTarget  bool
	metricsFile  string
	providerFlag string
	modelFlag    string
	scratchDir   string
	conversation string
	jobs         int
)

// newModel builds the model client for the configured provider. Tests replace it.
var newModel = func(ctx context.Context, c config.LLMConfig) (prompter.Model, error) {
	switch c.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, c.APIKey, c.Model, c.Temperature)
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(c.APIKey, c.BaseURL, c.Model, c.Temperature)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.Provider)
	}
}

// implementCmd synthesizes the function described by a target file
var implementCmd = &cobra.Command{
	Use:   "implement [target.yaml]...",
	Short: "Synthesize the function described by a target file",
	Long: `Runs the synthesis loop for a target file:
  1. Ask the model to reason about the function and decide whether it can be implemented
  2. Load the candidate with the interpreter and check its signature
  3. Run the target's tests and feed failures back to the model
  4. Stop on the first passing candidate, an impossible verdict or the attempt budget

Several targets run concurrently, bounded by --jobs. With more than one
target --out names a directory receiving one file per target.

Example:
  natural implement variance.yaml --out variance_impl.go
  natural implement targets/*.yaml --jobs 4 --out gen/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImplement,
}

func registerImplementFlags() {
	f := implementCmd.Flags()
	f.IntVar(&maxAttempts, "max-attempts", -1, "Attempt budget, 0 for unbounded (default: target or config)")
	f.StringVar(&logFile, "log-file", "", "Append the conversation transcript to this file (one file per target when several are given)")
	f.BoolVarP(&interactive, "interactive", "i", false, "Prompt for a message to inject before each model turn")
	f.BoolVar(&noCache, "no-cache", false, "Skip the implementation cache")
	f.StringVarP(&outPath, "out", "o", "", "Write the implementation to this file instead of stdout")
	f.BoolVar(&watchTarget, "watch", false, "Re-run whenever the target file changes")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after each run")
	f.StringVar(&providerFlag, "provider", "", "Model provider (openai, gemini)")
	f.StringVar(&modelFlag, "model", "", "Model name")
	f.StringVar(&scratchDir, "scratch-dir", "", "Parent directory for staged candidates (default: config or system temp)")
	f.StringVar(&conversation, "id", "", "Conversation id used in the transcript (default: target id or random)")
	f.IntVarP(&jobs, "jobs", "j", 1, "Number of targets synthesized concurrently")
}

func runImplement(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(commandContext(cmd))
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if providerFlag != "" {
		cfg.LLM.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.LLM.Model = modelFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.LLM.RequireAPIKey(); err != nil {
		return err
	}

	if len(args) > 1 && (watchTarget || interactive) {
		return fmt.Errorf("--watch and --interactive take a single target")
	}
	if jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}

	model, err := newModel(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	r := &implementRun{
		cfg:     cfg,
		model:   model,
		metrics: metrics.New(),
		out:     cmd.OutOrStdout(),
		in:      cmd.InOrStdin(),
	}
	if cfg.Cache.Enabled && !noCache {
		st, err := store.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		r.cache = st
	}

	if watchTarget {
		return watch(ctx, args[0], func() {
			if err := r.run(ctx, args[0], outPath, logFile, r.out); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		})
	}
	if len(args) == 1 {
		return r.run(ctx, args[0], outPath, logFile, r.out)
	}
	return r.runAll(ctx, args)
}

// implementRun carries what stays fixed across targets and watched runs.
type implementRun struct {
	cfg     *config.Config
	model   prompter.Model
	metrics *metrics.Recorder
	cache   implementer.Cache
	out     io.Writer
	in      io.Reader

	mu sync.Mutex // serializes writes to out
}

// runAll synthesizes every target, at most jobs at a time. Every target is
// attempted; the first failure is returned once all have finished.
func (r *implementRun) runAll(ctx context.Context, targets []string) error {
	g := new(errgroup.Group)
	g.SetLimit(jobs)
	for _, target := range targets {
		g.Go(func() error {
			base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
			dest := ""
			if outPath != "" {
				dest = filepath.Join(outPath, base+".go")
			}
			var buf bytes.Buffer
			err := r.run(ctx, target, dest, targetLogFile(logFile, base), &buf)
			r.mu.Lock()
			defer r.mu.Unlock()
			_, _ = r.out.Write(buf.Bytes())
			if err != nil {
				fmt.Fprintf(r.out, "%s: %v\n", target, err)
				return fmt.Errorf("%s: %w", target, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// targetLogFile names the transcript of one of several targets:
// transcript.log becomes transcript-<base>.log.
func targetLogFile(path, base string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + base + ext
}

func (r *implementRun) run(ctx context.Context, targetPath, dest, transcript string, out io.Writer) error {
	target, err := config.LoadTarget(targetPath)
	if err != nil {
		return err
	}
	s, err := target.Spec()
	if err != nil {
		return err
	}
	tr, err := target.Tester()
	if err != nil {
		return err
	}
	functions, err := target.Functions()
	if err != nil {
		return err
	}

	icfg := implementer.Config{
		Model:       r.model,
		ModelID:     r.cfg.LLM.ModelID(),
		Doc:         target.Doc,
		Sketch:      target.Sketch,
		Functions:   functions,
		MaxAttempts: target.Attempts(r.cfg.MaxAttempts),
		Tester:      tr,
		ID:          target.ID,
		Imports: loader.ImportPolicy{
			Allowed: r.cfg.Imports.Allowed,
			Blocked: r.cfg.Imports.Blocked,
		},
		ScratchDir: r.cfg.ScratchDir,
		Metrics:    r.metrics,
	}
	if maxAttempts >= 0 {
		icfg.MaxAttempts = maxAttempts
	}
	if scratchDir != "" {
		icfg.ScratchDir = scratchDir
	}
	if conversation != "" {
		icfg.ID = conversation
	}

	if transcript != "" {
		f, err := os.OpenFile(transcript, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		icfg.LogFile = f
	}

	if interactive {
		icfg.AllowInjections = true
		icfg.Injector = newInjector(r.in, r.out)
	}

	if r.cache != nil {
		icfg.Cache = r.cache
	}

	logger.Info("Implementing target",
		zap.String("target", targetPath),
		zap.String("function", s.Name),
		zap.Int("tests", tr.Len()),
		zap.Int("max_attempts", icfg.MaxAttempts))

	im, err := implementer.New(s, icfg)
	if err != nil {
		return err
	}
	impl, err := im.Implement(ctx)
	if metricsFile != "" {
		if werr := r.metrics.WriteTextfile(metricsFile); werr != nil {
			logger.Warn("Failed to write metrics", zap.Error(werr))
		}
	}
	if err != nil {
		var ie *implementer.ImplementationError
		if errors.As(err, &ie) {
			logger.Warn("Synthesis stopped", zap.String("cause", ie.Cause.String()))
		}
		return err
	}

	logger.Info("Implementation found",
		zap.String("function", impl.QualifiedName),
		zap.Int("attempts", impl.Attempts),
		zap.Bool("cached", impl.Cached))

	if dest != "" {
		if err := writeSource(dest, impl); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s to %s\n", impl.Name, dest)
		return nil
	}
	return render(out, impl)
}

// writeSource writes the implementation as a Go file in the target's package.
func writeSource(path string, impl *implementer.Implementation) error {
	src, err := loader.Export(impl.Source, impl.Package)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
