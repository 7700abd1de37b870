package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"natural/internal/config"
	"natural/internal/implementer"
	"natural/internal/llm"
	"natural/internal/prompter"
)

const varianceTarget = `declaration: |
  // Variance returns the population variance of ls.
  func Variance(ls []float64) float64
helpers:
  - file: stats.go
    functions: [Mean]
id: variance
tests:
  - args: [[]]
    equals: 0
  - args: [[1, 2, 3]]
    equals: 0.6666666666666666
    tolerance: 1e-9
`

const statsHelpers = `package stats

// Mean returns the arithmetic mean of ls.
func Mean(ls []float64) float64 {
	if len(ls) == 0 {
		return 0
	}
	var sum float64
	for _, v := range ls {
		sum += v
	}
	return sum / float64(len(ls))
}
`

const varianceSource = `func Variance(ls []float64) float64 {
	if len(ls) == 0 {
		return 0
	}
	m := Mean(ls)
	var sum float64
	for _, v := range ls {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(ls))
}
`

// setupWorkspace writes a target, its helper file and a config file and
// points the global flags at them.
func setupWorkspace(t *testing.T) (dir, target string) {
	t.Helper()
	logger = zap.NewNop()
	for _, k := range []string{"NATURAL_PROVIDER", "NATURAL_MODEL", "NATURAL_BASE_URL", "NATURAL_CACHE", "NATURAL_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
	}

	dir = t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("stats.go", statsHelpers)
	write("variance.yaml", varianceTarget)
	write("natural.yaml", `llm:
  provider: openai
  model: scripted
  base_url: http://localhost:1/v1
max_attempts: 3
scratch_dir: `+filepath.Join(dir, "scratch")+`
cache:
  enabled: true
  path: `+filepath.Join(dir, "cache.db")+`
logging:
  level: error
`)

	configPath = filepath.Join(dir, "natural.yaml")
	maxAttempts = -1
	logFile, outPath, metricsFile, providerFlag, modelFlag, scratchDir, conversation = "", "", "", "", "", "", ""
	interactive, noCache, watchTarget = false, false, false
	jobs = 1
	timeout = 0

	orig := newModel
	t.Cleanup(func() {
		newModel = orig
		configPath = "natural.yaml"
	})
	return dir, filepath.Join(dir, "variance.yaml")
}

func useModel(m prompter.Model) {
	newModel = func(context.Context, config.LLMConfig) (prompter.Model, error) {
		return m, nil
	}
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	return cmd, &out
}

func TestImplementWritesSource(t *testing.T) {
	dir, target := setupWorkspace(t)
	outPath = filepath.Join(dir, "out", "variance.go")
	metricsFile = filepath.Join(dir, "natural.prom")
	logFile = filepath.Join(dir, "transcript.log")

	model := llm.NewScripted("Average the squared deviations from Mean.", "implement\n```go\n"+varianceSource+"```")
	useModel(model)

	cmd, out := testCommand()
	if err := runImplement(cmd, []string{target}); err != nil {
		t.Fatalf("runImplement failed: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote Variance to") {
		t.Errorf("unexpected output: %s", out.String())
	}

	src, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(src), "package main") || !strings.Contains(string(src), "m := Mean(ls)") {
		t.Errorf("unexpected source:\n%s", src)
	}
	if strings.Contains(string(src), "natural.local") {
		t.Errorf("helper bindings leaked into output:\n%s", src)
	}

	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prom), `natural_runs_total{result="implemented"} 1`) {
		t.Errorf("unexpected metrics:\n%s", prom)
	}

	transcript, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(transcript), "[variance] assistant:") {
		t.Errorf("transcript missing assistant turn:\n%s", transcript)
	}
}

func TestImplementUsesCache(t *testing.T) {
	_, target := setupWorkspace(t)
	useModel(llm.NewScripted("reasoning", "implement\n"+varianceSource))

	cmd, _ := testCommand()
	if err := runImplement(cmd, []string{target}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// An exhausted script fails on the first request, so only the cache can answer.
	useModel(llm.NewScripted())
	cmd, out := testCommand()
	if err := runImplement(cmd, []string{target}); err != nil {
		t.Fatalf("cached run failed: %v", err)
	}
	if !strings.Contains(out.String(), "func Variance") {
		t.Errorf("expected source on stdout, got: %s", out.String())
	}

	noCache = true
	if err := runImplement(cmd, []string{target}); err == nil {
		t.Error("expected --no-cache to reach the model")
	}

	noCache = false
	cmd, out = testCommand()
	if err := runCacheList(cmd, nil); err != nil {
		t.Fatalf("cache list failed: %v", err)
	}
	if !strings.Contains(out.String(), "Variance(ls []float64) float64") || !strings.Contains(out.String(), "openai/scripted") {
		t.Errorf("unexpected cache listing: %s", out.String())
	}

	cmd, out = testCommand()
	if err := runCacheClear(cmd, nil); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	if !strings.Contains(out.String(), "Removed 1 cached implementation(s)") {
		t.Errorf("unexpected clear output: %s", out.String())
	}

	cmd, out = testCommand()
	if err := runCacheList(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No cached implementations") {
		t.Errorf("expected empty cache, got: %s", out.String())
	}
}

func TestImplementSeveralTargets(t *testing.T) {
	dir, target := setupWorkspace(t)
	second := filepath.Join(dir, "spread.yaml")
	if err := os.WriteFile(second, []byte(strings.Replace(varianceTarget, "id: variance", "id: spread", 1)), 0644); err != nil {
		t.Fatal(err)
	}
	noCache = true
	jobs = 2
	outPath = filepath.Join(dir, "gen")
	logFile = filepath.Join(dir, "transcript.log")

	// Runs interleave, so answer by the kind of request rather than by order.
	useModel(prompter.ModelFunc(func(_ context.Context, msgs []prompter.Message) (string, error) {
		if strings.Contains(msgs[len(msgs)-1].Content, "Choose exactly one") {
			return "implement\n" + varianceSource, nil
		}
		return "Average the squared deviations.", nil
	}))

	cmd, out := testCommand()
	if err := runImplement(cmd, []string{target, second}); err != nil {
		t.Fatalf("runImplement failed: %v\n%s", err, out.String())
	}
	for _, name := range []string{"variance.go", "spread.go"} {
		if _, err := os.Stat(filepath.Join(outPath, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if strings.Count(out.String(), "Wrote Variance to") != 2 {
		t.Errorf("unexpected output: %s", out.String())
	}
	for _, name := range []string{"transcript-variance.log", "transcript-spread.log"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("expected %s: %v", name, err)
			continue
		}
		if !strings.Contains(string(data), "Average the squared deviations.") {
			t.Errorf("%s lacks the conversation: %s", name, data)
		}
	}
	if _, err := os.Stat(logFile); !os.IsNotExist(err) {
		t.Errorf("expected no shared transcript, stat returned %v", err)
	}

	watchTarget = true
	if err := runImplement(cmd, []string{target, second}); err == nil {
		t.Error("expected --watch to reject several targets")
	}
}

func TestTargetLogFile(t *testing.T) {
	tests := []struct {
		path, base, want string
	}{
		{"transcript.log", "variance", "transcript-variance.log"},
		{"/tmp/logs/run", "spread", "/tmp/logs/run-spread"},
		{"", "variance", ""},
	}
	for _, tt := range tests {
		if got := targetLogFile(tt.path, tt.base); got != tt.want {
			t.Errorf("targetLogFile(%q, %q) = %q, want %q", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	orig := timeout
	t.Cleanup(func() { timeout = orig })

	timeout = 0
	ctx, cancel := withTimeout(context.Background())
	if _, ok := ctx.Deadline(); ok {
		t.Error("expected no deadline without --timeout")
	}
	cancel()
	if ctx.Err() == nil {
		t.Error("expected cancel to end the context")
	}

	timeout = time.Minute
	ctx, cancel = withTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("expected a deadline with --timeout")
	}
}

func TestImplementImpossible(t *testing.T) {
	_, target := setupWorkspace(t)
	useModel(llm.NewScripted("This needs an oracle.", "impossible\nIt would decide the halting problem."))

	cmd, _ := testCommand()
	err := runImplement(cmd, []string{target})
	var ie *implementer.ImplementationError
	if !errors.As(err, &ie) || ie.Cause != implementer.CauseImpossible {
		t.Fatalf("expected impossible error, got %v", err)
	}
	if !errors.Is(err, implementer.ErrImpossible) {
		t.Error("expected errors.Is ErrImpossible")
	}
}

func TestImplementAttemptFlag(t *testing.T) {
	_, target := setupWorkspace(t)
	maxAttempts = 1
	useModel(llm.NewScripted("r", "implement\nfunc Variance(ls []float64) float64 { return 0.5 }"))

	cmd, _ := testCommand()
	err := runImplement(cmd, []string{target})
	if !errors.Is(err, implementer.ErrAttemptsExhausted) {
		t.Fatalf("expected exhausted attempts, got %v", err)
	}
}

func TestImplementRequiresKey(t *testing.T) {
	_, target := setupWorkspace(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	if err := os.WriteFile(configPath, []byte("llm:\n  provider: openai\n  model: gpt-4o\ncache:\n  enabled: false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	useModel(llm.NewScripted())

	cmd, _ := testCommand()
	if err := runImplement(cmd, []string{target}); err == nil || !strings.Contains(err.Error(), "API key") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestCheckCmd(t *testing.T) {
	dir, target := setupWorkspace(t)
	good := filepath.Join(dir, "good.go")
	bad := filepath.Join(dir, "bad.go")
	broken := filepath.Join(dir, "broken.go")
	if err := os.WriteFile(good, []byte("package stats\n\n"+varianceSource), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("package stats\n\nfunc Variance(ls []float64) float64 { return 1 }\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(broken, []byte("package stats\n\nfunc Variance(ls []float64) int { return 1 }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cmd, out := testCommand()
	if err := runCheck(cmd, []string{target, good}); err != nil {
		t.Fatalf("check failed: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "PASS Variance: 2 test case(s)") {
		t.Errorf("unexpected output: %s", out.String())
	}

	cmd, out = testCommand()
	if err := runCheck(cmd, []string{target, bad}); !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected check failure, got %v", err)
	}
	if !strings.Contains(out.String(), "2 of 2 test case(s) failed") || !strings.Contains(out.String(), "should return 0 but returned 1 instead") {
		t.Errorf("unexpected output: %s", out.String())
	}

	cmd, out = testCommand()
	if err := runCheck(cmd, []string{target, broken}); !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected check failure, got %v", err)
	}
	if !strings.Contains(out.String(), "signature requires func([]float64) float64") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestVersionCmd(t *testing.T) {
	cmd, out := testCommand()
	versionCmd.Run(cmd, nil)
	if !strings.HasPrefix(out.String(), "natural ") {
		t.Errorf("unexpected version output: %s", out.String())
	}
}

func TestNewInjectorWithoutTerminal(t *testing.T) {
	var out bytes.Buffer
	inj := newInjector(strings.NewReader("use a loop\n"), &out)
	if _, ok := inj.(*prompter.LineInjector); !ok {
		t.Fatalf("expected line injector, got %T", inj)
	}
	text, err := inj.Inject(context.Background(), nil)
	if err != nil || text != "use a loop" {
		t.Errorf("unexpected injection %q %v", text, err)
	}
}

func TestLastTurn(t *testing.T) {
	if got := lastTurn(nil); got != "" {
		t.Errorf("expected empty summary, got %q", got)
	}
	got := lastTurn([]prompter.Message{{Role: prompter.RoleUser, Content: "first line\nsecond"}})
	if got != "user: first line" {
		t.Errorf("unexpected summary %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := lastTurn([]prompter.Message{{Role: prompter.RoleAssistant, Content: long}}); !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncation, got %q", got)
	}
}

func TestWatchRerunsOnChange(t *testing.T) {
	logger = zap.NewNop()
	path := filepath.Join(t.TempDir(), "target.yaml")
	if err := os.WriteFile(path, []byte("declaration: func F()\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var runs atomic.Int32
	err := watch(ctx, path, func() {
		switch runs.Add(1) {
		case 1:
			if err := os.WriteFile(path, []byte("declaration: func G()\n"), 0644); err != nil {
				t.Error(err)
			}
		default:
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if runs.Load() != 2 {
		t.Errorf("expected 2 runs, got %d", runs.Load())
	}
}
