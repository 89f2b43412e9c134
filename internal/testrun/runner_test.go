package testrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"labrunner/internal/aggregate"
	"labrunner/internal/config"
	"labrunner/internal/logger"
	"labrunner/internal/pool"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingSink) Log(level logger.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, string(level)+": "+msg)
}

func (r *recordingSink) has(level logger.Level, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if strings.HasPrefix(e, string(level)+": ") && strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("# test\n"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunFilesAggregatesAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a_test.ps1")
	b := touch(t, dir, "b_test.ps1")
	c := filepath.Join(dir, "c_test.ps1")

	engine := EngineFunc(func(ctx context.Context, target string, cfg config.TestConfig) (Result, error) {
		switch filepath.Base(target) {
		case "a_test.ps1":
			return Result{Counts: aggregate.Counts{Passed: 2, Duration: time.Second}}, nil
		case "b_test.ps1":
			return Result{Counts: aggregate.Counts{Failed: 1}, FailedTests: []string{"Describe b: expected 1"}}, nil
		}
		t.Errorf("unexpected target %s", target)
		return Result{}, nil
	})

	sink := &recordingSink{}
	report, err := NewRunner(engine, sink).RunFiles(context.Background(), []string{a, b, c}, nil, Options{MaxConcurrency: 2, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}

	s := report.Summary
	if s.TotalTests != 3 || s.Passed != 2 || s.Failed != 1 || s.Success {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("len(Outcomes) = %d, want 2", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if o.FilePath == c {
			t.Fatalf("missing file must not produce an outcome")
		}
		if o.Success != (o.FailedCount == 0 && o.ErrorMessage == "") {
			t.Fatalf("success invariant broken: %+v", o)
		}
	}
	if len(s.Failures) != 1 || s.Failures[0].Source != b || s.Failures[0].Message != "Describe b: expected 1" {
		t.Fatalf("unexpected failures %+v", s.Failures)
	}
	if !sink.has(logger.LevelWarn, c) {
		t.Fatalf("expected warning for missing file, got %v", sink.entries)
	}
	if !sink.has(logger.LevelError, "2 passed, 1 failed, 0 skipped") {
		t.Fatalf("expected totals log, got %v", sink.entries)
	}
}

func TestRunFilesWorkerFaultsBecomeOutcomes(t *testing.T) {
	dir := t.TempDir()
	boom := touch(t, dir, "boom_test.go")
	broken := touch(t, dir, "broken_test.go")
	fine := touch(t, dir, "fine_test.go")

	engine := EngineFunc(func(ctx context.Context, target string, cfg config.TestConfig) (Result, error) {
		switch filepath.Base(target) {
		case "boom_test.go":
			panic("engine exploded")
		case "broken_test.go":
			return Result{}, errors.New("pwsh: command not found")
		}
		return Result{Counts: aggregate.Counts{Passed: 1}}, nil
	})

	report, err := NewRunner(engine, nil).RunFiles(context.Background(), []string{boom, broken, fine}, nil, Options{MaxConcurrency: 3})
	if err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("len(Outcomes) = %d, want 3", len(report.Outcomes))
	}
	byPath := map[string]FileOutcome{}
	for _, o := range report.Outcomes {
		byPath[o.FilePath] = o
	}
	for _, path := range []string{boom, broken} {
		o := byPath[path]
		if o.Success || o.FailedCount != 1 || o.ErrorMessage == "" || o.Duration != 0 {
			t.Fatalf("fault outcome for %s = %+v", path, o)
		}
	}
	if !strings.Contains(byPath[boom].ErrorMessage, "engine exploded") {
		t.Fatalf("panic message lost: %q", byPath[boom].ErrorMessage)
	}
	if report.Summary.Failed != 2 || report.Summary.Passed != 1 || report.Summary.Success {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
}

func TestRunFilesConfigPerFile(t *testing.T) {
	dir := t.TempDir()
	files := []string{touch(t, dir, "one_test.py"), touch(t, dir, "two_test.py")}

	var mu sync.Mutex
	seen := map[string]config.TestConfig{}
	engine := EngineFunc(func(ctx context.Context, target string, cfg config.TestConfig) (Result, error) {
		mu.Lock()
		seen[target] = cfg
		mu.Unlock()
		return Result{Counts: aggregate.Counts{Passed: 1}}, nil
	})
	runner := NewRunner(engine, nil)

	if _, err := runner.RunFiles(context.Background(), files, nil, Options{MaxConcurrency: 1}); err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}
	for _, f := range files {
		cfg := seen[f]
		if cfg.Target != f || cfg.Verbosity != config.VerbosityMinimal || !cfg.CollectResults {
			t.Fatalf("default config for %s = %+v", f, cfg)
		}
	}

	explicit := &config.TestConfig{Verbosity: config.VerbosityDetailed, Args: []string{"-x"}}
	if _, err := runner.RunFiles(context.Background(), files, explicit, Options{MaxConcurrency: 2}); err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}
	for _, f := range files {
		cfg := seen[f]
		if cfg.Target != f || cfg.Verbosity != config.VerbosityDetailed || len(cfg.Args) != 1 {
			t.Fatalf("explicit config for %s = %+v", f, cfg)
		}
	}
	if explicit.Target != "" {
		t.Fatalf("caller config must not be mutated")
	}
}

func TestRunFilesInputErrors(t *testing.T) {
	called := false
	engine := EngineFunc(func(context.Context, string, config.TestConfig) (Result, error) {
		called = true
		return Result{}, nil
	})
	runner := NewRunner(engine, nil)

	if _, err := runner.RunFiles(context.Background(), []string{"/does/not/exist"}, nil, Options{MaxConcurrency: 1}); !errors.Is(err, ErrNoValidInput) {
		t.Fatalf("err = %v, want ErrNoValidInput", err)
	}
	if _, err := runner.RunFiles(context.Background(), nil, nil, Options{MaxConcurrency: 1}); !errors.Is(err, ErrNoValidInput) {
		t.Fatalf("err = %v, want ErrNoValidInput", err)
	}
	if _, err := runner.RunFiles(context.Background(), []string{t.TempDir()}, nil, Options{MaxConcurrency: 0}); !errors.Is(err, pool.ErrInvalidConcurrency) {
		t.Fatalf("err = %v, want ErrInvalidConcurrency", err)
	}
	if called {
		t.Fatalf("engine must not run on input errors")
	}
}

func TestRunFilesDeadline(t *testing.T) {
	dir := t.TempDir()
	fast := touch(t, dir, "fast_test.go")
	slow := touch(t, dir, "slow_test.go")
	release := make(chan struct{})
	defer close(release)

	engine := EngineFunc(func(ctx context.Context, target string, cfg config.TestConfig) (Result, error) {
		if target == slow {
			<-release
		}
		return Result{Counts: aggregate.Counts{Passed: 1}}, nil
	})

	start := time.Now()
	report, err := NewRunner(engine, nil).RunFiles(context.Background(), []string{fast, slow}, nil, Options{MaxConcurrency: 2, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("RunFiles overran its deadline")
	}
	var timedOut FileOutcome
	for _, o := range report.Outcomes {
		if o.FilePath == slow {
			timedOut = o
		}
	}
	if timedOut.Success || timedOut.FailedCount != 1 || !strings.Contains(timedOut.ErrorMessage, "deadline exceeded") {
		t.Fatalf("slow outcome = %+v", timedOut)
	}
	if report.Summary.Passed != 1 || report.Summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
}

func TestFileOutcomeStatFnHook(t *testing.T) {
	restore := SetStatFn(func(string) (os.FileInfo, error) { return nil, os.ErrNotExist })
	defer restore()

	_, err := NewRunner(EngineFunc(func(context.Context, string, config.TestConfig) (Result, error) {
		return Result{}, nil
	}), nil).RunFiles(context.Background(), []string{t.TempDir()}, nil, Options{MaxConcurrency: 1})
	if !errors.Is(err, ErrNoValidInput) {
		t.Fatalf("err = %v, want ErrNoValidInput", err)
	}
}
