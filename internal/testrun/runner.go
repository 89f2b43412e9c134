// Package testrun executes test files in parallel through a test engine and
// folds the per-file outcomes into one summary.
package testrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labrunner/internal/aggregate"
	"labrunner/internal/config"
	"labrunner/internal/logger"
	"labrunner/internal/metrics"
	"labrunner/internal/pool"
)

// ErrNoValidInput is returned when none of the given paths exist.
var ErrNoValidInput = errors.New("no valid test files")

// FileOutcome is the result of running one test file. Success is true
// exactly when FailedCount is zero and ErrorMessage is empty.
type FileOutcome struct {
	FilePath     string        `json:"filePath"`
	Success      bool          `json:"success"`
	PassedCount  int           `json:"passedCount"`
	FailedCount  int           `json:"failedCount"`
	SkippedCount int           `json:"skippedCount"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	FailedTests  []string      `json:"failedTests,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (o FileOutcome) Source() string { return o.FilePath }

func (o FileOutcome) Counts() (aggregate.Counts, bool) {
	return aggregate.Counts{
		Passed:   o.PassedCount,
		Failed:   o.FailedCount,
		Skipped:  o.SkippedCount,
		Duration: o.Duration,
	}, true
}

func (o FileOutcome) FailureMessage() string {
	if o.ErrorMessage != "" {
		return o.ErrorMessage
	}
	return strings.Join(o.FailedTests, "; ")
}

func faultOutcome(path string, err error) FileOutcome {
	return FileOutcome{
		FilePath:     path,
		Success:      false,
		FailedCount:  1,
		ErrorMessage: err.Error(),
		Timestamp:    time.Now(),
	}
}

// Options bounds a RunFiles call.
type Options struct {
	MaxConcurrency int
	// Timeout bounds the whole run; zero means no deadline.
	Timeout time.Duration
}

// Report is the result of RunFiles.
type Report struct {
	Summary  aggregate.Summary `json:"summary"`
	Outcomes []FileOutcome     `json:"outcomes"`
}

// Runner runs test files through an Engine.
type Runner struct {
	engine Engine
	log    logger.Sink
}

// NewRunner returns a Runner using engine.
func NewRunner(engine Engine, log logger.Sink) *Runner {
	return &Runner{engine: engine, log: logger.OrNop(log)}
}

// RunFiles runs every existing file with at most opts.MaxConcurrency engines
// at once. Missing paths are skipped with a warning. When cfg is nil each
// file gets config.DefaultTestConfig; otherwise cfg is applied to every file.
//
// Engine faults, panics and files still running at the deadline become
// failed outcomes; RunFiles only returns an error for invalid input.
func (r *Runner) RunFiles(ctx context.Context, files []string, cfg *config.TestConfig, opts Options) (Report, error) {
	if opts.MaxConcurrency <= 0 {
		return Report{}, fmt.Errorf("%w: got %d", pool.ErrInvalidConcurrency, opts.MaxConcurrency)
	}
	if r.engine == nil {
		return Report{}, errors.New("test engine is nil")
	}

	valid := make([]string, 0, len(files))
	for _, path := range files {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := statFn(path); err != nil {
			r.log.Log(logger.LevelWarn, fmt.Sprintf("Skipping %s: %v", path, err))
			continue
		}
		valid = append(valid, path)
	}
	if len(valid) == 0 {
		r.log.Log(logger.LevelError, "No valid test files to run")
		return Report{}, ErrNoValidInput
	}

	worker := func(ctx context.Context, path string) (FileOutcome, error) {
		fileCfg := config.DefaultTestConfig(path)
		if cfg != nil {
			fileCfg = cfg.ForTarget(path)
		}
		return r.runOne(ctx, path, fileCfg), nil
	}

	items, runErr := pool.Run(ctx, valid, worker, pool.Options{
		Name:           "test run",
		MaxConcurrency: opts.MaxConcurrency,
		Timeout:        opts.Timeout,
		Log:            r.log,
	})

	outcomes := make([]FileOutcome, len(items))
	records := make([]aggregate.Record, len(items))
	for i, it := range items {
		out := it.Value
		switch {
		case !it.Done:
			out = faultOutcome(valid[i], notFinished(runErr))
		case it.Err != nil:
			out = faultOutcome(valid[i], it.Err)
		}
		outcomes[i] = out
		records[i] = out
		if out.Success {
			metrics.TestFiles.WithLabelValues(metrics.ResultOK).Inc()
		} else {
			metrics.TestFiles.WithLabelValues(metrics.ResultFailed).Inc()
		}
	}

	summary := aggregate.Merge(r.log, records...)
	totals := fmt.Sprintf("Test totals: %d passed, %d failed, %d skipped", summary.Passed, summary.Failed, summary.Skipped)
	if summary.Success {
		r.log.Log(logger.LevelSuccess, totals)
	} else {
		r.log.Log(logger.LevelError, totals)
	}
	return Report{Summary: summary, Outcomes: outcomes}, nil
}

func (r *Runner) runOne(ctx context.Context, path string, cfg config.TestConfig) (out FileOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Log(logger.LevelError, fmt.Sprintf("Test engine panicked on %s: %v", path, rec))
			out = faultOutcome(path, fmt.Errorf("engine panic: %v", rec))
		}
	}()

	res, err := r.engine.Run(ctx, path, cfg)
	if err != nil {
		r.log.Log(logger.LevelError, fmt.Sprintf("Test execution failed for %s: %v", path, err))
		return faultOutcome(path, err)
	}
	out = FileOutcome{
		FilePath:     path,
		Success:      res.Failed == 0,
		PassedCount:  res.Passed,
		FailedCount:  res.Failed,
		SkippedCount: res.Skipped,
		Duration:     res.Duration,
		FailedTests:  res.FailedTests,
		Timestamp:    time.Now(),
	}
	if out.Success {
		r.log.Log(logger.LevelInfo, fmt.Sprintf("%s: %d passed, %d skipped", path, res.Passed, res.Skipped))
	} else {
		r.log.Log(logger.LevelWarn, fmt.Sprintf("%s: %d failed, %d passed", path, res.Failed, res.Passed))
	}
	return out
}

func notFinished(runErr error) error {
	if runErr == nil {
		return pool.ErrTimeout
	}
	return fmt.Errorf("not finished: %w", runErr)
}
