package testrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"labrunner/internal/aggregate"
	"labrunner/internal/jobs"
	"labrunner/internal/logger"
	"labrunner/internal/manifest"
	"labrunner/internal/parser"
	"labrunner/internal/utils"
)

const jobOutputTailBytes = 64 * 1024

// JobResult is the result payload of a shell job.
type JobResult struct {
	Name     string           `json:"name"`
	Command  string           `json:"command"`
	ExitCode int              `json:"exitCode"`
	Counts   aggregate.Counts `json:"counts"`
	// Parsed is true when test counts were recognised in the output. A job
	// without test output counts as one check.
	Parsed      bool     `json:"parsed"`
	FailedTests []string `json:"failedTests,omitempty"`
	OutputTail  string   `json:"outputTail,omitempty"`
}

func (r JobResult) TestCounts() (aggregate.Counts, bool) { return r.Counts, true }

func (r JobResult) FailureMessage() string {
	if len(r.FailedTests) > 0 {
		return strings.Join(r.FailedTests, "; ")
	}
	if r.ExitCode != 0 {
		tail := utils.LastLines(utils.SanitizeOutput(r.OutputTail), 3, " | ")
		if tail == "" {
			return fmt.Sprintf("exit status %d", r.ExitCode)
		}
		return fmt.Sprintf("exit status %d: %s", r.ExitCode, utils.SafeTruncate(tail, 300))
	}
	return ""
}

// ShellWork returns the job body used by `labrunner run`. It expects a single
// manifest.JobSpec argument and runs its command with `sh -c`.
func ShellWork(log logger.Sink) jobs.Work {
	log = logger.OrNop(log)
	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("shell job expects 1 argument, got %d", len(args))
		}
		spec, ok := args[0].(manifest.JobSpec)
		if !ok {
			return nil, fmt.Errorf("shell job argument is %T, want manifest.JobSpec", args[0])
		}
		return runShell(ctx, spec, log)
	}
}

// runShell returns a JobResult whenever the command ran, including non-zero
// exits. A command that could not be started yields no result.
func runShell(ctx context.Context, spec manifest.JobSpec, log logger.Sink) (any, error) {
	res := JobResult{Name: spec.Name, Command: spec.Command}

	cmd := commandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	tail := &tailBuffer{limit: jobOutputTailBytes}
	lines := newLineLogger(log, "["+spec.Name+"] ", logLineLimit)
	out := io.MultiWriter(tail, lines)
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	lines.Flush()
	elapsed := time.Since(start)
	res.OutputTail = tail.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %q: %w", spec.Name, err)
	}

	tally := parser.ParseAny(res.OutputTail, func(msg string) { log.Log(logger.LevelDebug, msg) })
	if tally.Parsed {
		res.Parsed = true
		res.Counts = aggregate.Counts{Passed: tally.Passed, Failed: tally.Failed, Skipped: tally.Skipped, Duration: tally.Elapsed}
		for _, ft := range tally.FailedTests {
			res.FailedTests = append(res.FailedTests, ft.Name)
		}
	}
	switch {
	case !tally.Parsed && res.ExitCode == 0:
		res.Counts.Passed = 1
	case res.ExitCode != 0 && res.Counts.Failed == 0:
		res.Counts.Failed = 1
	}
	if res.Counts.Duration <= 0 {
		res.Counts.Duration = elapsed
	}

	if res.ExitCode != 0 {
		return res, fmt.Errorf("%s: exit status %d", spec.Name, res.ExitCode)
	}
	return res, nil
}
