package testrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"labrunner/internal/aggregate"
	"labrunner/internal/config"
	"labrunner/internal/logger"
	"labrunner/internal/parser"
	"labrunner/internal/utils"
)

// Result is what an Engine reports for one target.
type Result struct {
	aggregate.Counts
	// FailedTests names the failed tests, with their first assertion
	// message when known.
	FailedTests []string
}

// Engine executes the tests found at target.
type Engine interface {
	Run(ctx context.Context, target string, cfg config.TestConfig) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, target string, cfg config.TestConfig) (Result, error)

func (f EngineFunc) Run(ctx context.Context, target string, cfg config.TestConfig) (Result, error) {
	return f(ctx, target, cfg)
}

// CommandEngine runs an external test command and parses its output.
type CommandEngine struct {
	Name   string
	Config config.EngineConfig
	Log    logger.Sink
}

// NewCommandEngine resolves name through config.ResolveEngine. An empty name
// selects the configured default engine.
func NewCommandEngine(name string, log logger.Sink) (*CommandEngine, error) {
	key, cfg, err := config.ResolveEngine(name, log)
	if err != nil {
		return nil, err
	}
	return &CommandEngine{Name: key, Config: cfg, Log: log}, nil
}

// Run starts the engine command for target and waits for it. A non-zero exit
// is not an error as long as the output reported the failing tests.
func (e *CommandEngine) Run(ctx context.Context, target string, cfg config.TestConfig) (Result, error) {
	log := logger.OrNop(e.Log)
	if strings.TrimSpace(e.Config.Command) == "" {
		return Result{}, fmt.Errorf("engine %q has no command", e.Name)
	}

	args := e.Config.ExpandArgs(target, cfg.Verbosity)
	args = append(args, cfg.Args...)
	cmd := commandContext(ctx, e.Config.Command, args...)

	switch {
	case cfg.WorkDir != "":
		cmd.Dir = cfg.WorkDir
	case e.Config.InFileDir:
		cmd.Dir = targetDir(target)
	}
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stderrTail := &tailBuffer{limit: stderrTailBytes}
	stderrLog := newLineLogger(log, fmt.Sprintf("[%s stderr] ", filepath.Base(target)), logLineLimit)
	cmd.Stderr = io.MultiWriter(stderrTail, stderrLog)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}

	start := time.Now()
	log.Log(logger.LevelDebug, fmt.Sprintf("Running %s %s", e.Config.Command, strings.Join(args, " ")))
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", e.Config.Command, err)
	}

	stdoutTail := &tailBuffer{limit: stdoutTailBytes}
	var tally parser.Tally
	switch e.Config.Output {
	case config.OutputGoTestJSON:
		tally = parser.ParseGoTestJSON(io.TeeReader(stdout, stdoutTail), func(msg string) {
			log.Log(logger.LevelDebug, msg)
		})
	default:
		_, _ = io.Copy(stdoutTail, stdout)
		tally = parser.ParseSummary(stdoutTail.String())
	}
	waitErr := cmd.Wait()
	stderrLog.Flush()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if !tally.Parsed {
		return Result{}, commandFault("no test results reported", waitErr, stderrTail.String(), stdoutTail.String())
	}
	if tally.Total() == 0 && len(tally.PackageFailures) > 0 {
		return Result{}, fmt.Errorf("package failed: %s", strings.Join(tally.PackageFailures, "; "))
	}
	if waitErr != nil && tally.Failed == 0 {
		return Result{}, commandFault("command failed without failing tests", waitErr, stderrTail.String(), stdoutTail.String())
	}

	res := Result{
		Counts: aggregate.Counts{
			Passed:   tally.Passed,
			Failed:   tally.Failed,
			Skipped:  tally.Skipped,
			Duration: tally.Elapsed,
		},
	}
	if res.Duration <= 0 {
		res.Duration = elapsed
	}
	for _, ft := range tally.FailedTests {
		name := ft.Name
		if ft.Reason != "" {
			name += ": " + ft.Reason
		}
		res.FailedTests = append(res.FailedTests, name)
	}
	return res, nil
}

func targetDir(target string) string {
	if info, err := statFn(target); err == nil && info.IsDir() {
		return target
	}
	return filepath.Dir(target)
}

func commandFault(what string, waitErr error, stderr, stdout string) error {
	detail := strings.TrimSpace(utils.SanitizeOutput(stderr))
	if detail == "" {
		detail = strings.TrimSpace(utils.SanitizeOutput(stdout))
	}
	detail = utils.SafeTruncate(utils.LastLines(detail, 5, " | "), 500)

	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr) && detail != "":
		return fmt.Errorf("%s (exit status %d): %s", what, exitErr.ExitCode(), detail)
	case errors.As(waitErr, &exitErr):
		return fmt.Errorf("%s (exit status %d)", what, exitErr.ExitCode())
	case waitErr != nil:
		return fmt.Errorf("%s: %w", what, waitErr)
	case detail != "":
		return fmt.Errorf("%s: %s", what, detail)
	}
	return errors.New(what)
}
