// Package app is the labrunner command line: `test` runs test files in
// parallel, `run` runs shell jobs from a manifest and waits for them.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"labrunner/internal/config"
	"labrunner/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

func codeErr(code int) error {
	if code == exitOK {
		return nil
	}
	return exitError{code: code}
}

type cliOptions struct {
	ConfigFile string

	MaxWorkers      int
	Timeout         string
	PollInterval    string
	Progress        bool
	Engine          string
	Format          string
	MetricsTextfile string
	Verbose         bool
	LogLevel        string

	TestConfig   string
	ManifestFile string
}

// Run is the program entrypoint for cmd/labrunner/main.go.
func Run() {
	exitFn(run(os.Args[1:]))
}

func run(args []string) int {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitUsage
	}
	return exitOK
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           logger.ToolName,
		Short:         "Run test files and shell jobs in parallel and summarize the results",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	addRootFlags(cmd.PersistentFlags(), opts)
	cmd.AddCommand(
		newTestCommand(opts),
		newRunCommand(opts),
		newCleanupCommand(),
		newVersionCommand(),
	)
	return cmd
}

func addRootFlags(fs *pflag.FlagSet, opts *cliOptions) {
	fs.StringVar(&opts.ConfigFile, "config", "", "Config file path (default: $HOME/.labrunner/config.*)")
	fs.IntVarP(&opts.MaxWorkers, "max-workers", "j", 0, "Maximum concurrent workers (0 = number of CPUs, max 100)")
	fs.StringVar(&opts.Timeout, "timeout", "30m", "Deadline for the whole run")
	fs.StringVar(&opts.PollInterval, "poll-interval", "1s", "Progress reporting interval for jobs")
	fs.BoolVar(&opts.Progress, "progress", false, "Report progress while waiting")
	fs.StringVar(&opts.Engine, "engine", "", "Test engine preset (go, pytest, pester or one from ~/.labrunner/engines.json)")
	fs.StringVar(&opts.Format, "format", config.FormatText, "Summary format: text, json or markdown")
	fs.StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file when done")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "Mirror log entries to stderr")
	fs.StringVar(&opts.LogLevel, "log-level", "debug", "Minimum level written to the log file")
}

// loadConfig merges flags, LABRUNNER_* env vars and the config file.
func loadConfig(cmd *cobra.Command, opts *cliOptions) (config.Config, error) {
	v, err := config.NewViper(opts.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

// bindFlags binds only flags the user set, so env and config file values
// keep precedence over flag defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	return bindErr
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version and exit",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", logger.ToolName, version)
			return nil
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "cleanup",
		Short:         "Remove log files left by finished runs",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return codeErr(runCleanupMode(cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
}

func runCleanupMode(stdout, stderr io.Writer) int {
	stats, err := cleanupLogsFn()
	if err != nil {
		fmt.Fprintf(stderr, "Cleanup failed: %v\n", err)
		return exitFailure
	}

	fmt.Fprintln(stdout, "Cleanup completed")
	fmt.Fprintf(stdout, "Files scanned: %d\n", stats.Scanned)
	fmt.Fprintf(stdout, "Files deleted: %d\n", stats.Deleted)
	if len(stats.DeletedFiles) > 0 {
		for _, f := range stats.DeletedFiles {
			fmt.Fprintf(stdout, "  - %s\n", f)
		}
	}
	fmt.Fprintf(stdout, "Files kept: %d\n", stats.Kept)
	if len(stats.KeptFiles) > 0 {
		for _, f := range stats.KeptFiles {
			fmt.Fprintf(stdout, "  - %s\n", f)
		}
	}
	if stats.Errors > 0 {
		fmt.Fprintf(stdout, "Deletion errors: %d\n", stats.Errors)
	}
	return exitOK
}

// runWithLogger opens the run log, clears stale logs from earlier runs and
// calls fn. On failure the most recent warnings and errors are echoed to
// stderr and the log file is kept; on success it is removed.
func runWithLogger(cfg config.Config, stderr io.Writer, fn func(log *logger.Logger) int) (exitCode int) {
	logOpts := []logger.Option{logger.WithLevel(logger.ParseLevel(cfg.LogLevel))}
	if cfg.Verbose {
		logOpts = append(logOpts, logger.WithConsole(stderr))
	}
	log, err := newLoggerFn(logOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to initialize logger: %v\n", err)
		return exitFailure
	}

	defer func() {
		log.Flush()
		if err := log.Close(); err != nil {
			fmt.Fprintf(stderr, "ERROR: failed to close logger: %v\n", err)
		}
		if exitCode == exitOK {
			_ = log.RemoveLogFile()
			return
		}
		if entries := log.ExtractRecentErrors(10); len(entries) > 0 {
			fmt.Fprintln(stderr, "\n=== Recent Errors ===")
			for _, entry := range entries {
				fmt.Fprintln(stderr, entry)
			}
		}
		fmt.Fprintf(stderr, "Log file: %s\n", log.Path())
	}()

	if !config.EnvFlagEnabled("LABRUNNER_SKIP_STARTUP_CLEANUP") {
		startupCleanup(log)
	}
	return fn(log)
}

func startupCleanup(log logger.Sink) {
	stats, err := cleanupLogsFn()
	if err != nil {
		log.Log(logger.LevelWarn, fmt.Sprintf("Startup log cleanup failed: %v", err))
		return
	}
	if stats.Deleted > 0 {
		log.Log(logger.LevelDebug, fmt.Sprintf("Removed %d stale log files: %s", stats.Deleted, strings.Join(stats.DeletedFiles, ", ")))
	}
}
