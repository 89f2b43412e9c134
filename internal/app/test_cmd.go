package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"labrunner/internal/config"
	"labrunner/internal/logger"
	"labrunner/internal/pool"
	"labrunner/internal/testrun"

	"github.com/spf13/cobra"
)

func newTestCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "test [flags] <file>...",
		Short:         "Run test files in parallel and print a summary",
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return codeErr(runTests(cmd, args, opts))
		},
	}
	cmd.Flags().StringVar(&opts.TestConfig, "test-config", "", "Test configuration applied to every file (.json, .yaml or .toml)")
	return cmd
}

func runTests(cmd *cobra.Command, files []string, opts *cliOptions) int {
	stderr := cmd.ErrOrStderr()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitUsage
	}

	var testCfg *config.TestConfig
	if opts.TestConfig != "" {
		testCfg, err = config.LoadTestConfig(opts.TestConfig)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return exitUsage
		}
	}

	return runWithLogger(cfg, stderr, func(log *logger.Logger) int {
		engineName := cfg.Engine
		if testCfg != nil && testCfg.Engine != "" {
			engineName = testCfg.Engine
		}
		engine, err := newEngineFn(engineName, log)
		if err != nil {
			log.Error(err.Error())
			return exitUsage
		}
		log.Info(fmt.Sprintf("Running %d test files with engine %q, %d workers, timeout %s", len(files), engineName, cfg.MaxWorkers, cfg.Timeout))

		ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := testrun.NewRunner(engine, log).RunFiles(ctx, files, testCfg, testrun.Options{
			MaxConcurrency: cfg.MaxWorkers,
			Timeout:        cfg.Timeout,
		})
		if err != nil {
			log.Error(err.Error())
			if errors.Is(err, testrun.ErrNoValidInput) || errors.Is(err, pool.ErrInvalidConcurrency) {
				return exitUsage
			}
			return exitFailure
		}
		return finish(cmd.OutOrStdout(), cfg, log, report.Summary)
	})
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
