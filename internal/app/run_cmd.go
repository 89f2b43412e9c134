package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"labrunner/internal/aggregate"
	"labrunner/internal/jobs"
	"labrunner/internal/logger"
	"labrunner/internal/manifest"
	"labrunner/internal/testrun"

	"github.com/spf13/cobra"
)

func newRunCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-f manifest]",
		Short: "Run shell jobs from a manifest and wait for all of them",
		Long: `Run shell jobs concurrently and print a summary once every job finished
or the timeout elapsed. Jobs come from -f (json, yaml or toml) or from stdin:

  ---JOB---
  name: unit
  workdir: ./service
  ---COMMAND---
  go test ./...`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return codeErr(runJobs(cmd, opts))
		},
	}
	cmd.Flags().StringVarP(&opts.ManifestFile, "file", "f", "", "Job manifest file (.json, .yaml or .toml)")
	return cmd
}

func readManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.Load(path)
	}
	if isTerminal() {
		return nil, fmt.Errorf("no jobs given: pass -f <manifest> or pipe ---JOB--- blocks on stdin")
	}
	data, err := io.ReadAll(stdinReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return manifest.ParseBlocks(data)
}

type startFailure struct {
	name string
	err  error
}

func (s startFailure) Source() string { return s.name }

func (s startFailure) Counts() (aggregate.Counts, bool) { return aggregate.Counts{Failed: 1}, true }

func (s startFailure) FailureMessage() string { return s.err.Error() }

// limit makes work wait for a slot in sem before running.
func limit(work jobs.Work, sem chan struct{}) jobs.Work {
	return func(ctx context.Context, args ...any) (any, error) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-sem }()
		return work(ctx, args...)
	}
}

func runJobs(cmd *cobra.Command, opts *cliOptions) int {
	stderr := cmd.ErrOrStderr()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitUsage
	}
	m, err := readManifest(opts.ManifestFile)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitUsage
	}
	specs := m.Active()
	if len(specs) == 0 {
		fmt.Fprintln(stderr, "ERROR: every job in the manifest is disabled")
		return exitUsage
	}

	return runWithLogger(cfg, stderr, func(log *logger.Logger) int {
		ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := jobs.NewRegistry(jobs.RegistryOptions{Log: log})
		defer reg.Close()
		work := limit(testrun.ShellWork(log), make(chan struct{}, cfg.MaxWorkers))

		var handles []*jobs.Handle
		var records []aggregate.Record
		for _, spec := range specs {
			h, err := reg.Start(ctx, spec.Name, work, spec)
			if err != nil {
				records = append(records, startFailure{name: spec.Name, err: err})
				continue
			}
			handles = append(handles, h)
		}
		log.Info(fmt.Sprintf("Started %d of %d jobs, %d workers, timeout %s", len(handles), len(specs), cfg.MaxWorkers, cfg.Timeout))

		waiter := jobs.NewWaiter(jobs.WaiterOptions{
			Log:          log,
			PollInterval: cfg.PollInterval,
			OnProgress: func(done, total int) {
				fmt.Fprintf(stderr, "[%d/%d] jobs finished\n", done, total)
			},
		})
		outs := waiter.WaitAll(ctx, reg, handles, cfg.Timeout, cfg.ShowProgress)
		records = append(records, aggregate.FromJobs(outs)...)

		return finish(cmd.OutOrStdout(), cfg, log, aggregate.Merge(log, records...))
	})
}
