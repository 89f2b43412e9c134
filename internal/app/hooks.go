package app

import (
	"io"
	"os"

	"labrunner/internal/logger"
	"labrunner/internal/testrun"

	"github.com/oklog/ulid/v2"
)

var version = "dev"

var (
	exitFn                  = os.Exit
	stdinReader   io.Reader = os.Stdin
	isTerminal              = defaultIsTerminal
	cleanupLogsFn           = logger.CleanupOldLogs
	newLoggerFn             = logger.NewLogger
	newRunID                = func() string { return ulid.Make().String() }
	newEngineFn             = func(name string, log logger.Sink) (testrun.Engine, error) {
		engine, err := testrun.NewCommandEngine(name, log)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
)

// defaultIsTerminal reports whether stdin is an interactive terminal. A
// stdin that cannot be inspected is treated as a terminal.
func defaultIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
