package testrun

import (
	"context"
	"os"
	"os/exec"
)

var (
	commandContext = exec.CommandContext
	statFn         = os.Stat
)

// SetCommandContextFn replaces the exec.Cmd constructor used by engines and
// shell jobs. A nil fn restores exec.CommandContext.
func SetCommandContextFn(fn func(context.Context, string, ...string) *exec.Cmd) (restore func()) {
	prev := commandContext
	if fn != nil {
		commandContext = fn
	} else {
		commandContext = exec.CommandContext
	}
	return func() { commandContext = prev }
}

// SetStatFn replaces the function used to check that test files exist.
func SetStatFn(fn func(string) (os.FileInfo, error)) (restore func()) {
	prev := statFn
	if fn != nil {
		statFn = fn
	} else {
		statFn = os.Stat
	}
	return func() { statFn = prev }
}
