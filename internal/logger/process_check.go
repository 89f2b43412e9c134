package logger

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// lookupProcess reports ErrorProcessNotRunning for pids that cannot name a
// process on any supported platform.
func lookupProcess(pid int) (*process.Process, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return nil, process.ErrorProcessNotRunning
	}
	return process.NewProcess(int32(pid))
}

// isProcessRunning treats a zombie as gone: its run has ended even though the
// parent has not reaped it yet. When the process table cannot be read the
// answer is "running", so a live run never loses its log.
func isProcessRunning(pid int) bool {
	proc, err := lookupProcess(pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return false
	}
	if err != nil {
		return true
	}
	statuses, err := proc.Status()
	if err != nil {
		return true
	}
	return !slices.Contains(statuses, process.Zombie)
}

// getProcessStartTime returns the zero time when unknown.
func getProcessStartTime(pid int) time.Time {
	proc, err := lookupProcess(pid)
	if err != nil {
		return time.Time{}
	}
	ms, err := proc.CreateTime()
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
