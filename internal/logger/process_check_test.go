package logger

import (
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"testing"
	"time"
)

func TestIsProcessRunning(t *testing.T) {
	t.Run("invalid pids", func(t *testing.T) {
		for _, pid := range []int{0, -1} {
			if isProcessRunning(pid) {
				t.Fatalf("pid %d should never be treated as running", pid)
			}
		}
		if strconv.IntSize > 32 {
			pid := int(int64(math.MaxInt32) + 1)
			if isProcessRunning(pid) {
				t.Fatalf("pid %d (out of int32 range) should not be running", pid)
			}
		}
	})

	t.Run("current process", func(t *testing.T) {
		if !isProcessRunning(os.Getpid()) {
			t.Fatalf("expected current process (pid=%d) to be running", os.Getpid())
		}
	})

	t.Run("exited child", func(t *testing.T) {
		pid := exitedProcessPID(t)
		if isProcessRunning(pid) {
			t.Fatalf("expected exited child (pid=%d) to be reported as not running", pid)
		}
	})
}

func TestIsProcessRunningZombie(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("zombie state is read from /proc")
	}
	cmd := exec.Command("sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start helper process: %v", err)
	}
	// Not reaped until Wait, so the child lingers as a zombie.
	t.Cleanup(func() { _ = cmd.Wait() })
	pid := cmd.Process.Pid

	deadline := time.Now().Add(2 * time.Second)
	for isProcessRunning(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("unreaped child (pid=%d) still reported as running", pid)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func exitedProcessPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command("sh", "-c", "exit 0")
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "exit 0")
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start helper process: %v", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatalf("helper process did not exit cleanly: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	return pid
}

func TestGetProcessStartTime(t *testing.T) {
	start := getProcessStartTime(os.Getpid())
	if start.IsZero() {
		t.Fatalf("expected non-zero start time for current process")
	}
	if start.After(time.Now().Add(5 * time.Second)) {
		t.Fatalf("start time is unexpectedly in the future: %v", start)
	}

	for _, pid := range []int{0, -1, 1 << 30} {
		if !getProcessStartTime(pid).IsZero() {
			t.Fatalf("expected zero time for pid %d", pid)
		}
	}
}
