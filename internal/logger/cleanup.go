package logger

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	processRunningCheck = isProcessRunning
	processStartTimeFn  = getProcessStartTime
	removeLogFileFn     = os.Remove
	globLogFiles        = filepath.Glob
	fileStatFn          = os.Lstat
	evalSymlinksFn      = filepath.EvalSymlinks
)

// CleanupStats reports what CleanupOldLogs did.
type CleanupStats struct {
	Scanned      int
	Deleted      int
	Kept         int
	Errors       int
	DeletedFiles []string
	KeptFiles    []string
}

// CleanupOldLogs removes log files left behind by processes that are no
// longer running. Logs of live processes, of the current process, and
// anything that is not a plain file inside the temp dir are kept.
func CleanupOldLogs() (CleanupStats, error) {
	var stats CleanupStats
	tempDir := os.TempDir()

	var files []string
	for _, prefix := range LogPrefixes() {
		matches, err := globLogFiles(filepath.Join(tempDir, prefix+"-*.log"))
		if err != nil {
			return stats, fmt.Errorf("glob log files: %w", err)
		}
		files = append(files, matches...)
	}

	self := os.Getpid()
	for _, path := range files {
		stats.Scanned++

		pid, ok := parsePIDFromLog(path)
		if !ok || pid == self || isUnsafeFile(path, tempDir) {
			stats.Kept++
			stats.KeptFiles = append(stats.KeptFiles, path)
			continue
		}
		if processRunningCheck(pid) && !isPIDReused(path, pid) {
			stats.Kept++
			stats.KeptFiles = append(stats.KeptFiles, path)
			continue
		}

		if err := removeLogFileFn(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			stats.Errors++
			continue
		}
		stats.Deleted++
		stats.DeletedFiles = append(stats.DeletedFiles, path)
	}

	return stats, nil
}

// parsePIDFromLog extracts <pid> from "<prefix>-<pid>[-suffix].log".
func parsePIDFromLog(path string) (int, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".log") {
		return 0, false
	}
	base = strings.TrimSuffix(base, ".log")

	for _, prefix := range LogPrefixes() {
		rest, found := strings.CutPrefix(base, prefix+"-")
		if !found {
			continue
		}
		digits := rest
		if idx := strings.IndexByte(rest, '-'); idx >= 0 {
			digits = rest[:idx]
		}
		if digits == "" {
			return 0, false
		}
		pid, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || pid <= 0 || pid > math.MaxInt32 {
			return 0, false
		}
		return int(pid), true
	}
	return 0, false
}

// isPIDReused reports whether the log predates the process now holding pid.
func isPIDReused(path string, pid int) bool {
	info, err := fileStatFn(path)
	if err != nil {
		return false
	}
	started := processStartTimeFn(pid)
	if started.IsZero() {
		return false
	}
	return info.ModTime().Add(time.Second).Before(started)
}

// isUnsafeFile rejects symlinks, non-regular files, and paths that resolve
// outside tempDir.
func isUnsafeFile(path, tempDir string) bool {
	info, err := fileStatFn(path)
	if err != nil {
		return true
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return true
	}

	resolved, err := evalSymlinksFn(path)
	if err != nil {
		return true
	}
	base, err := evalSymlinksFn(tempDir)
	if err != nil {
		base = tempDir
	}
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(resolved))
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
