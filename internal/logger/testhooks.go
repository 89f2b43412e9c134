package logger

import (
	"os"
	"path/filepath"
	"time"
)

// swapHook installs fn (or def when fn is nil) into *dst and returns a func
// restoring the previous value.
func swapHook[T any](dst *T, fn *T, def T) (restore func()) {
	prev := *dst
	if fn != nil {
		*dst = *fn
	} else {
		*dst = def
	}
	return func() { *dst = prev }
}

func hookOrNil[T any](fn T, isNil bool) *T {
	if isNil {
		return nil
	}
	return &fn
}

func SetProcessRunningCheck(fn func(int) bool) (restore func()) {
	return swapHook(&processRunningCheck, hookOrNil(fn, fn == nil), isProcessRunning)
}

func SetProcessStartTimeFn(fn func(int) time.Time) (restore func()) {
	return swapHook(&processStartTimeFn, hookOrNil(fn, fn == nil), getProcessStartTime)
}

func SetRemoveLogFileFn(fn func(string) error) (restore func()) {
	return swapHook(&removeLogFileFn, hookOrNil(fn, fn == nil), os.Remove)
}

func SetGlobLogFilesFn(fn func(string) ([]string, error)) (restore func()) {
	return swapHook(&globLogFiles, hookOrNil(fn, fn == nil), filepath.Glob)
}

func SetFileStatFn(fn func(string) (os.FileInfo, error)) (restore func()) {
	return swapHook(&fileStatFn, hookOrNil(fn, fn == nil), os.Lstat)
}

func SetEvalSymlinksFn(fn func(string) (string, error)) (restore func()) {
	return swapHook(&evalSymlinksFn, hookOrNil(fn, fn == nil), filepath.EvalSymlinks)
}
