package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const maxErrorEntries = 100

// Logger writes JSON log lines to a per-process file under os.TempDir().
// It is safe for concurrent use.
type Logger struct {
	path string
	file *os.File

	mu     sync.Mutex
	buf    *bufio.Writer
	closed bool

	zl zerolog.Logger

	errMu      sync.Mutex
	errEntries []string
}

// Option customizes a Logger at construction.
type Option func(*loggerOptions)

type loggerOptions struct {
	console io.Writer
	level   zerolog.Level
}

// WithConsole mirrors every entry to w in human readable form.
func WithConsole(w io.Writer) Option {
	return func(o *loggerOptions) { o.console = w }
}

// WithLevel drops entries below level.
func WithLevel(level Level) Option {
	return func(o *loggerOptions) { o.level = level.zerolog() }
}

// NewLogger creates $TMPDIR/labrunner-<pid>.log.
func NewLogger(opts ...Option) (*Logger, error) {
	return NewLoggerWithSuffix("", opts...)
}

// NewLoggerWithSuffix creates $TMPDIR/labrunner-<pid>-<suffix>.log. The suffix
// is sanitized so it is always a safe file name fragment.
func NewLoggerWithSuffix(suffix string, opts ...Option) (*Logger, error) {
	o := loggerOptions{level: zerolog.DebugLevel}
	for _, opt := range opts {
		opt(&o)
	}

	name := fmt.Sprintf("%s-%d", PrimaryLogPrefix(), os.Getpid())
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		name += "-" + sanitizeLogSuffix(suffix)
	}
	path := filepath.Join(os.TempDir(), name+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{path: path, file: f, buf: bufio.NewWriterSize(f, 32*1024)}

	var out io.Writer = lockedWriter{l}
	if o.console != nil {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: o.console, TimeFormat: time.Kitchen})
	}
	l.zl = zerolog.New(out).Level(o.level).With().Timestamp().Int("pid", os.Getpid()).Logger()
	return l, nil
}

type lockedWriter struct{ l *Logger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	if w.l.closed {
		return len(p), nil
	}
	return w.l.buf.Write(p)
}

// Path returns the log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log implements Sink.
func (l *Logger) Log(level Level, msg string) {
	if l == nil {
		return
	}
	switch level {
	case LevelWarn, LevelError:
		l.remember(level, msg)
	}

	ev := l.zl.WithLevel(level.zerolog())
	if level == LevelSuccess {
		ev = ev.Bool("success", true)
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string)   { l.Log(LevelDebug, msg) }
func (l *Logger) Info(msg string)    { l.Log(LevelInfo, msg) }
func (l *Logger) Success(msg string) { l.Log(LevelSuccess, msg) }
func (l *Logger) Warn(msg string)    { l.Log(LevelWarn, msg) }
func (l *Logger) Error(msg string)   { l.Log(LevelError, msg) }

func (l *Logger) remember(level Level, msg string) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.errEntries = append(l.errEntries, fmt.Sprintf("[%s] %s", strings.ToUpper(string(level)), msg))
	if over := len(l.errEntries) - maxErrorEntries; over > 0 {
		l.errEntries = append(l.errEntries[:0], l.errEntries[over:]...)
	}
}

// ExtractRecentErrors returns up to maxEntries of the most recent warn and
// error entries, oldest first. At most the last 100 are retained.
func (l *Logger) ExtractRecentErrors(maxEntries int) []string {
	if l == nil || l.path == "" || maxEntries <= 0 {
		return nil
	}
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if len(l.errEntries) == 0 {
		return nil
	}
	start := len(l.errEntries) - maxEntries
	if start < 0 {
		start = 0
	}
	out := make([]string, len(l.errEntries)-start)
	copy(out, l.errEntries[start:])
	return out
}

// Flush writes buffered entries to disk.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	_ = l.buf.Flush()
	_ = l.file.Sync()
}

// Close flushes and closes the file. The file itself is kept on disk.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	flushErr := l.buf.Flush()
	closeErr := l.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// RemoveLogFile deletes the log file. Call after Close.
func (l *Logger) RemoveLogFile() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := removeLogFileFn(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// sanitizeLogSuffix maps arbitrary input to [A-Za-z0-9._-]. Leading and
// trailing separators are encoded instead of trimmed so distinct inputs stay
// distinct.
func sanitizeLogSuffix(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case (r == '-' || r == '.') && i > 0 && i < len(s)-1:
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "x%02x", r)
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
