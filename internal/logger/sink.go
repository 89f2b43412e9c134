package logger

import (
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// ParseLevel maps a case-insensitive name to a Level, falling back to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelSuccess:
		return LevelSuccess
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Sink is the logging capability handed to every component.
type Sink interface {
	Log(level Level, msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level Level, msg string)

func (f SinkFunc) Log(level Level, msg string) { f(level, msg) }

type nopSink struct{}

func (nopSink) Log(Level, string) {}

// Nop returns a Sink that discards everything.
func Nop() Sink { return nopSink{} }

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop()
	}
	return s
}

type consoleSink struct {
	mu sync.Mutex
	zl zerolog.Logger
}

// Console returns a Sink writing human readable lines to w. It is the
// fallback when no file logger is available.
func Console(w io.Writer) Sink {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}
	return &consoleSink{zl: zerolog.New(cw)}
}

func (c *consoleSink) Log(level Level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev := c.zl.WithLevel(level.zerolog())
	if level == LevelSuccess {
		ev = ev.Bool("success", true)
	}
	ev.Msg(msg)
}
