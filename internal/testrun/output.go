package testrun

import (
	"bytes"

	"labrunner/internal/logger"
)

const (
	stderrTailBytes = 4 * 1024
	stdoutTailBytes = 64 * 1024
	logLineLimit    = 1000
)

// lineLogger forwards complete lines written to it to a Sink at debug level.
type lineLogger struct {
	log     logger.Sink
	prefix  string
	maxLen  int
	buf     bytes.Buffer
	dropped bool
}

func newLineLogger(log logger.Sink, prefix string, maxLen int) *lineLogger {
	if maxLen <= 0 {
		maxLen = logLineLimit
	}
	return &lineLogger{log: logger.OrNop(log), prefix: prefix, maxLen: maxLen}
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	if lw == nil {
		return len(p), nil
	}
	total := len(p)
	for len(p) > 0 {
		if idx := bytes.IndexByte(p, '\n'); idx >= 0 {
			lw.writeLimited(p[:idx])
			lw.logLine()
			p = p[idx+1:]
			continue
		}
		lw.writeLimited(p)
		break
	}
	return total, nil
}

func (lw *lineLogger) Flush() {
	if lw == nil || lw.buf.Len() == 0 {
		return
	}
	lw.logLine()
}

func (lw *lineLogger) logLine() {
	line := lw.buf.String()
	dropped := lw.dropped
	lw.dropped = false
	lw.buf.Reset()
	if line == "" {
		return
	}
	if dropped || len(line) > lw.maxLen {
		cut := min(len(line), lw.maxLen)
		if lw.maxLen > 3 {
			cut = min(len(line), lw.maxLen-3)
		}
		line = line[:cut] + "..."
	}
	lw.log.Log(logger.LevelDebug, lw.prefix+line)
}

func (lw *lineLogger) writeLimited(p []byte) {
	if len(p) == 0 {
		return
	}
	remaining := lw.maxLen - lw.buf.Len()
	if remaining <= 0 {
		lw.dropped = true
		return
	}
	if len(p) <= remaining {
		lw.buf.Write(p)
		return
	}
	lw.buf.Write(p[:remaining])
	lw.dropped = true
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return len(p), nil
	}

	if len(p) >= b.limit {
		b.data = append(b.data[:0], p[len(p)-b.limit:]...)
		return len(p), nil
	}

	total := len(b.data) + len(p)
	if total <= b.limit {
		b.data = append(b.data, p...)
		return len(p), nil
	}

	overflow := total - b.limit
	b.data = append(b.data[overflow:], p...)
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}
