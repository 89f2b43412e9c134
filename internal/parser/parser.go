// Package parser turns test engine output into pass/fail/skip tallies. It
// understands the `go test -json` event stream and the summary lines printed
// by pytest and Pester.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	jsonLineReaderSize   = 64 * 1024
	jsonLineMaxBytes     = 10 * 1024 * 1024
	jsonLinePreviewBytes = 256

	// maxTestOutputLines bounds the output kept per running test.
	maxTestOutputLines = 50
	maxReasonLen       = 120
)

type lineScratch struct {
	buf     []byte
	preview []byte
}

const maxPooledLineScratchCap = 1 << 20 // 1 MiB

var lineScratchPool = sync.Pool{
	New: func() any {
		return &lineScratch{
			buf:     make([]byte, 0, jsonLineReaderSize),
			preview: make([]byte, 0, jsonLinePreviewBytes),
		}
	},
}

var goErrorLine = regexp.MustCompile(`^\s*\S+\.go:\d+: `)

type packageState struct {
	failedTests int
	output      []string
}

// ParseGoTestJSON reads a test2json stream and counts top-level tests.
// Subtests are folded into their parent; package events only contribute
// elapsed time. Lines that are not JSON are reported through warnFn and
// skipped.
func ParseGoTestJSON(r io.Reader, warnFn func(string)) Tally {
	reader := bufio.NewReaderSize(r, jsonLineReaderSize)
	scratch := lineScratchPool.Get().(*lineScratch)
	if scratch.buf == nil {
		scratch.buf = make([]byte, 0, jsonLineReaderSize)
	} else {
		scratch.buf = scratch.buf[:0]
	}
	if scratch.preview == nil {
		scratch.preview = make([]byte, 0, jsonLinePreviewBytes)
	} else {
		scratch.preview = scratch.preview[:0]
	}
	defer func() {
		if cap(scratch.buf) > maxPooledLineScratchCap {
			scratch.buf = nil
		} else if scratch.buf != nil {
			scratch.buf = scratch.buf[:0]
		}
		if cap(scratch.preview) > jsonLinePreviewBytes*4 {
			scratch.preview = nil
		} else if scratch.preview != nil {
			scratch.preview = scratch.preview[:0]
		}
		lineScratchPool.Put(scratch)
	}()

	if warnFn == nil {
		warnFn = func(string) {}
	}

	var tally Tally
	outputs := make(map[string][]string)
	packages := make(map[string]*packageState)
	pkgState := func(name string) *packageState {
		ps, ok := packages[name]
		if !ok {
			ps = &packageState{}
			packages[name] = ps
		}
		return ps
	}

	for {
		line, tooLong, err := readLineWithLimit(reader, jsonLineMaxBytes, jsonLinePreviewBytes, scratch)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				warnFn("Read test output error: " + err.Error())
			}
			break
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if tooLong {
			warnFn(fmt.Sprintf("Skipped overlong test event (> %d bytes): %s", jsonLineMaxBytes, TruncateBytes(line, 100)))
			continue
		}

		var ev TestEvent
		if line[0] != '{' || json.Unmarshal(line, &ev) != nil {
			warnFn(fmt.Sprintf("Ignoring non-JSON test output: %s", TruncateBytes(line, 100)))
			continue
		}

		if ev.Test == "" {
			ps := pkgState(ev.Package)
			switch ev.Action {
			case "output":
				ps.output = appendBounded(ps.output, ev.Output)
			case ActionPass, ActionFail:
				tally.Parsed = true
				tally.Elapsed += time.Duration(ev.Elapsed * float64(time.Second))
				if ev.Action == ActionFail && ps.failedTests == 0 {
					tally.PackageFailures = append(tally.PackageFailures, packageFailure(ev.Package, ps.output))
				}
			case ActionSkip:
				tally.Parsed = true
			}
			continue
		}

		top := topLevel(ev.Test)
		key := ev.Package + "\x00" + top
		switch ev.Action {
		case "output":
			outputs[key] = appendBounded(outputs[key], ev.Output)
			continue
		case ActionPass, ActionFail, ActionSkip:
		default:
			continue
		}
		if top != ev.Test {
			continue
		}

		tally.Parsed = true
		switch ev.Action {
		case ActionPass:
			tally.Passed++
		case ActionSkip:
			tally.Skipped++
		case ActionFail:
			tally.Failed++
			pkgState(ev.Package).failedTests++
			tally.FailedTests = append(tally.FailedTests, FailedTest{
				Name:   ev.Test,
				Reason: failureReason(outputs[key]),
			})
		}
		delete(outputs, key)
	}
	return tally
}

func topLevel(test string) string {
	if idx := strings.IndexByte(test, '/'); idx >= 0 {
		return test[:idx]
	}
	return test
}

func appendBounded(lines []string, out string) []string {
	out = strings.TrimRight(out, "\r\n")
	if strings.TrimSpace(out) == "" {
		return lines
	}
	lines = append(lines, out)
	if len(lines) > maxTestOutputLines {
		lines = lines[len(lines)-maxTestOutputLines:]
	}
	return lines
}

// failureReason returns the message of the first file:line: assertion in
// the captured output.
func failureReason(lines []string) string {
	for _, line := range lines {
		if !goErrorLine.MatchString(line) {
			continue
		}
		reason := strings.TrimSpace(line)
		if idx := strings.Index(reason, ".go:"); idx != -1 {
			afterFile := reason[idx+4:]
			if colonIdx := strings.Index(afterFile, ": "); colonIdx != -1 {
				reason = strings.TrimSpace(afterFile[colonIdx+2:])
			}
		}
		return TruncateString(reason, maxReasonLen)
	}
	return ""
}

func packageFailure(pkg string, output []string) string {
	for _, line := range output {
		trimmed := strings.TrimSpace(line)
		if trimmed == "FAIL" || strings.HasPrefix(trimmed, "FAIL\t") {
			continue
		}
		if pkg == "" {
			return TruncateString(trimmed, maxReasonLen)
		}
		return pkg + ": " + TruncateString(trimmed, maxReasonLen)
	}
	return pkg
}

func readLineWithLimit(r *bufio.Reader, maxBytes int, previewBytes int, scratch *lineScratch) (line []byte, tooLong bool, err error) {
	if r == nil {
		return nil, false, errors.New("reader is nil")
	}
	if maxBytes <= 0 {
		return nil, false, errors.New("maxBytes must be > 0")
	}
	if previewBytes < 0 {
		previewBytes = 0
	}

	part, isPrefix, err := r.ReadLine()
	if err != nil {
		return nil, false, err
	}

	if !isPrefix {
		if len(part) > maxBytes {
			return part[:min(len(part), previewBytes)], true, nil
		}
		return part, false, nil
	}

	if scratch == nil {
		scratch = &lineScratch{}
	}
	if scratch.preview == nil {
		scratch.preview = make([]byte, 0, min(previewBytes, len(part)))
	}
	if scratch.buf == nil {
		scratch.buf = make([]byte, 0, min(maxBytes, len(part)*2))
	}

	preview := scratch.preview[:0]
	if previewBytes > 0 {
		preview = append(preview, part[:min(previewBytes, len(part))]...)
	}

	buf := scratch.buf[:0]
	total := 0
	if len(part) > maxBytes {
		tooLong = true
	} else {
		buf = append(buf, part...)
		total = len(part)
	}

	for isPrefix {
		part, isPrefix, err = r.ReadLine()
		if err != nil {
			return nil, tooLong, err
		}

		if previewBytes > 0 && len(preview) < previewBytes {
			preview = append(preview, part[:min(previewBytes-len(preview), len(part))]...)
		}

		if !tooLong {
			if total+len(part) > maxBytes {
				tooLong = true
				continue
			}
			buf = append(buf, part...)
			total += len(part)
		}
	}

	if tooLong {
		scratch.preview = preview
		scratch.buf = buf
		return preview, true, nil
	}
	scratch.preview = preview
	scratch.buf = buf
	return buf, false, nil
}

func TruncateBytes(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	if maxLen < 0 {
		return ""
	}
	return string(b[:maxLen]) + "..."
}

// TruncateString shortens s to maxLen bytes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:max(maxLen, 0)]
	}
	return s[:maxLen-3] + "..."
}
