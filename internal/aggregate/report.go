package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"labrunner/internal/utils"
)

const maxFailureMessageLen = 300

func status(s Summary) string {
	if s.Success {
		return "PASSED"
	}
	return "FAILED"
}

// Text renders the summary as a plain report.
func Text(s Summary) string {
	var sb strings.Builder
	if s.RunID != "" {
		fmt.Fprintf(&sb, "Run %s\n", s.RunID)
	}
	fmt.Fprintf(&sb, "Result: %s\n", status(s))
	fmt.Fprintf(&sb, "Tests:  %d total, %d passed, %d failed, %d skipped\n", s.TotalTests, s.Passed, s.Failed, s.Skipped)
	fmt.Fprintf(&sb, "Time:   %s\n", s.TotalDuration.Round(time.Millisecond))
	if len(s.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&sb, "  %s (%d failed)", f.Source, f.Failed)
			if msg := utils.OneLine(f.Message, maxFailureMessageLen); msg != "" {
				fmt.Fprintf(&sb, ": %s", msg)
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Markdown renders the summary as a markdown section with one bullet per
// failure.
func Markdown(s Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Test summary: %s\n\n", status(s))
	if s.RunID != "" {
		fmt.Fprintf(&sb, "Run `%s`\n\n", s.RunID)
	}
	sb.WriteString("| Total | Passed | Failed | Skipped | Duration |\n")
	sb.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %s |\n", s.TotalTests, s.Passed, s.Failed, s.Skipped, s.TotalDuration.Round(time.Millisecond))
	if len(s.Failures) == 0 {
		return sb.String()
	}
	sb.WriteString("\n### Failures\n\n")
	for _, f := range s.Failures {
		msg := utils.OneLine(f.Message, maxFailureMessageLen)
		if msg == "" {
			msg = fmt.Sprintf("%d failed", f.Failed)
		}
		fmt.Fprintf(&sb, "- **%s**: %s\n", f.Source, msg)
	}
	return sb.String()
}

type jsonSummary struct {
	RunID         string    `json:"runId,omitempty"`
	Success       bool      `json:"success"`
	TotalTests    int       `json:"totalTests"`
	Passed        int       `json:"passed"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	TotalDuration string    `json:"totalDuration"`
	DurationMS    int64     `json:"durationMs"`
	Failures      []Failure `json:"failures"`
}

// JSON renders the summary as indented JSON with a human readable duration.
func JSON(s Summary) ([]byte, error) {
	if s.Failures == nil {
		s.Failures = []Failure{}
	}
	return json.MarshalIndent(jsonSummary{
		RunID:         s.RunID,
		Success:       s.Success,
		TotalTests:    s.TotalTests,
		Passed:        s.Passed,
		Failed:        s.Failed,
		Skipped:       s.Skipped,
		Failures:      s.Failures,
		TotalDuration: s.TotalDuration.String(),
		DurationMS:    s.TotalDuration.Milliseconds(),
	}, "", "  ")
}
