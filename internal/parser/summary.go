package parser

import (
	"regexp"
	"strconv"
)

var (
	summaryPassedRegex  = regexp.MustCompile(`(\d+) passed`)
	summaryFailedRegex  = regexp.MustCompile(`(\d+) failed`)
	summaryErrorsRegex  = regexp.MustCompile(`(\d+) errors?\b`)
	summarySkippedRegex = regexp.MustCompile(`(\d+) skipped`)

	// Pester 5: "Tests Passed: 3, Failed: 1, Skipped: 0 NotRun: 0"
	pesterRegex = regexp.MustCompile(`Passed:\s*(\d+),?\s*Failed:\s*(\d+)(?:,?\s*Skipped:\s*(\d+))?`)
)

// ParseSummary extracts counts from the final summary line of a test run,
// e.g. pytest's "45 passed, 2 failed, 1 skipped in 0.12s" or Pester's
// "Tests Passed: 3, Failed: 1, Skipped: 0". When a summary appears more
// than once the last one wins. pytest collection errors count as failures.
func ParseSummary(output string) Tally {
	var t Tally
	if m := lastMatch(pesterRegex, output); m != nil {
		t.Passed = atoi(m[1])
		t.Failed = atoi(m[2])
		t.Skipped = atoi(m[3])
		t.Parsed = true
		return t
	}

	if m := lastMatch(summaryPassedRegex, output); m != nil {
		t.Passed = atoi(m[1])
		t.Parsed = true
	}
	if m := lastMatch(summaryFailedRegex, output); m != nil {
		t.Failed = atoi(m[1])
		t.Parsed = true
	}
	if m := lastMatch(summaryErrorsRegex, output); m != nil {
		t.Failed += atoi(m[1])
		t.Parsed = true
	}
	if m := lastMatch(summarySkippedRegex, output); m != nil {
		t.Skipped = atoi(m[1])
		t.Parsed = true
	}
	return t
}

func lastMatch(re *regexp.Regexp, s string) []string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
