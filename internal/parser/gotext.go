package parser

import (
	"regexp"
	"strings"
)

var (
	goPassRegex = regexp.MustCompile(`(?m)^---\s+PASS:\s+`)
	goFailRegex = regexp.MustCompile(`(?m)^---\s+FAIL:\s+(\S+)`)
	goSkipRegex = regexp.MustCompile(`(?m)^---\s+SKIP:\s+`)
)

// ParseGoText counts top-level `--- PASS/FAIL/SKIP` lines of verbose
// `go test -v` output.
func ParseGoText(output string) Tally {
	var t Tally
	t.Passed = len(goPassRegex.FindAllString(output, -1))
	t.Skipped = len(goSkipRegex.FindAllString(output, -1))
	for _, m := range goFailRegex.FindAllStringSubmatch(output, -1) {
		t.Failed++
		t.FailedTests = append(t.FailedTests, FailedTest{Name: m[1]})
	}
	t.Parsed = t.Total() > 0
	return t
}

// ParseAny recognises test2json events, verbose go test output and summary
// lines, in that order.
func ParseAny(output string, warnFn func(string)) Tally {
	if looksLikeTest2JSON(output) {
		if t := ParseGoTestJSON(strings.NewReader(output), warnFn); t.Parsed {
			return t
		}
	}
	if t := ParseGoText(output); t.Parsed {
		return t
	}
	return ParseSummary(output)
}

func looksLikeTest2JSON(output string) bool {
	for _, line := range strings.SplitN(output, "\n", 20) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") && strings.Contains(line, `"Action"`) {
			return true
		}
	}
	return false
}
