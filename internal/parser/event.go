package parser

import "time"

// TestEvent is one line of `go test -json` (test2json) output.
type TestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package,omitempty"`
	Test    string    `json:"Test,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
	Output  string    `json:"Output,omitempty"`
}

// Test2json actions that end a test or package.
const (
	ActionPass = "pass"
	ActionFail = "fail"
	ActionSkip = "skip"
)

// FailedTest names a failed test and the first assertion message found in
// its output.
type FailedTest struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// Tally is the set of counts parsed from one engine's output.
type Tally struct {
	Passed      int
	Failed      int
	Skipped     int
	Elapsed     time.Duration
	FailedTests []FailedTest
	// PackageFailures lists packages reported as failed without any failing
	// test, e.g. build errors.
	PackageFailures []string
	// Parsed is false when no counts could be recognised.
	Parsed bool
}

// Total returns Passed+Failed+Skipped.
func (t Tally) Total() int { return t.Passed + t.Failed + t.Skipped }
