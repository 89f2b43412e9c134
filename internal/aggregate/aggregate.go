// Package aggregate folds per-file and per-job results into one Summary.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"labrunner/internal/jobs"
	"labrunner/internal/logger"
)

// Counts are the test totals reported by one file or job.
type Counts struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Total returns Passed+Failed+Skipped.
func (c Counts) Total() int { return c.Passed + c.Failed + c.Skipped }

func (c Counts) valid() bool {
	return c.Passed >= 0 && c.Failed >= 0 && c.Skipped >= 0 && c.Duration >= 0
}

// Record is one input to Merge.
type Record interface {
	// Source names the file or job the record came from.
	Source() string
	// Counts returns the nested test result; ok is false when it is absent.
	Counts() (c Counts, ok bool)
	// FailureMessage describes why the record failed, if known.
	FailureMessage() string
}

// Failure is one failed file or job in a Summary.
type Failure struct {
	Source  string `json:"source"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

// Summary is the result of one Merge call. TotalTests always equals
// Passed+Failed+Skipped and Success is Failed == 0.
type Summary struct {
	RunID         string        `json:"runId,omitempty"`
	TotalTests    int           `json:"totalTests"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	TotalDuration time.Duration `json:"totalDuration"`
	Failures      []Failure     `json:"failures"`
	Success       bool          `json:"success"`
}

// Merge sums the counts of every record. Records without counts, or with
// negative ones, contribute zero and are reported as warnings on log.
func Merge(log logger.Sink, records ...Record) Summary {
	log = logger.OrNop(log)
	s := Summary{Failures: []Failure{}}
	for _, r := range records {
		if r == nil {
			log.Log(logger.LevelWarn, "Skipping nil result during merge")
			continue
		}
		c, ok := r.Counts()
		if !ok {
			log.Log(logger.LevelWarn, fmt.Sprintf("No test counts for %s; counting as zero", r.Source()))
			continue
		}
		if !c.valid() {
			log.Log(logger.LevelWarn, fmt.Sprintf("Malformed test counts for %s (%+v); counting as zero", r.Source(), c))
			continue
		}
		s.Passed += c.Passed
		s.Failed += c.Failed
		s.Skipped += c.Skipped
		s.TotalDuration += c.Duration
		if c.Failed > 0 {
			s.Failures = append(s.Failures, Failure{
				Source:  r.Source(),
				Failed:  c.Failed,
				Message: r.FailureMessage(),
			})
		}
	}
	s.TotalTests = s.Passed + s.Failed + s.Skipped
	s.Success = s.Failed == 0
	return s
}

// Counter is implemented by job results that carry test counts.
type Counter interface {
	TestCounts() (Counts, bool)
}

type jobRecord struct {
	out jobs.Outcome
}

// FromJob adapts a job outcome to a Record. Counts are taken from the
// outcome's result when it is a Counts value or implements Counter. A
// completed job without counts is reported as absent; any other terminal
// state counts as at least one failure.
func FromJob(out jobs.Outcome) Record {
	return jobRecord{out: out}
}

// FromJobs adapts every outcome with FromJob.
func FromJobs(outs []jobs.Outcome) []Record {
	recs := make([]Record, 0, len(outs))
	for _, o := range outs {
		recs = append(recs, FromJob(o))
	}
	return recs
}

func (j jobRecord) Source() string {
	if j.out.Name == "" {
		return fmt.Sprintf("job %d", j.out.ID)
	}
	return j.out.Name
}

// Counts reports at least one failure for a job that did not complete, so
// jobs that failed to run, were stopped or timed out never read as passing.
func (j jobRecord) Counts() (Counts, bool) {
	c, ok := j.resultCounts()
	if j.out.State != jobs.StateCompleted && c.Failed == 0 {
		c.Failed = 1
		ok = true
	}
	return c, ok
}

func (j jobRecord) resultCounts() (Counts, bool) {
	switch v := j.out.Result.(type) {
	case Counts:
		return v, true
	case *Counts:
		if v != nil {
			return *v, true
		}
	case Counter:
		return v.TestCounts()
	}
	return Counts{}, false
}

func (j jobRecord) FailureMessage() string {
	if f, ok := j.out.Result.(interface{ FailureMessage() string }); ok {
		if msg := f.FailureMessage(); msg != "" {
			return msg
		}
	}
	if msgs := j.out.ErrorMessages(); len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}
	if j.out.State != jobs.StateCompleted {
		return "job " + j.out.State.String()
	}
	return ""
}
