package jobs

import "time"

// Outcome is the immutable snapshot of a job taken exactly once when it is
// collected.
type Outcome struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	State      State     `json:"state"`
	Result     any       `json:"result,omitempty"`
	HasErrors  bool      `json:"has_errors"`
	Errors     []error   `json:"-"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ErrorMessages returns the error texts in order.
func (o Outcome) ErrorMessages() []string {
	if len(o.Errors) == 0 {
		return nil
	}
	out := make([]string, len(o.Errors))
	for i, err := range o.Errors {
		out[i] = err.Error()
	}
	return out
}

// Duration is the observed run time, zero when the job never started or
// was not observed finishing.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() || o.FinishedAt.Before(o.StartedAt) {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}
