package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labrunner/internal/logger"
)

const defaultPollInterval = time.Second

// WaiterOptions configures a Waiter.
type WaiterOptions struct {
	Log logger.Sink
	// PollInterval is the progress reporting period. Defaults to one second.
	PollInterval time.Duration
	// OnProgress, when set, is called with the collected and total counts
	// after every poll while progress is enabled.
	OnProgress func(done, total int)
}

// Waiter drains job handles into outcomes.
type Waiter struct {
	log        logger.Sink
	interval   time.Duration
	onProgress func(done, total int)
}

// NewWaiter returns a Waiter.
func NewWaiter(opts WaiterOptions) *Waiter {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Waiter{
		log:        logger.OrNop(opts.Log),
		interval:   interval,
		onProgress: opts.OnProgress,
	}
}

// WaitAll blocks until every handle reaches a terminal state, the deadline
// elapses, or ctx is done, and returns one outcome per distinct handle in
// completion order. Handles still running at the deadline are reported in
// state Timeout with no result; their work is not interrupted. A handle whose
// outcome was already taken with reg.Collect yields nothing here and is only
// noted at debug level. Every handle is released from reg before returning.
// A non-positive deadline waits without limit.
func (w *Waiter) WaitAll(ctx context.Context, reg *Registry, handles []*Handle, deadline time.Duration, showProgress bool) []Outcome {
	pending := make(map[int64]*Handle, len(handles))
	order := make([]*Handle, 0, len(handles))
	for _, h := range handles {
		if h == nil {
			continue
		}
		if _, dup := pending[h.id]; dup {
			continue
		}
		pending[h.id] = h
		order = append(order, h)
	}
	if len(order) == 0 {
		return []Outcome{}
	}
	if reg == nil {
		reg = NewRegistry(RegistryOptions{Log: w.log})
	}

	total := len(order)
	outcomes := make([]Outcome, 0, total)

	stop := make(chan struct{})
	finished := make(chan *Handle, total)
	for _, h := range order {
		go func(h *Handle) {
			select {
			case <-h.Done():
				finished <- h
			case <-stop:
			}
		}(h)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		expired = timer.C
	}

	collect := func(h *Handle) {
		delete(pending, h.id)
		out, ok := reg.Collect(h)
		if !ok {
			w.logCollected(h)
			return
		}
		outcomes = append(outcomes, out)
		w.logOutcome(out)
	}

wait:
	for len(pending) > 0 {
		select {
		case h := <-finished:
			collect(h)
		case <-ticker.C:
			for _, h := range pending {
				if h.State().Terminal() {
					collect(h)
				}
			}
			if showProgress {
				w.reportProgress(total-len(pending), total)
			}
		case <-expired:
			w.log.Log(logger.LevelWarn, fmt.Sprintf("Wait deadline of %s reached with %d of %d jobs unfinished", deadline, len(pending), total))
			break wait
		case <-ctx.Done():
			w.log.Log(logger.LevelWarn, fmt.Sprintf("Wait canceled with %d of %d jobs unfinished: %v", len(pending), total, ctx.Err()))
			break wait
		}
	}
	close(stop)

	for _, h := range order {
		if _, open := pending[h.id]; !open {
			continue
		}
		out, ok := reg.collectTimedOut(h)
		if !ok {
			w.logCollected(h)
			continue
		}
		outcomes = append(outcomes, out)
		w.logOutcome(out)
	}

	if showProgress {
		w.reportProgress(total, total)
	}

	for _, h := range order {
		if err := reg.Release(h); err != nil {
			w.log.Log(logger.LevelDebug, fmt.Sprintf("Release job %d: %v", h.id, err))
		}
	}
	return outcomes
}

func (w *Waiter) reportProgress(done, total int) {
	pct := 100.0
	if total > 0 {
		pct = float64(done) * 100 / float64(total)
	}
	w.log.Log(logger.LevelInfo, fmt.Sprintf("Progress: %d/%d jobs (%.0f%%)", done, total, pct))
	if w.onProgress != nil {
		w.onProgress(done, total)
	}
}

func (w *Waiter) logCollected(h *Handle) {
	w.log.Log(logger.LevelDebug, fmt.Sprintf("Job %d (%s) already collected; skipping", h.id, h.name))
}

func (w *Waiter) logOutcome(out Outcome) {
	switch out.State {
	case StateCompleted:
		w.log.Log(logger.LevelSuccess, fmt.Sprintf("Job %d (%s) completed in %s", out.ID, out.Name, out.Duration().Round(time.Millisecond)))
	case StateFailed:
		w.log.Log(logger.LevelError, fmt.Sprintf("Job %d (%s) failed: %s", out.ID, out.Name, strings.Join(out.ErrorMessages(), "; ")))
	case StateStopped:
		w.log.Log(logger.LevelWarn, fmt.Sprintf("Job %d (%s) was stopped", out.ID, out.Name))
	case StateTimeout:
		w.log.Log(logger.LevelWarn, fmt.Sprintf("Job %d (%s) timed out", out.ID, out.Name))
	}
}
