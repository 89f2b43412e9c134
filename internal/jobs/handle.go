package jobs

import (
	"context"
	"sync"
	"time"
)

// Handle tracks one asynchronously started job. All fields are guarded by mu;
// readers go through the accessor methods.
type Handle struct {
	id   int64
	name string

	mu         sync.Mutex
	state      State
	result     any
	errs       []error
	collected  bool
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc

	// done is closed on the first transition into a terminal state.
	done chan struct{}
}

func newHandle(id int64, name string, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:     id,
		name:   name,
		state:  StatePending,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (h *Handle) ID() int64    { return h.id }
func (h *Handle) Name() string { return h.name }

// State returns the current state. Once a terminal state is observed it
// never changes.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed when the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// transitionLocked moves the handle to `to` when allowed. Caller holds mu.
func (h *Handle) transitionLocked(to State) bool {
	if !ValidTransition(h.state, to) {
		return false
	}
	h.state = to
	now := time.Now()
	switch {
	case to == StateRunning:
		h.startedAt = now
	case to.Terminal():
		h.finishedAt = now
		close(h.done)
	}
	return true
}

func (h *Handle) markRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transitionLocked(StateRunning)
}

// finish records the work's return. It is a no-op when the handle was
// already forced into Stopped or Timeout.
func (h *Handle) finish(result any, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	to := StateCompleted
	if err != nil {
		to = StateFailed
	}
	if !h.transitionLocked(to) {
		return false
	}
	h.result = result
	if err != nil {
		h.errs = append(h.errs, err)
	}
	return true
}

func (h *Handle) stop() bool {
	h.mu.Lock()
	ok := h.transitionLocked(StateStopped)
	cancel := h.cancel
	h.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
	return ok
}

func (h *Handle) snapshotLocked() Outcome {
	out := Outcome{
		ID:         h.id,
		Name:       h.name,
		State:      h.state,
		Result:     h.result,
		HasErrors:  len(h.errs) > 0,
		StartedAt:  h.startedAt,
		FinishedAt: h.finishedAt,
	}
	if len(h.errs) > 0 {
		out.Errors = append([]error(nil), h.errs...)
	}
	return out
}

// collect returns the outcome the first time it is called on a terminal
// handle and false otherwise.
func (h *Handle) collect() (Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.collected || !h.state.Terminal() {
		return Outcome{}, false
	}
	h.collected = true
	return h.snapshotLocked(), true
}

// forceTimeout moves a non-terminal handle to Timeout and collects it. A
// handle that finished in the meantime is collected as is. The underlying
// work is not interrupted.
func (h *Handle) forceTimeout() (Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.collected {
		return Outcome{}, false
	}
	if !h.state.Terminal() {
		h.transitionLocked(StateTimeout)
	}
	h.collected = true
	return h.snapshotLocked(), true
}

func (h *Handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = nil
}
