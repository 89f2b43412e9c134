// Package jobs launches named background jobs, tracks their state and waits
// on sets of them with a deadline.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"labrunner/internal/logger"
	"labrunner/internal/metrics"
)

var (
	// ErrStartFailure is returned when a job cannot be launched. The
	// registry is left unchanged.
	ErrStartFailure = errors.New("job start failure")
	// ErrUnknownHandle is returned for handles the registry does not track.
	ErrUnknownHandle = errors.New("unknown job handle")
	// ErrJobPanic wraps a panic recovered from a job.
	ErrJobPanic = errors.New("job panicked")
)

// Work is the body of a job. args are the values passed to Start.
type Work func(ctx context.Context, args ...any) (any, error)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Log logger.Sink
	// MaxActive caps non-terminal jobs; zero means unlimited.
	MaxActive int
}

// Registry is the set of tracked job handles. It is safe for concurrent use.
type Registry struct {
	log       logger.Sink
	maxActive int

	mu      sync.Mutex
	nextID  int64
	handles map[int64]*Handle
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		log:       logger.OrNop(opts.Log),
		maxActive: opts.MaxActive,
		handles:   make(map[int64]*Handle),
	}
}

// Start launches work(ctx, args...) in its own goroutine and returns its
// handle immediately, in state Pending or Running. Names need not be unique;
// ids are never reused.
func (r *Registry) Start(ctx context.Context, name string, work Work, args ...any) (*Handle, error) {
	if err := r.admit(work); err != nil {
		r.log.Log(logger.LevelError, fmt.Sprintf("Failed to start job %q: %v", name, err))
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		err := fmt.Errorf("%w: registry closed", ErrStartFailure)
		r.log.Log(logger.LevelError, fmt.Sprintf("Failed to start job %q: %v", name, err))
		return nil, err
	}
	if r.maxActive > 0 && r.activeLocked() >= r.maxActive {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %d jobs already active", ErrStartFailure, r.maxActive)
		r.log.Log(logger.LevelError, fmt.Sprintf("Failed to start job %q: %v", name, err))
		return nil, err
	}
	r.nextID++
	jobCtx, cancel := context.WithCancel(ctx)
	h := newHandle(r.nextID, name, cancel)
	r.handles[h.id] = h
	r.mu.Unlock()

	metrics.JobsStarted.Inc()
	r.log.Log(logger.LevelInfo, fmt.Sprintf("Started job %d (%s)", h.id, name))

	go func() {
		defer cancel()
		if !h.markRunning() {
			return
		}
		result, err := runWork(jobCtx, work, args)
		h.finish(result, err)
	}()
	return h, nil
}

func (r *Registry) admit(work Work) error {
	if work == nil {
		return fmt.Errorf("%w: work is nil", ErrStartFailure)
	}
	return nil
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, h := range r.handles {
		if !h.State().Terminal() {
			n++
		}
	}
	return n
}

func runWork(ctx context.Context, work Work, args []any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrJobPanic, rec)
		}
	}()
	return work(ctx, args...)
}

// Get returns the tracked handle with the given id.
func (r *Registry) Get(id int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Handles returns the tracked handles ordered by id.
func (r *Registry) Handles() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of tracked handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stop cancels the job's context and forces it into Stopped. Stopping a
// terminal job is a no-op.
func (r *Registry) Stop(id int64) error {
	h, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, id)
	}
	if h.stop() {
		r.log.Log(logger.LevelWarn, fmt.Sprintf("Stopped job %d (%s)", h.id, h.name))
	}
	return nil
}

// Collect returns h's outcome the first time it is called after h reached a
// terminal state. Later calls, and calls on non-terminal handles, return
// false.
func (r *Registry) Collect(h *Handle) (Outcome, bool) {
	if h == nil {
		return Outcome{}, false
	}
	out, ok := h.collect()
	if ok {
		metrics.JobsFinished.WithLabelValues(out.State.String()).Inc()
	}
	return out, ok
}

func (r *Registry) collectTimedOut(h *Handle) (Outcome, bool) {
	out, ok := h.forceTimeout()
	if ok {
		metrics.JobsFinished.WithLabelValues(out.State.String()).Inc()
	}
	return out, ok
}

// Release stops tracking h. A job still running continues untracked.
func (r *Registry) Release(h *Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil", ErrUnknownHandle)
	}
	r.mu.Lock()
	_, ok := r.handles[h.id]
	delete(r.handles, h.id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h.id)
	}
	h.release()
	return nil
}

// Close rejects further Start calls.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
