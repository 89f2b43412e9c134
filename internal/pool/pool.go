// Package pool runs a function over a slice of inputs with a bounded number
// of concurrent workers and an overall deadline.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"labrunner/internal/logger"
	"labrunner/internal/metrics"

	"github.com/shirou/gopsutil/v3/cpu"
)

var (
	// ErrInvalidConcurrency is returned for a non-positive worker bound.
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")
	// ErrTimeout is returned when the deadline elapses before every worker
	// has returned.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrWorkerPanic wraps a panic recovered from a worker.
	ErrWorkerPanic = errors.New("worker panicked")
)

// Worker processes one input. Its error is recorded on the item and never
// stops sibling workers.
type Worker[I, R any] func(ctx context.Context, item I) (R, error)

// Options bounds a Run.
type Options struct {
	// Name labels log entries.
	Name string
	// MaxConcurrency caps simultaneously active workers; must be > 0.
	MaxConcurrency int
	// Timeout bounds the whole run; zero means no deadline.
	Timeout time.Duration
	Log     logger.Sink
}

// Item is the result for items[Index].
type Item[R any] struct {
	Index int
	Value R
	Err   error
	// Done is false when the worker had not returned by the deadline.
	Done bool
}

// DefaultConcurrency is the number of logical processing units.
func DefaultConcurrency() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Run applies worker to every item with at most opts.MaxConcurrency workers
// active at once and returns one Item per input, indexed like items.
//
// When opts.Timeout elapses first, Run returns the items finished so far
// (unfinished ones carry ErrTimeout) together with an error wrapping
// ErrTimeout. Workers still running are not interrupted; no further items are
// started.
func Run[I, R any](ctx context.Context, items []I, worker Worker[I, R], opts Options) ([]Item[R], error) {
	if opts.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, opts.MaxConcurrency)
	}
	if worker == nil {
		return nil, errors.New("worker is nil")
	}
	if len(items) == 0 {
		return []Item[R]{}, nil
	}

	log := logger.OrNop(opts.Log)
	name := opts.Name
	if name == "" {
		name = "pool"
	}
	start := time.Now()
	log.Log(logger.LevelInfo, fmt.Sprintf("Starting %s: %d items, max %d concurrent", name, len(items), opts.MaxConcurrency))

	var (
		mu      sync.Mutex
		results = make([]Item[R], len(items))
		sem     = make(chan struct{}, opts.MaxConcurrency)
		stop    = make(chan struct{})
		done    = make(chan struct{})
		wg      sync.WaitGroup
	)
	for i := range results {
		results[i].Index = i
	}

	go func() {
		defer close(done)
	dispatch:
		for i := range items {
			select {
			case <-stop:
				break dispatch
			default:
			}
			select {
			case sem <- struct{}{}:
			case <-stop:
				break dispatch
			}
			// A slot freed by a late worker can win the race against stop.
			select {
			case <-stop:
				<-sem
				break dispatch
			default:
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				metrics.PoolWorkersActive.Inc()
				value, err := callWorker(ctx, worker, items[i])
				metrics.PoolWorkersActive.Dec()

				mu.Lock()
				results[i].Value = value
				results[i].Err = err
				results[i].Done = true
				mu.Unlock()
			}(i)
		}
		wg.Wait()
	}()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var runErr error
	select {
	case <-done:
	case <-timeout:
		runErr = fmt.Errorf("%s: %w after %s", name, ErrTimeout, opts.Timeout)
	case <-ctx.Done():
		runErr = fmt.Errorf("%s: %w", name, ctx.Err())
	}
	close(stop)

	mu.Lock()
	out := make([]Item[R], len(results))
	copy(out, results)
	mu.Unlock()

	elapsed := time.Since(start)
	metrics.PoolRunSeconds.Observe(elapsed.Seconds())

	failed := 0
	for i := range out {
		if !out[i].Done {
			out[i].Err = ErrTimeout
		}
		if out[i].Err != nil {
			failed++
		}
	}

	switch {
	case runErr == nil:
		metrics.PoolRuns.WithLabelValues(metrics.ResultOK).Inc()
		log.Log(logger.LevelSuccess, fmt.Sprintf("%s completed %d items in %s (%d with errors)", name, len(out), elapsed.Round(time.Millisecond), failed))
	case errors.Is(runErr, ErrTimeout):
		metrics.PoolRuns.WithLabelValues(metrics.ResultTimeout).Inc()
		log.Log(logger.LevelError, runErr.Error())
	default:
		metrics.PoolRuns.WithLabelValues(metrics.ResultCanceled).Inc()
		log.Log(logger.LevelWarn, runErr.Error())
	}
	return out, runErr
}

func callWorker[I, R any](ctx context.Context, worker Worker[I, R], item I) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return worker(ctx, item)
}
