// Package runloop provides the serial execution context owned by one account.
//
// Every drain pass, gate transition and event-application step runs as a task
// on a Loop. Tasks execute one at a time, in the order they were posted, on
// whichever goroutine drives the loop (Run or RunPending). This is what makes
// the scheduler single-threaded cooperative: nothing that touches gate state
// or the local store ever runs concurrently with anything else that does.
//
// Thread-safety model:
//   - Post(): safe from any goroutine (transport callbacks use it)
//   - Run() / RunPending(): must be driven by exactly one goroutine at a time
package runloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Task is a unit of work executed on the loop.
type Task func(ctx context.Context)

// ErrStopped is returned by Do when the loop stops before the task runs.
var ErrStopped = errors.New("runloop: stopped")

// Loop is a FIFO task queue drained by a single goroutine.
//
// The queue is unbounded so transport callbacks never block. Availability is
// signalled through a channel with a buffer of one, which coalesces bursts of
// posts into a single wake-up of the driving goroutine.
type Loop struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{}
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{
		tasks:  make([]Task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Post appends a task to the back of the queue.
// Returns false if the loop has been stopped.
func (l *Loop) Post(t Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, t)

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// tryNext pops the front task without blocking.
func (l *Loop) tryNext() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false
	}
	t := l.tasks[0]
	// Nil the slot so the closure and anything it captured can be collected.
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return t, true
}

// Run executes tasks until ctx is cancelled or Stop is called.
// Must be called from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) error {
	slog.Debug("runloop starting")
	for {
		if t, ok := l.tryNext(); ok {
			t(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("runloop stopping: context cancelled")
			l.Stop()
			return ctx.Err()
		case _, open := <-l.signal:
			if !open && l.Len() == 0 {
				slog.Debug("runloop stopping: stopped")
				return nil
			}
		}
	}
}

// RunPending executes queued tasks, including tasks they post, until the
// queue is empty or ctx is done. Returns the number of tasks executed.
//
// Used by hosts that drive the loop synchronously and by tests that need a
// deterministic schedule. Must not be called while Run is active.
func (l *Loop) RunPending(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		t, ok := l.tryNext()
		if !ok {
			return n
		}
		t(ctx)
		n++
	}
	return n
}

// Do posts fn and waits until it has run on the loop.
// Requires another goroutine to be driving the loop.
func (l *Loop) Do(ctx context.Context, fn Task) error {
	done := make(chan struct{})
	if !l.Post(func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Stop rejects further posts and wakes a blocked Run.
// Tasks already queued are still executed by Run before it returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.signal)
}
