// Package pool provides the bounded worker pool that executes sandbox
// evaluations. Capacity is enforced with a semaphore: submissions beyond it
// queue for a free slot, which is the backpressure the coordinator relies
// on. Each submission yields a Task, the cancellable handle the registry
// stores for cooperative interruption.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Pool is a fixed-capacity worker pool.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a pool with the given number of concurrent slots.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		sem: make(chan struct{}, capacity),
	}
}

// Submit schedules fn and returns its handle. fn runs once a slot frees up;
// its context is cancelled when the task is cancelled, so fn is expected to
// honor ctx. A task cancelled while still queued never runs.
func (p *Pool) Submit(fn func(ctx context.Context) error) (*Task, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	t := newTask()

	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-t.ctx.Done():
			t.finish(t.ctx.Err())
			return
		}
		defer func() { <-p.sem }()

		t.run(fn)
	}()

	return t, nil
}

// Cap returns the pool capacity.
func (p *Pool) Cap() int {
	return cap(p.sem)
}

// InFlight returns how many tasks currently hold a slot.
func (p *Pool) InFlight() int {
	return len(p.sem)
}

// Close stops accepting submissions and waits for queued and running tasks
// to finish. Callers wanting a fast shutdown cancel the tasks first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

// Task is the handle for one submitted evaluation.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
	finished  bool
	err       error
}

func newTask() *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (t *Task) run(fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			t.finish(fmt.Errorf("panic during evaluation: %v", r))
		}
	}()
	t.finish(fn(t.ctx))
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// Cancel requests cooperative interruption. It reports false when the task
// already finished, in which case the request is a no-op.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	t.mu.Unlock()

	t.cancel()
	return true
}

// Cancelled reports whether interruption was requested before completion.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done reports whether the task has finished (normally, with an error, or
// through cancellation).
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finishes.
func (t *Task) Wait() {
	<-t.done
}

// WaitContext blocks until the task finishes or ctx is done. A ctx error
// does not cancel the task; it keeps running.
func (t *Task) WaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the function's result after completion; nil while running.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished {
		return nil
	}
	return t.err
}
