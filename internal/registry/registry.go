// Package registry owns the shared script records and their cancellation
// handles. It is the only place the underlying containers live; every other
// component mutates state through its methods, which are safe under
// concurrent use from the coordinator, the engine's workers and the sweeper.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MaksGolikov/ScriptRunner/pkg/script"
)

// Handle is the cancellation handle for one in-flight evaluation.
// The engine attaches one per executing script; the coordinator uses it to
// request cooperative interruption.
type Handle interface {
	// Cancel requests interruption. Reports whether the request was
	// accepted (false when the evaluation already finished).
	Cancel() bool

	// Done reports whether the evaluation has finished.
	Done() bool
}

// Registry is the thread-safe store of script records and handles with
// monotonic id assignment. Ids strictly increase and are never reused, even
// across deletions.
type Registry struct {
	scripts sync.Map // int64 -> *script.Script
	handles sync.Map // int64 -> Handle
	counter atomic.Int64

	// sweepMu keeps cleanup runs from overlapping.
	sweepMu sync.Mutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Create allocates the next id and stores a new QUEUED record.
func (r *Registry) Create(body string) *script.Script {
	id := r.counter.Add(1)
	s := script.New(id, body)
	r.scripts.Store(id, s)
	return s
}

// Get returns the live record for id. The returned pointer is a mutable
// view: callers observe in-place updates made by the engine.
func (r *Registry) Get(id int64) (*script.Script, error) {
	if id <= 0 {
		return nil, fmt.Errorf("script id %d: %w", id, script.ErrInvalidArgument)
	}
	v, ok := r.scripts.Load(id)
	if !ok {
		return nil, fmt.Errorf("script %d: %w", id, script.ErrNotFound)
	}
	return v.(*script.Script), nil
}

// Remove deletes the record unconditionally. Callers check the record's
// status first; the registry itself does not police lifecycle rules.
func (r *Registry) Remove(id int64) {
	r.scripts.Delete(id)
}

// AttachHandle associates a cancellation handle with an executing script.
func (r *Registry) AttachHandle(id int64, h Handle) {
	r.handles.Store(id, h)
}

// HandleFor returns the cancellation handle for id, if one is attached.
func (r *Registry) HandleFor(id int64) (Handle, bool) {
	v, ok := r.handles.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Handle), true
}

// RemoveHandle detaches the cancellation handle for id.
func (r *Registry) RemoveHandle(id int64) {
	r.handles.Delete(id)
}

// Snapshot returns the current set of records. Concurrent mutation during
// the walk is safe; the result is a best-effort point-in-time view.
func (r *Registry) Snapshot() []*script.Script {
	var out []*script.Script
	r.scripts.Range(func(_, v any) bool {
		out = append(out, v.(*script.Script))
		return true
	})
	return out
}

// Len returns the number of non-evicted records.
func (r *Registry) Len() int {
	n := 0
	r.scripts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// EvictTerminal removes every record in a terminal state, then removes
// every cancellation handle whose script no longer exists. QUEUED and
// EXECUTING records are never touched. Runs are serialized: a second call
// blocks until the first finishes.
func (r *Registry) EvictTerminal() int {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	evicted := 0
	r.scripts.Range(func(k, v any) bool {
		if v.(*script.Script).Status().Terminal() {
			r.scripts.Delete(k)
			evicted++
		}
		return true
	})

	r.handles.Range(func(k, _ any) bool {
		if _, ok := r.scripts.Load(k); !ok {
			r.handles.Delete(k)
		}
		return true
	})

	return evicted
}
