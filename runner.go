// Package scriptrunner coordinates the execution lifecycle of submitted
// scripts. Each submission gets a tracked record that moves through
// QUEUED -> EXECUTING -> {COMPLETED, FAILED, STOPPED} while the script runs
// inside an isolated sandbox. Partial output is visible while execution is
// in flight, running scripts can be stopped cooperatively, and a background
// sweeper evicts settled records.
//
// Basic usage:
//
//	runner, err := scriptrunner.New(scriptrunner.WithProvider("docker"))
//	defer runner.Close()
//
//	// Blocking submission: returns once the script settles.
//	snap, err := runner.SubmitWait(ctx, `console.log("hi")`)
//
//	// Non-blocking submission: returns immediately, poll with Get.
//	snap, err = runner.Submit(ctx, longRunning)
//	snap, err = runner.Get(snap.ID)
package scriptrunner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MaksGolikov/ScriptRunner/internal/engine"
	"github.com/MaksGolikov/ScriptRunner/internal/pool"
	"github.com/MaksGolikov/ScriptRunner/internal/registry"
	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/event"
	"github.com/MaksGolikov/ScriptRunner/pkg/langdetect"
	"github.com/MaksGolikov/ScriptRunner/pkg/script"
)

// stoppedMessage is recorded on records stopped by an operator. The engine
// writes the same description on its own cancellation path; whichever lands
// first wins and the other is a no-op.
const stoppedMessage = "execution interrupted"

// Runner is the public entry point. All methods are safe for concurrent use.
type Runner struct {
	cfg      *Config
	registry *registry.Registry
	workers  *pool.Pool
	engine   *engine.Engine
	bus      *event.Bus
	provider sandbox.Provider

	stopSweeper chan struct{}
	sweeperDone chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a runner with the given options.
func New(opts ...Option) (*Runner, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	provider := cfg.SandboxProvider
	if provider == nil {
		p, err := sandbox.Get(cfg.Provider, cfg.ProviderConfig)
		if err != nil {
			return nil, NewError("new", 0, err)
		}
		provider = p
	}

	reg := registry.New()
	workers := pool.New(cfg.MaxWorkers)
	bus := event.NewBus()

	if cfg.EventHandler != nil {
		bus.SubscribeAll(cfg.EventHandler)
	}
	if cfg.Logger != nil {
		bus.SubscribeAll(logHandler(cfg.Logger))
	}

	r := &Runner{
		cfg:         cfg,
		registry:    reg,
		workers:     workers,
		bus:         bus,
		provider:    provider,
		stopSweeper: make(chan struct{}),
		sweeperDone: make(chan struct{}),
	}
	r.engine = engine.New(reg, workers, provider, bus, engine.Options{
		Base:           cfg.baseSpec(),
		MirrorInterval: cfg.MirrorInterval,
	})

	go r.sweep()
	return r, nil
}

// MustNew creates a runner or panics. Use for initialization where a broken
// provider setup is fatal.
func MustNew(opts ...Option) *Runner {
	r, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("scriptrunner: %v", err))
	}
	return r
}

// Submit registers the script and schedules it for execution without
// waiting. The returned snapshot is typically still QUEUED or newly
// EXECUTING; poll Get for progress.
func (r *Runner) Submit(ctx context.Context, body string, opts ...SubmitOption) (script.Snapshot, error) {
	sc, _, err := r.submit(ctx, body, opts...)
	if err != nil {
		return script.Snapshot{}, err
	}
	return sc.Snapshot(), nil
}

// SubmitWait registers the script and blocks until the record settles in a
// terminal state or ctx is cancelled. On ctx cancellation the script keeps
// running; the caller gets the current snapshot alongside the error.
func (r *Runner) SubmitWait(ctx context.Context, body string, opts ...SubmitOption) (script.Snapshot, error) {
	sc, task, err := r.submit(ctx, body, opts...)
	if err != nil {
		return script.Snapshot{}, err
	}
	if err := task.WaitContext(ctx); err != nil {
		return sc.Snapshot(), NewError("submit", sc.ID(), err)
	}
	return sc.Snapshot(), nil
}

func (r *Runner) submit(ctx context.Context, body string, opts ...SubmitOption) (*script.Script, *pool.Task, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil, NewError("submit", 0, fmt.Errorf("empty script body: %w", ErrInvalidArgument))
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, NewError("submit", 0, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, NewError("submit", 0, ErrClosed)
	}
	r.mu.Unlock()

	cfg := &submitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	sc := r.registry.Create(body)
	if cfg.language != "" {
		sc.SetLanguage(cfg.language)
	}
	r.bus.Emit(event.New(event.EventScriptQueued, sc.ID(), nil))

	task, err := r.engine.Dispatch(sc)
	if err != nil {
		sc.MarkFailed(err.Error())
		return nil, nil, NewError("submit", sc.ID(), err)
	}
	return sc, task, nil
}

// Get returns a point-in-time snapshot of the record. While the script is
// EXECUTING the snapshot carries the output observed so far.
func (r *Runner) Get(id int64) (script.Snapshot, error) {
	sc, err := r.registry.Get(id)
	if err != nil {
		return script.Snapshot{}, NewError("get", id, err)
	}
	return sc.Snapshot(), nil
}

// Order values accepted by ListOptions.OrderBy. Anything else leaves the
// result in registry iteration order.
const (
	OrderByID   = "id"   // ascending id
	OrderByTime = "time" // descending start time; never-started sorts last
)

// ListOptions narrows and orders a listing. The zero value lists everything
// unordered. An unrecognized Status is treated as "no filter", not an error.
type ListOptions struct {
	Status  string
	OrderBy string
}

// List returns snapshots of the current records.
func (r *Runner) List(opts ListOptions) []script.Snapshot {
	records := r.registry.Snapshot()

	if want, ok := script.ParseStatus(opts.Status); ok {
		kept := records[:0]
		for _, sc := range records {
			if sc.Status() == want {
				kept = append(kept, sc)
			}
		}
		records = kept
	}

	out := make([]script.Snapshot, 0, len(records))
	for _, sc := range records {
		out = append(out, sc.Snapshot())
	}

	switch opts.OrderBy {
	case OrderByID:
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	case OrderByTime:
		sort.Slice(out, func(i, j int) bool {
			return startOf(out[i]).After(startOf(out[j]))
		})
	}
	return out
}

func startOf(s script.Snapshot) time.Time {
	if s.StartTime == nil {
		return time.Time{}
	}
	return *s.StartTime
}

// Stop requests cooperative interruption of an EXECUTING script. When the
// cancellation is accepted the record is marked STOPPED immediately, ahead of
// the engine's own terminal transition; both paths converge. For any other
// status, or when the evaluation already finished and only the record has
// not settled yet, Stop is a no-op and returns the record unchanged.
func (r *Runner) Stop(id int64) (script.Snapshot, error) {
	sc, err := r.registry.Get(id)
	if err != nil {
		return script.Snapshot{}, NewError("stop", id, err)
	}
	if sc.Status() != script.StatusExecuting {
		return sc.Snapshot(), nil
	}

	// STOPPED is only written once the handle actually accepted the
	// cancellation; otherwise the engine settles the record on its own.
	h, ok := r.registry.HandleFor(id)
	if !ok || !h.Cancel() {
		return sc.Snapshot(), nil
	}
	sc.MarkStopped(stoppedMessage)
	r.bus.Emit(event.New(event.EventScriptStopped, id, nil))
	return sc.Snapshot(), nil
}

// Delete removes a settled record. A QUEUED or EXECUTING script cannot be
// deleted; that case is a silent no-op, not an error.
func (r *Runner) Delete(id int64) error {
	sc, err := r.registry.Get(id)
	if err != nil {
		return NewError("delete", id, err)
	}
	switch sc.Status() {
	case script.StatusQueued, script.StatusExecuting:
		return nil
	}

	r.registry.Remove(id)
	r.registry.RemoveHandle(id)
	r.bus.Emit(event.New(event.EventScriptDeleted, id, nil))
	return nil
}

// Cleanup evicts terminal records and orphaned handles immediately, outside
// the sweeper's schedule. Returns the number of records removed.
func (r *Runner) Cleanup() int {
	n := r.registry.EvictTerminal()
	r.bus.Emit(event.New(event.EventCleanupCompleted, 0, event.CleanupData{Evicted: n}))
	return n
}

// Subscribe registers a handler for one event type. Returns an unsubscribe
// function.
func (r *Runner) Subscribe(eventType event.Type, handler event.Handler) func() {
	return r.bus.Subscribe(eventType, handler)
}

// Validate checks the configured sandbox provider's backend is usable.
func (r *Runner) Validate(ctx context.Context) error {
	if err := r.provider.Validate(ctx); err != nil {
		return NewError("validate", 0, err)
	}
	return nil
}

// Close stops the sweeper, cancels in-flight executions, waits for workers
// to drain and releases the provider. Subsequent submissions fail with
// ErrClosed; reads keep working against the final state.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopSweeper)
	<-r.sweeperDone

	for _, sc := range r.registry.Snapshot() {
		if h, ok := r.registry.HandleFor(sc.ID()); ok {
			h.Cancel()
		}
	}
	r.workers.Close()

	if err := r.provider.Close(); err != nil {
		return NewError("close", 0, err)
	}
	return nil
}

func (r *Runner) sweep() {
	defer close(r.sweeperDone)

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweeper:
			return
		case <-ticker.C:
			n := r.registry.EvictTerminal()
			r.bus.Emit(event.New(event.EventCleanupCompleted, 0, event.CleanupData{Evicted: n}))
		}
	}
}

func logHandler(logger Logger) event.Handler {
	return func(e *event.Event) {
		switch e.Type {
		case event.EventScriptQueued:
			logger.Debug("script queued", "id", e.ScriptID)
		case event.EventExecutionStarted:
			if data, ok := e.Data.(event.ExecutionStartedData); ok {
				logger.Info("execution started", "id", e.ScriptID, "language", data.Language, "bytes", data.BodySize)
			} else {
				logger.Info("execution started", "id", e.ScriptID)
			}
		case event.EventExecutionCompleted:
			if data, ok := e.Data.(event.ExecutionCompletedData); ok {
				logger.Info("execution completed", "id", e.ScriptID, "duration", data.Duration)
			} else {
				logger.Info("execution completed", "id", e.ScriptID)
			}
		case event.EventExecutionFailed:
			logger.Error("execution failed", "id", e.ScriptID, "error", e.Error)
		case event.EventScriptStopped:
			logger.Info("execution stopped", "id", e.ScriptID)
		case event.EventScriptDeleted:
			logger.Debug("script deleted", "id", e.ScriptID)
		case event.EventCleanupCompleted:
			if data, ok := e.Data.(event.CleanupData); ok && data.Evicted > 0 {
				logger.Info("cleanup completed", "evicted", data.Evicted)
			}
		}
	}
}

// DetectLanguage reports the detected language of code, using filename as a
// hint when non-empty.
func DetectLanguage(code, filename string) string {
	d := langdetect.New()
	opts := langdetect.DefaultDetectOptions()
	opts.Filename = filename
	return d.Detect(code, opts).Language
}

// SupportedLanguages returns all languages with a configured runtime.
func SupportedLanguages() []string {
	return langdetect.SupportedLanguages()
}

// Providers returns the registered sandbox provider names.
func Providers() []string {
	return sandbox.Available()
}
