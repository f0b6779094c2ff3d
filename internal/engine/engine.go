// Package engine drives one script through its execution lifecycle: pick an
// interpreter, create a sandbox, evaluate, mirror output into the shared
// record while the evaluation runs, and settle the record in a terminal
// state. The coordinator hands the engine QUEUED records; everything after
// that happens on a pool worker.
package engine

import (
	"context"
	"time"

	"github.com/MaksGolikov/ScriptRunner/internal/pool"
	"github.com/MaksGolikov/ScriptRunner/internal/registry"
	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/event"
	"github.com/MaksGolikov/ScriptRunner/pkg/langdetect"
	"github.com/MaksGolikov/ScriptRunner/pkg/script"
)

const (
	defaultMirrorInterval = 2 * time.Millisecond
	closeTimeout          = 30 * time.Second

	// stoppedMessage is recorded on interrupted scripts. It describes the
	// interruption; a STOPPED record is not a failure.
	stoppedMessage = "execution interrupted"
)

// Options tunes the engine.
type Options struct {
	// Base is the sandbox environment template; language-specific fields
	// are overridden per script.
	Base *sandbox.Spec

	// MirrorInterval is how often partial output is copied into the
	// record while an evaluation runs.
	MirrorInterval time.Duration
}

// Engine executes scripts on pool workers inside provider sandboxes.
type Engine struct {
	registry *registry.Registry
	workers  *pool.Pool
	provider sandbox.Provider
	bus      event.Emitter
	detector *langdetect.Detector

	base           *sandbox.Spec
	mirrorInterval time.Duration
}

// New wires an engine. bus may not be nil; callers that do not care about
// events pass a bus with no subscribers.
func New(reg *registry.Registry, workers *pool.Pool, provider sandbox.Provider, bus event.Emitter, opts Options) *Engine {
	base := opts.Base
	if base == nil {
		base = sandbox.DefaultSpec()
	}
	interval := opts.MirrorInterval
	if interval <= 0 {
		interval = defaultMirrorInterval
	}
	return &Engine{
		registry:       reg,
		workers:        workers,
		provider:       provider,
		bus:            bus,
		detector:       langdetect.New(),
		base:           base,
		mirrorInterval: interval,
	}
}

// Dispatch schedules the record for execution and attaches its cancellation
// handle. The returned task lets blocking submitters wait for settlement.
func (e *Engine) Dispatch(s *script.Script) (*pool.Task, error) {
	task, err := e.workers.Submit(func(ctx context.Context) error {
		return e.run(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	e.registry.AttachHandle(s.ID(), task)
	// The task may have finished before the handle landed; don't leave an
	// orphan behind for the sweeper.
	if task.Done() {
		e.registry.RemoveHandle(s.ID())
	}
	return task, nil
}

// run is the worker body. Every exit path mirrors the sandbox's final output
// into the record before tearing the sandbox down, so terminal records keep
// whatever the script managed to print.
func (e *Engine) run(ctx context.Context, s *script.Script) error {
	defer e.registry.RemoveHandle(s.ID())

	spec := e.specFor(s)
	start := time.Now()

	s.MarkExecuting()
	e.bus.Emit(event.New(event.EventExecutionStarted, s.ID(), event.ExecutionStartedData{
		Language: spec.Language,
		BodySize: len(s.Body()),
	}))

	sb, err := e.provider.Create(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			s.MarkStopped(stoppedMessage)
			e.bus.Emit(event.New(event.EventScriptStopped, s.ID(), nil))
			return ctx.Err()
		}
		s.MarkFailed(err.Error())
		e.bus.Emit(event.NewError(event.EventExecutionFailed, s.ID(), err))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		sb.Close(closeCtx)
	}()

	evalDone := make(chan error, 1)
	go func() {
		evalDone <- sb.Evaluate(ctx, s.Body())
	}()

	ticker := time.NewTicker(e.mirrorInterval)
	defer ticker.Stop()

	var evalErr error
mirror:
	for {
		select {
		case evalErr = <-evalDone:
			break mirror
		case <-ticker.C:
			s.SetOutput(sb.Stdout(), sb.Stderr())
		}
	}

	// Final mirror before the record settles, so a terminal status is
	// never observed alongside stale output.
	s.SetOutput(sb.Stdout(), sb.Stderr())

	if ctx.Err() != nil {
		s.MarkStopped(stoppedMessage)
		e.bus.Emit(event.New(event.EventScriptStopped, s.ID(), nil))
		return ctx.Err()
	}
	if evalErr != nil {
		s.MarkFailed(evalErr.Error())
		e.bus.Emit(event.NewError(event.EventExecutionFailed, s.ID(), evalErr))
		return evalErr
	}

	s.MarkCompleted()
	e.bus.Emit(event.New(event.EventExecutionCompleted, s.ID(), event.ExecutionCompletedData{
		Duration:   time.Since(start),
		StdoutSize: len(s.Stdout()),
		StderrSize: len(s.Stderr()),
	}))
	return nil
}

// specFor resolves the interpreter environment for one script: an explicit
// language hint wins, otherwise the body is content-detected. Scripts in a
// language with no configured runtime fall back to the base environment.
func (e *Engine) specFor(s *script.Script) *sandbox.Spec {
	spec := *e.base
	spec.Env = make(map[string]string, len(e.base.Env))
	for k, v := range e.base.Env {
		spec.Env[k] = v
	}

	lang := s.Language()
	if lang == "" {
		result := e.detector.Detect(s.Body(), langdetect.DefaultDetectOptions())
		lang = result.Language
	}

	if info, ok := langdetect.GetRuntimeInfo(lang); ok {
		spec.Language = info.Language
		spec.RunCommand = info.RunCommand
		spec.Image = info.DockerImage
		spec.FileExt = info.FileExt
		s.SetLanguage(info.Language)
	} else {
		s.SetLanguage(spec.Language)
	}
	return &spec
}
