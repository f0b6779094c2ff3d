package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MaksGolikov/ScriptRunner/internal/pool"
	"github.com/MaksGolikov/ScriptRunner/internal/registry"
	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/event"
	"github.com/MaksGolikov/ScriptRunner/pkg/script"
	"github.com/MaksGolikov/ScriptRunner/testutil"
)

func newEngine(t *testing.T, provider sandbox.Provider) (*Engine, *registry.Registry, *event.Bus) {
	t.Helper()
	reg := registry.New()
	workers := pool.New(4)
	t.Cleanup(workers.Close)
	bus := event.NewBus()
	eng := New(reg, workers, provider, bus, Options{MirrorInterval: time.Millisecond})
	return eng, reg, bus
}

func TestRunCompletes(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		sb.WriteStdout("hello\n")
		sb.WriteStderr("warn\n")
		return nil
	}
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create(`console.log("hello")`)
	task, err := eng.Dispatch(s)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	task.Wait()

	if got := s.Status(); got != script.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}
	if s.Stdout() != "hello\n" || s.Stderr() != "warn\n" {
		t.Errorf("output = %q / %q, want mirrored sandbox output", s.Stdout(), s.Stderr())
	}
	if _, ok := s.StartTime(); !ok {
		t.Error("startTime should be set after execution began")
	}
	if _, ok := s.EndTime(); !ok {
		t.Error("endTime should be set on a terminal record")
	}
	if _, ok := reg.HandleFor(s.ID()); ok {
		t.Error("handle should be detached after settlement")
	}
	if !provider.Created[0].Closed() {
		t.Error("sandbox should be closed after the run")
	}
}

func TestRunFailure(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		sb.WriteStdout("partial")
		return errors.New("ReferenceError: x is not defined")
	}
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create("x.boom()")
	task, _ := eng.Dispatch(s)
	task.Wait()

	if got := s.Status(); got != script.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got)
	}
	if s.Err() != "ReferenceError: x is not defined" {
		t.Errorf("Err() = %q, want the evaluation error", s.Err())
	}
	if s.Stdout() != "partial" {
		t.Errorf("Stdout() = %q; partial output must survive a failure", s.Stdout())
	}
}

func TestRunProviderCreateFailure(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.OnCreate = func(ctx context.Context, spec *sandbox.Spec) (sandbox.Sandbox, error) {
		return nil, errors.New("daemon unreachable")
	}
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create("print(1)")
	task, _ := eng.Dispatch(s)
	task.Wait()

	if got := s.Status(); got != script.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got)
	}
	if s.Err() != "daemon unreachable" {
		t.Errorf("Err() = %q, want the provider error", s.Err())
	}
}

func TestRunCancellation(t *testing.T) {
	provider := testutil.NewMockProvider()
	started := make(chan struct{})
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		sb.WriteStdout("looping\n")
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create("while (true) {}")
	task, _ := eng.Dispatch(s)
	<-started

	h, ok := reg.HandleFor(s.ID())
	if !ok {
		t.Fatal("no cancellation handle attached while executing")
	}
	if !h.Cancel() {
		t.Fatal("Cancel() = false for an in-flight run")
	}
	task.Wait()

	if got := s.Status(); got != script.StatusStopped {
		t.Fatalf("status = %s, want STOPPED", got)
	}
	if s.Err() != "execution interrupted" {
		t.Errorf("Err() = %q, want the interruption description", s.Err())
	}
	if s.Stdout() != "looping\n" {
		t.Errorf("Stdout() = %q; partial output must survive interruption", s.Stdout())
	}
	if _, ok := s.EndTime(); !ok {
		t.Error("endTime should be set on a stopped record")
	}
	if !provider.Created[0].Closed() {
		t.Error("sandbox should be torn down after interruption")
	}
}

func TestRunMirrorsPartialOutput(t *testing.T) {
	provider := testutil.NewMockProvider()
	release := make(chan struct{})
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		sb.WriteStdout("tick 1\n")
		<-release
		sb.WriteStdout("tick 2\n")
		return nil
	}
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create("slow script")
	task, _ := eng.Dispatch(s)

	deadline := time.After(2 * time.Second)
	for s.Stdout() != "tick 1\n" {
		select {
		case <-deadline:
			t.Fatal("partial output never became visible while executing")
		case <-time.After(time.Millisecond):
		}
	}
	if got := s.Status(); got != script.StatusExecuting {
		t.Errorf("status = %s while mirroring, want EXECUTING", got)
	}

	close(release)
	task.Wait()
	if s.Stdout() != "tick 1\ntick 2\n" {
		t.Errorf("final Stdout() = %q, want full output", s.Stdout())
	}
}

func TestRunResolvesLanguageHint(t *testing.T) {
	provider := testutil.NewMockProvider()
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create(`print("hi")`)
	s.SetLanguage("py")
	task, _ := eng.Dispatch(s)
	task.Wait()

	spec := provider.Created[0].Spec()
	if spec.Language != "Python" {
		t.Errorf("spec.Language = %q, want Python (resolved from hint)", spec.Language)
	}
	if spec.RunCommand[0] != "python3" {
		t.Errorf("spec.RunCommand = %v, want python3 invocation", spec.RunCommand)
	}
	if s.Language() != "Python" {
		t.Errorf("record language = %q, want canonical name", s.Language())
	}
}

func TestRunDetectsLanguageFromBody(t *testing.T) {
	provider := testutil.NewMockProvider()
	eng, reg, _ := newEngine(t, provider)

	s := reg.Create("const x = 1;\nconsole.log(x);")
	task, _ := eng.Dispatch(s)
	task.Wait()

	if got := provider.Created[0].Spec().Language; got != "JavaScript" {
		t.Errorf("spec.Language = %q, want JavaScript (content-detected)", got)
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	provider := testutil.NewMockProvider()
	eng, reg, bus := newEngine(t, provider)

	events := make(chan event.Type, 8)
	bus.SubscribeAll(func(e *event.Event) {
		events <- e.Type
	})

	s := reg.Create("console.log(1)")
	task, _ := eng.Dispatch(s)
	task.Wait()

	seen := map[event.Type]bool{}
	timeout := time.After(2 * time.Second)
	for !seen[event.EventExecutionStarted] || !seen[event.EventExecutionCompleted] {
		select {
		case typ := <-events:
			seen[typ] = true
		case <-timeout:
			t.Fatalf("missing lifecycle events, saw %v", seen)
		}
	}
}
