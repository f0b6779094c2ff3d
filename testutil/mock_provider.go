// Package testutil provides configurable mocks for testing the execution
// pipeline without a real isolation backend.
package testutil

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
)

// MockProvider is a configurable mock implementation of sandbox.Provider.
type MockProvider struct {
	name string
	mu   sync.Mutex

	// Created collects every sandbox this provider built, for assertions.
	Created []*MockSandbox

	// Hooks for testing
	OnCreate   func(ctx context.Context, spec *sandbox.Spec) (sandbox.Sandbox, error)
	OnValidate func(ctx context.Context) error
	OnClose    func() error

	// OnEvaluate is installed into every sandbox this provider creates.
	OnEvaluate func(ctx context.Context, sb *MockSandbox, source string) error

	closed atomic.Bool
}

// NewMockProvider creates a mock provider named "mock".
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock"}
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string { return p.name }

// Create builds a mock sandbox, or defers to the OnCreate hook.
func (p *MockProvider) Create(ctx context.Context, spec *sandbox.Spec) (sandbox.Sandbox, error) {
	if p.OnCreate != nil {
		return p.OnCreate(ctx, spec)
	}

	sb := NewMockSandbox(spec)
	sb.OnEvaluate = func(ctx context.Context, source string) error {
		if p.OnEvaluate != nil {
			return p.OnEvaluate(ctx, sb, source)
		}
		return nil
	}

	p.mu.Lock()
	p.Created = append(p.Created, sb)
	p.mu.Unlock()
	return sb, nil
}

// Sandboxes returns a snapshot of the sandboxes created so far.
func (p *MockProvider) Sandboxes() []*MockSandbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MockSandbox(nil), p.Created...)
}

// Validate reports the provider usable unless the OnValidate hook says
// otherwise.
func (p *MockProvider) Validate(ctx context.Context) error {
	if p.OnValidate != nil {
		return p.OnValidate(ctx)
	}
	return nil
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed.Store(true)
	if p.OnClose != nil {
		return p.OnClose()
	}
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool { return p.closed.Load() }

var sandboxCounter atomic.Uint64

// MockSandbox is a configurable mock implementation of sandbox.Sandbox.
// Test code drives its output through WriteStdout/WriteStderr, typically
// from inside an OnEvaluate hook.
type MockSandbox struct {
	id   string
	spec *sandbox.Spec

	mu     sync.Mutex
	stdout string
	stderr string
	closed bool

	// Hooks for testing
	OnEvaluate func(ctx context.Context, source string) error
	OnClose    func(ctx context.Context) error

	// Evaluations collects every source passed to Evaluate.
	Evaluations []string
}

// NewMockSandbox creates a mock sandbox with a unique id.
func NewMockSandbox(spec *sandbox.Spec) *MockSandbox {
	return &MockSandbox{
		id:   "mock-" + strconv.FormatUint(sandboxCounter.Add(1), 10),
		spec: spec,
	}
}

// ID returns the sandbox identifier.
func (sb *MockSandbox) ID() string { return sb.id }

// Spec returns the spec the sandbox was created with.
func (sb *MockSandbox) Spec() *sandbox.Spec { return sb.spec }

// Evaluate records the source and runs the OnEvaluate hook.
func (sb *MockSandbox) Evaluate(ctx context.Context, source string) error {
	sb.mu.Lock()
	sb.Evaluations = append(sb.Evaluations, source)
	sb.mu.Unlock()

	if sb.OnEvaluate != nil {
		return sb.OnEvaluate(ctx, source)
	}
	return nil
}

// Stdout returns the output written so far.
func (sb *MockSandbox) Stdout() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.stdout
}

// Stderr returns the error output written so far.
func (sb *MockSandbox) Stderr() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.stderr
}

// WriteStdout appends to the sandbox's standard output.
func (sb *MockSandbox) WriteStdout(s string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.stdout += s
}

// WriteStderr appends to the sandbox's standard error.
func (sb *MockSandbox) WriteStderr(s string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.stderr += s
}

// Close marks the sandbox closed.
func (sb *MockSandbox) Close(ctx context.Context) error {
	sb.mu.Lock()
	sb.closed = true
	sb.mu.Unlock()

	if sb.OnClose != nil {
		return sb.OnClose(ctx)
	}
	return nil
}

// Closed reports whether Close was called.
func (sb *MockSandbox) Closed() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.closed
}
