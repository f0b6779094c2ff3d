//go:build linux

package firecracker

import (
	"context"
	"testing"

	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/output"
)

func TestCloseDropsProviderEntry(t *testing.T) {
	p := &Provider{
		config:    &sandbox.FirecrackerConfig{},
		sandboxes: make(map[string]*Sandbox),
	}
	sb := &Sandbox{
		id:       "fc-test",
		provider: p,
		spec:     sandbox.DefaultSpec(),
		out:      output.NewPair(),
	}
	p.sandboxes[sb.id] = sb

	if err := sb.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	p.mu.Lock()
	_, tracked := p.sandboxes[sb.id]
	remaining := len(p.sandboxes)
	p.mu.Unlock()
	if tracked {
		t.Error("closed sandbox still tracked by the provider")
	}
	if remaining != 0 {
		t.Errorf("provider tracks %d sandboxes after close, want 0", remaining)
	}

	// Close is idempotent.
	if err := sb.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
