// Package local provides a subprocess-backed sandbox provider. It offers no
// real isolation beyond a scratch working directory and exists for
// development and tests, where spinning up containers is not worth it.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/output"
)

func init() {
	sandbox.Register("local", func(config any) (sandbox.Provider, error) {
		switch cfg := config.(type) {
		case nil:
			return New(nil)
		case sandbox.LocalConfig:
			return New(&cfg)
		case *sandbox.LocalConfig:
			return New(cfg)
		default:
			return nil, fmt.Errorf("invalid config type %T for local provider", config)
		}
	})
}

// Provider implements the subprocess sandbox provider.
type Provider struct {
	config *sandbox.LocalConfig
}

// New creates a local provider.
func New(cfg *sandbox.LocalConfig) (*Provider, error) {
	if cfg == nil {
		cfg = &sandbox.LocalConfig{}
	}
	return &Provider{config: cfg}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "local"
}

// Validate always succeeds; interpreter availability is checked per
// evaluation.
func (p *Provider) Validate(ctx context.Context) error {
	return nil
}

// Close releases nothing; scratch directories are removed per sandbox.
func (p *Provider) Close() error {
	return nil
}

// Create allocates a scratch directory for one evaluation.
func (p *Provider) Create(ctx context.Context, spec *sandbox.Spec) (sandbox.Sandbox, error) {
	if spec == nil {
		spec = sandbox.DefaultSpec()
	}
	if len(spec.RunCommand) == 0 {
		return nil, fmt.Errorf("no run command for language %q", spec.Language)
	}

	base := p.config.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	id := "local-" + uuid.NewString()
	dir := filepath.Join(base, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	return &Sandbox{
		id:   id,
		dir:  dir,
		spec: spec,
		out:  output.NewPair(),
	}, nil
}

// Sandbox is one subprocess evaluation environment.
type Sandbox struct {
	id   string
	dir  string
	spec *sandbox.Spec
	out  *output.Pair

	mu     sync.Mutex
	closed bool
}

// ID returns the sandbox identifier.
func (s *Sandbox) ID() string {
	return s.id
}

// Evaluate writes the script into the scratch directory and runs the
// interpreter over it. The process group is killed when ctx is cancelled.
func (s *Sandbox) Evaluate(ctx context.Context, source string) error {
	if s.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.Timeout)
		defer cancel()
	}

	scriptPath := filepath.Join(s.dir, "main"+s.spec.FileExt)
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}

	args := append(append([]string{}, s.spec.RunCommand[1:]...), scriptPath)
	cmd := exec.CommandContext(ctx, s.spec.RunCommand[0], args...)
	cmd.Dir = s.dir
	cmd.Stdout = s.out.Stdout
	cmd.Stderr = s.out.Stderr
	cmd.Env = os.Environ()
	for k, v := range s.spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	// The interpreter was killed by cancellation, not by its own fault.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("script exited with status %d", exitErr.ExitCode())
	}
	return fmt.Errorf("run %s: %w", s.spec.RunCommand[0], err)
}

// Stdout returns the standard output captured so far.
func (s *Sandbox) Stdout() string {
	return s.out.Stdout.String()
}

// Stderr returns the standard error captured so far.
func (s *Sandbox) Stderr() string {
	return s.out.Stderr.String()
}

// Close removes the scratch directory. Safe to call more than once.
func (s *Sandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return os.RemoveAll(s.dir)
}

var (
	_ sandbox.Provider = (*Provider)(nil)
	_ sandbox.Sandbox  = (*Sandbox)(nil)
)
