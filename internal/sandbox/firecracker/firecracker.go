//go:build linux

// Package firecracker provides a microVM-backed sandbox provider. Each
// evaluation boots its own Firecracker VM; the script is pushed over SSH and
// the interpreter's output streams into live buffers. Requires Linux with
// KVM, a kernel image and a root filesystem with sshd and the interpreters
// installed.
package firecracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/google/uuid"

	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/output"
)

func init() {
	sandbox.Register("firecracker", func(config any) (sandbox.Provider, error) {
		switch cfg := config.(type) {
		case nil:
			return New(nil)
		case sandbox.FirecrackerConfig:
			return New(&cfg)
		case *sandbox.FirecrackerConfig:
			return New(cfg)
		default:
			return nil, fmt.Errorf("invalid config type %T for firecracker provider", config)
		}
	})
}

const (
	firecrackerBinary = "firecracker"
	vmIPAddress       = "172.16.0.2"
	sshKeyPath        = "/var/lib/firecracker/id_ed25519"
)

// Provider implements the Firecracker microVM sandbox provider.
type Provider struct {
	config *sandbox.FirecrackerConfig

	mu        sync.Mutex
	sandboxes map[string]*Sandbox
}

// New creates a Firecracker provider.
func New(cfg *sandbox.FirecrackerConfig) (*Provider, error) {
	if cfg == nil {
		cfg = &sandbox.FirecrackerConfig{}
	}
	if cfg.KernelImagePath == "" {
		cfg.KernelImagePath = "/var/lib/firecracker/vmlinux"
	}
	if cfg.RootDrivePath == "" {
		cfg.RootDrivePath = "/var/lib/firecracker/rootfs.ext4"
	}
	if cfg.SocketDir == "" {
		cfg.SocketDir = "/tmp/firecracker"
	}
	if cfg.VCPUs <= 0 {
		cfg.VCPUs = 2
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = 1024
	}

	if err := os.MkdirAll(cfg.SocketDir, 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	return &Provider{
		config:    cfg,
		sandboxes: make(map[string]*Sandbox),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "firecracker"
}

// Validate checks KVM, the binary and the VM images are present.
func (p *Provider) Validate(ctx context.Context) error {
	if _, err := os.Stat("/dev/kvm"); os.IsNotExist(err) {
		return fmt.Errorf("KVM not available: /dev/kvm not found")
	}
	if _, err := exec.LookPath(firecrackerBinary); err != nil {
		return fmt.Errorf("firecracker binary not found: %w", err)
	}
	if _, err := os.Stat(p.config.KernelImagePath); os.IsNotExist(err) {
		return fmt.Errorf("kernel image not found: %s", p.config.KernelImagePath)
	}
	if _, err := os.Stat(p.config.RootDrivePath); os.IsNotExist(err) {
		return fmt.Errorf("root filesystem not found: %s", p.config.RootDrivePath)
	}
	return nil
}

// Close stops every VM this provider booted.
func (p *Provider) Close() error {
	p.mu.Lock()
	sbs := make([]*Sandbox, 0, len(p.sandboxes))
	for _, sb := range p.sandboxes {
		sbs = append(sbs, sb)
	}
	p.mu.Unlock()

	var lastErr error
	for _, sb := range sbs {
		if err := sb.Close(context.Background()); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// forget drops the bookkeeping entry for a closed sandbox.
func (p *Provider) forget(id string) {
	p.mu.Lock()
	delete(p.sandboxes, id)
	p.mu.Unlock()
}

// Create boots a microVM ready to evaluate one script.
func (p *Provider) Create(ctx context.Context, spec *sandbox.Spec) (sandbox.Sandbox, error) {
	if spec == nil {
		spec = sandbox.DefaultSpec()
	}

	id := "fc-" + uuid.NewString()
	socketPath := filepath.Join(p.config.SocketDir, id+".sock")

	fcCfg := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: p.config.KernelImagePath,
		KernelArgs:      "console=ttyS0 reboot=k panic=1 pci=off init=/sbin/init",
		Drives: []models.Drive{
			{
				DriveID:      firecracker.String("rootfs"),
				PathOnHost:   firecracker.String(p.config.RootDrivePath),
				IsRootDevice: firecracker.Bool(true),
				IsReadOnly:   firecracker.Bool(false),
			},
		},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  firecracker.Int64(p.config.VCPUs),
			MemSizeMib: firecracker.Int64(p.config.MemoryMB),
		},
		NetworkInterfaces: []firecracker.NetworkInterface{
			{
				StaticConfiguration: &firecracker.StaticNetworkConfiguration{
					MacAddress:  "AA:FC:00:00:00:01",
					HostDevName: "tap0",
				},
			},
		},
	}

	cmd := firecracker.VMCommandBuilder{}.
		WithBin(firecrackerBinary).
		WithSocketPath(socketPath).
		Build(ctx)

	machine, err := firecracker.NewMachine(ctx, fcCfg, firecracker.WithProcessRunner(cmd))
	if err != nil {
		return nil, fmt.Errorf("create machine: %w", err)
	}
	if err := machine.Start(ctx); err != nil {
		return nil, fmt.Errorf("start VM: %w", err)
	}

	sb := &Sandbox{
		id:         id,
		provider:   p,
		machine:    machine,
		socketPath: socketPath,
		spec:       spec,
		out:        output.NewPair(),
	}

	p.mu.Lock()
	p.sandboxes[id] = sb
	p.mu.Unlock()
	return sb, nil
}

// Sandbox is one running microVM.
type Sandbox struct {
	id         string
	provider   *Provider
	machine    *firecracker.Machine
	socketPath string
	spec       *sandbox.Spec
	out        *output.Pair

	mu     sync.Mutex
	closed bool
}

// ID returns the VM identifier.
func (s *Sandbox) ID() string {
	return s.id
}

// Evaluate pushes the script into the VM over SSH and runs the interpreter,
// streaming output into the live buffers.
func (s *Sandbox) Evaluate(ctx context.Context, source string) error {
	if s.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.Timeout)
		defer cancel()
	}

	scriptPath := "/tmp/main" + s.spec.FileExt
	writeCmd := fmt.Sprintf("cat > %s << 'SCRIPT_EOF'\n%s\nSCRIPT_EOF", scriptPath, source)
	if err := s.ssh(ctx, writeCmd).Run(); err != nil {
		return fmt.Errorf("write script to VM: %w", err)
	}

	runCmd := strings.Join(append(append([]string{}, s.spec.RunCommand...), scriptPath), " ")
	cmd := s.ssh(ctx, runCmd)
	cmd.Stdout = s.out.Stdout
	cmd.Stderr = s.out.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("script exited with status %d", exitErr.ExitCode())
	}
	return fmt.Errorf("run script in VM: %w", err)
}

func (s *Sandbox) ssh(ctx context.Context, remoteCmd string) *exec.Cmd {
	args := []string{
		"-i", sshKeyPath,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=5",
		"root@" + vmIPAddress,
		remoteCmd,
	}
	return exec.CommandContext(ctx, "ssh", args...)
}

// Stdout returns the standard output captured so far.
func (s *Sandbox) Stdout() string {
	return s.out.Stdout.String()
}

// Stderr returns the standard error captured so far.
func (s *Sandbox) Stderr() string {
	return s.out.Stderr.String()
}

// Close shuts the VM down, removes its socket and drops the provider's
// bookkeeping entry. Safe to call more than once.
func (s *Sandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.machine != nil {
		err = s.machine.StopVMM()
	}
	os.Remove(s.socketPath)
	s.provider.forget(s.id)
	if err != nil {
		return fmt.Errorf("stop VM: %w", err)
	}
	return nil
}

var (
	_ sandbox.Provider = (*Provider)(nil)
	_ sandbox.Sandbox  = (*Sandbox)(nil)
)
