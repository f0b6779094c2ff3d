// Package docker provides the container-backed sandbox provider. Each
// evaluation gets its own container: the script body is copied in, the
// interpreter runs it via exec, and the demultiplexed output streams land in
// live buffers the engine mirrors from.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/output"
)

func init() {
	sandbox.Register("docker", func(config any) (sandbox.Provider, error) {
		switch cfg := config.(type) {
		case nil:
			return New(nil)
		case sandbox.DockerConfig:
			return New(&cfg)
		case *sandbox.DockerConfig:
			return New(cfg)
		default:
			return nil, fmt.Errorf("invalid config type %T for docker provider", config)
		}
	})
}

// Provider implements the Docker sandbox provider.
type Provider struct {
	config *sandbox.DockerConfig
	client *client.Client
}

// New creates a Docker provider. A nil config uses the environment's daemon
// settings.
func New(cfg *sandbox.DockerConfig) (*Provider, error) {
	if cfg == nil {
		cfg = &sandbox.DockerConfig{PullImages: true}
	}

	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &Provider{
		config: cfg,
		client: cli,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "docker"
}

// Validate checks the Docker daemon is reachable.
func (p *Provider) Validate(ctx context.Context) error {
	if _, err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker not available: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Create starts a container ready to evaluate one script.
func (p *Provider) Create(ctx context.Context, spec *sandbox.Spec) (sandbox.Sandbox, error) {
	if spec == nil {
		spec = sandbox.DefaultSpec()
	}

	if err := p.ensureImage(ctx, spec.Image); err != nil {
		return nil, err
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Env:          env,
		WorkingDir:   spec.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		// Keep the container alive between file copy and exec.
		Entrypoint: []string{"tail", "-f", "/dev/null"},
	}

	pids := int64(spec.Resources.PidsMax)
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(spec.Resources.MemoryMB) * 1024 * 1024,
			NanoCPUs: int64(spec.Resources.CPUs * 1e9),
		},
		AutoRemove: false,
	}
	if pids > 0 {
		hostConfig.Resources.PidsLimit = &pids
	}
	if p.config.NetworkDisabled {
		hostConfig.NetworkMode = "none"
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("start container: %w", err)
	}

	return &Sandbox{
		id:     resp.ID,
		client: p.client,
		spec:   spec,
		out:    output.NewPair(),
	}, nil
}

// ensureImage makes sure the image is available locally, pulling it when
// the provider is configured to.
func (p *Provider) ensureImage(ctx context.Context, imageName string) error {
	_, err := p.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", imageName, err)
	}
	if !p.config.PullImages {
		return fmt.Errorf("image %s not present locally (set PullImages to fetch it)", imageName)
	}

	reader, err := p.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Drain to wait for the pull to finish.
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Sandbox is one running container.
type Sandbox struct {
	id     string
	client *client.Client
	spec   *sandbox.Spec
	out    *output.Pair

	mu     sync.Mutex
	closed bool
}

// ID returns the container id.
func (s *Sandbox) ID() string {
	return s.id
}

// Evaluate copies the script into the container and runs the interpreter
// over it, streaming output into the live buffers as it arrives.
func (s *Sandbox) Evaluate(ctx context.Context, source string) error {
	if s.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.Timeout)
		defer cancel()
	}

	scriptPath := path.Join(s.spec.WorkDir, "main"+s.spec.FileExt)
	if err := s.copyFile(ctx, scriptPath, []byte(source)); err != nil {
		return fmt.Errorf("write script: %w", err)
	}

	cmd := append(append([]string{}, s.spec.RunCommand...), scriptPath)
	execID, err := s.client.ContainerExecCreate(ctx, s.id, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   s.spec.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("create exec: %w", err)
	}

	resp, err := s.client.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("attach exec: %w", err)
	}
	defer resp.Close()

	// stdcopy demultiplexes the attached stream into the two live buffers.
	copied := make(chan error, 1)
	go func() {
		_, cerr := stdcopy.StdCopy(s.out.Stdout, s.out.Stderr, resp.Reader)
		copied <- cerr
	}()

	select {
	case <-ctx.Done():
		// The exec keeps running inside the container; Close tears the
		// whole container down.
		return ctx.Err()
	case cerr := <-copied:
		if cerr != nil {
			return fmt.Errorf("read output: %w", cerr)
		}
	}

	inspect, err := s.client.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return fmt.Errorf("inspect exec: %w", err)
	}
	if inspect.ExitCode != 0 {
		if msg := lastLine(s.out.Stderr.String()); msg != "" {
			return fmt.Errorf("script exited with status %d: %s", inspect.ExitCode, msg)
		}
		return fmt.Errorf("script exited with status %d", inspect.ExitCode)
	}
	return nil
}

// Stdout returns the standard output captured so far.
func (s *Sandbox) Stdout() string {
	return s.out.Stdout.String()
}

// Stderr returns the standard error captured so far.
func (s *Sandbox) Stderr() string {
	return s.out.Stderr.String()
}

// Close force-removes the container. Safe to call more than once.
func (s *Sandbox) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.client.ContainerRemove(ctx, s.id, container.RemoveOptions{Force: true})
	if err != nil && !strings.Contains(err.Error(), "No such container") {
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// copyFile writes content into the container via a tar archive.
func (s *Sandbox) copyFile(ctx context.Context, filePath string, content []byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: path.Base(filePath),
		Mode: 0o644,
		Size: int64(len(content)),
	}); err != nil {
		return err
	}
	if _, err := tw.Write(content); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	dir := path.Dir(filePath)
	if dir == "" || dir == "." {
		dir = "/"
	}
	return s.client.CopyToContainer(ctx, s.id, dir, &buf, container.CopyToContainerOptions{})
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

var (
	_ sandbox.Provider = (*Provider)(nil)
	_ sandbox.Sandbox  = (*Sandbox)(nil)
)
