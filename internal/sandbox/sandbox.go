// Package sandbox defines the isolation layer evaluations run in. Each
// provider is a strategy for putting a script body behind a boundary the
// host controls: a container, a microVM or a plain subprocess for
// development. The engine only sees the Sandbox interface.
package sandbox

import (
	"context"
	"time"
)

// Provider creates sandboxes of one isolation flavor.
type Provider interface {
	// Name returns the provider identifier, e.g. "docker".
	Name() string

	// Create builds a sandbox ready to evaluate one script.
	Create(ctx context.Context, spec *Spec) (Sandbox, error)

	// Validate checks the provider's backend is reachable and usable.
	Validate(ctx context.Context) error

	// Close releases provider-wide resources.
	Close() error
}

// Sandbox is one isolated evaluation environment. Stdout and Stderr are
// safe to call while Evaluate is still running; they return the output
// accumulated so far, which is what live mirroring relies on.
type Sandbox interface {
	// ID returns the unique sandbox identifier.
	ID() string

	// Evaluate runs the script body to completion or until ctx is
	// cancelled. A non-nil error means the evaluation failed or was
	// interrupted; partial output stays readable either way.
	Evaluate(ctx context.Context, source string) error

	// Stdout returns everything written to standard output so far.
	Stdout() string

	// Stderr returns everything written to standard error so far.
	Stderr() string

	// Close tears the environment down. Safe to call more than once.
	Close(ctx context.Context) error
}

// Spec describes the environment a sandbox must provide for one script.
type Spec struct {
	// Language is the canonical language name, e.g. "JavaScript".
	Language string

	// RunCommand is the interpreter invocation; the script path is
	// appended as the final argument.
	RunCommand []string

	// Image is the container or VM image for providers that use one.
	Image string

	// FileExt is the extension the script file is written with.
	FileExt string

	// Env holds extra environment variables for the interpreter.
	Env map[string]string

	// WorkDir is the working directory inside the sandbox.
	WorkDir string

	// Timeout bounds a single evaluation; zero means no limit beyond
	// the caller's context.
	Timeout time.Duration

	// Resources sets the isolation limits for providers that enforce
	// them.
	Resources ResourceLimits
}

// ResourceLimits bounds what one evaluation may consume.
type ResourceLimits struct {
	MemoryMB int
	CPUs     float64
	PidsMax  int
}

// DefaultSpec returns the environment used when the caller configures
// nothing: a JavaScript interpreter with modest limits.
func DefaultSpec() *Spec {
	return &Spec{
		Language:   "JavaScript",
		RunCommand: []string{"node"},
		Image:      "node:22-slim",
		FileExt:    ".js",
		Env:        make(map[string]string),
		WorkDir:    "/workspace",
		Timeout:    5 * time.Minute,
		Resources: ResourceLimits{
			MemoryMB: 512,
			CPUs:     1,
			PidsMax:  128,
		},
	}
}

// DockerConfig configures the Docker provider.
type DockerConfig struct {
	// Host is the Docker daemon address; empty uses the environment.
	Host string

	// PullImages makes Create pull missing images instead of failing.
	PullImages bool

	// NetworkDisabled cuts the container off from the network.
	NetworkDisabled bool
}

// LocalConfig configures the subprocess provider. It offers no real
// isolation and exists for development and tests.
type LocalConfig struct {
	// BaseDir is where per-sandbox scratch directories are created;
	// empty uses the system temp directory.
	BaseDir string
}

// FirecrackerConfig configures the Firecracker microVM provider.
type FirecrackerConfig struct {
	// KernelImagePath points at an uncompressed kernel image.
	KernelImagePath string

	// RootDrivePath points at the root filesystem image.
	RootDrivePath string

	// SocketDir is where per-VM API sockets are created.
	SocketDir string

	// VCPUs and MemoryMB size the microVM.
	VCPUs    int64
	MemoryMB int64
}
