package scriptrunner

import (
	"time"

	"github.com/MaksGolikov/ScriptRunner/internal/sandbox"
	"github.com/MaksGolikov/ScriptRunner/pkg/event"
	"github.com/MaksGolikov/ScriptRunner/pkg/langdetect"
)

// Config holds runner configuration.
type Config struct {
	// Provider selects the sandbox provider by registered name.
	Provider string

	// ProviderConfig holds provider-specific configuration.
	ProviderConfig any

	// SandboxProvider injects a provider instance directly, bypassing the
	// name lookup. Mainly for tests.
	SandboxProvider sandbox.Provider

	// MaxWorkers bounds concurrent evaluations; submissions beyond it
	// queue for a free slot.
	MaxWorkers int

	// MirrorInterval is how often partial output is copied into records
	// while execution is in flight.
	MirrorInterval time.Duration

	// CleanupInterval is the sweeper period for evicting settled records.
	CleanupInterval time.Duration

	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout time.Duration

	// DefaultLanguage is used when content detection cannot resolve a
	// runtime.
	DefaultLanguage string

	// Resources limits each evaluation environment.
	Resources ResourceLimits

	// WorkDir is the working directory inside sandboxes.
	WorkDir string

	// Logger for lifecycle logging; nil disables it.
	Logger Logger

	// EventHandler receives every lifecycle event.
	EventHandler event.Handler
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:        "docker",
		MaxWorkers:      100,
		MirrorInterval:  2 * time.Millisecond,
		CleanupInterval: time.Hour,
		DefaultTimeout:  5 * time.Minute,
		DefaultLanguage: "JavaScript",
		WorkDir:         "/workspace",
		Resources: ResourceLimits{
			MemoryMB: 512,
			CPUs:     1,
			PidsMax:  128,
		},
	}
}

// baseSpec builds the sandbox environment template from the configuration.
func (c *Config) baseSpec() *sandbox.Spec {
	spec := sandbox.DefaultSpec()
	if info, ok := langdetect.GetRuntimeInfo(c.DefaultLanguage); ok {
		spec.Language = info.Language
		spec.RunCommand = info.RunCommand
		spec.Image = info.DockerImage
		spec.FileExt = info.FileExt
	}
	if c.DefaultTimeout > 0 {
		spec.Timeout = c.DefaultTimeout
	}
	if c.WorkDir != "" {
		spec.WorkDir = c.WorkDir
	}
	if c.Resources != (ResourceLimits{}) {
		spec.Resources = c.Resources
	}
	return spec
}

// Option configures a runner.
type Option func(*Config)

// WithProvider selects the sandbox provider by name.
func WithProvider(name string) Option {
	return func(c *Config) {
		c.Provider = name
	}
}

// WithDockerConfig selects and configures the Docker provider.
func WithDockerConfig(cfg DockerConfig) Option {
	return func(c *Config) {
		c.Provider = "docker"
		c.ProviderConfig = cfg
	}
}

// WithLocalConfig selects and configures the local subprocess provider.
// It offers no isolation; use it for development only.
func WithLocalConfig(cfg LocalConfig) Option {
	return func(c *Config) {
		c.Provider = "local"
		c.ProviderConfig = cfg
	}
}

// WithFirecrackerConfig selects and configures the Firecracker microVM
// provider. Requires Linux with KVM.
func WithFirecrackerConfig(cfg FirecrackerConfig) Option {
	return func(c *Config) {
		c.Provider = "firecracker"
		c.ProviderConfig = cfg
	}
}

// WithSandboxProvider injects a provider instance directly.
func WithSandboxProvider(p sandbox.Provider) Option {
	return func(c *Config) {
		c.SandboxProvider = p
	}
}

// WithMaxWorkers bounds concurrent evaluations.
func WithMaxWorkers(n int) Option {
	return func(c *Config) {
		c.MaxWorkers = n
	}
}

// WithMirrorInterval sets the output mirroring period.
func WithMirrorInterval(d time.Duration) Option {
	return func(c *Config) {
		c.MirrorInterval = d
	}
}

// WithCleanupInterval sets the sweeper period.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Config) {
		c.CleanupInterval = d
	}
}

// WithTimeout sets the per-evaluation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = d
	}
}

// WithDefaultLanguage sets the fallback language when detection fails.
func WithDefaultLanguage(lang string) Option {
	return func(c *Config) {
		c.DefaultLanguage = lang
	}
}

// WithResources sets the per-evaluation resource limits.
func WithResources(r ResourceLimits) Option {
	return func(c *Config) {
		c.Resources = r
	}
}

// WithWorkDir sets the sandbox working directory.
func WithWorkDir(dir string) Option {
	return func(c *Config) {
		c.WorkDir = dir
	}
}

// WithLogger sets the lifecycle logger.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithEventHandler registers a global event handler.
func WithEventHandler(h event.Handler) Option {
	return func(c *Config) {
		c.EventHandler = h
	}
}

// Provider-specific configuration types, re-exported so callers never
// import internal packages.
type (
	// DockerConfig configures the Docker provider.
	DockerConfig = sandbox.DockerConfig

	// LocalConfig configures the local subprocess provider.
	LocalConfig = sandbox.LocalConfig

	// FirecrackerConfig configures the Firecracker provider.
	FirecrackerConfig = sandbox.FirecrackerConfig

	// ResourceLimits bounds one evaluation environment.
	ResourceLimits = sandbox.ResourceLimits
)

// SubmitOption configures a single submission.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	language string
}

// WithLanguage overrides automatic language detection for one submission.
func WithLanguage(lang string) SubmitOption {
	return func(c *submitConfig) {
		c.language = lang
	}
}

// Logger is the structured logging interface the runner emits through.
// charmbracelet/log satisfies it via a thin adapter; see cmd/scriptrunner.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debug(msg string, keysAndValues ...any) {}
func (NopLogger) Info(msg string, keysAndValues ...any)  {}
func (NopLogger) Warn(msg string, keysAndValues ...any)  {}
func (NopLogger) Error(msg string, keysAndValues ...any) {}
