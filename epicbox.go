// Package epicbox runs untrusted code inside ephemeral Linux containers
// and reports how it terminated. Callers configure a set of named
// profiles once, then create/start/destroy sandboxes against them, or
// use the Run convenience for the common create-start-destroy sequence.
//
// Module-level state (the process-wide profile registry and engine
// URL) mirrors the original runtime's one-shot configure() for callers
// that want the ergonomic package-level form; anything that needs more
// than one independently configured runtime should build a
// sandbox.Runtime directly instead.
package epicbox

import (
	"context"

	"github.com/sandboxrun/epicbox/internal/config"
	"github.com/sandboxrun/epicbox/internal/engine"
	"github.com/sandboxrun/epicbox/internal/limits"
	"github.com/sandboxrun/epicbox/internal/profile"
	"github.com/sandboxrun/epicbox/internal/sandbox"
	"github.com/sandboxrun/epicbox/internal/workdir"
)

// Re-exported types so callers depend only on the root package.
type (
	Sandbox       = sandbox.Sandbox
	Result        = sandbox.Result
	File          = sandbox.File
	Profile       = profile.Profile
	LimitSpec     = limits.Spec
	WorkingDir    = workdir.Handle
	CreateOptions = sandbox.CreateOptions
)

var defaultRuntime = sandbox.NewRuntime(&profile.Registry{}, "")

// Configure atomically replaces the process-wide profile table, matching
// the original configure()'s full-replace semantics, and then sets the
// engine URL as a separate, unsynchronized update. Each call fully
// replaces the prior state rather than merging into it.
func Configure(profiles []Profile, engineURL string) {
	defaultRuntime.Profiles.Configure(profiles)
	defaultRuntime.EngineURL = engineURL
}

// ConfigureFromEnv loads EPICBOX_ENGINE_URL and, if set,
// EPICBOX_PROFILES (a YAML manifest) and applies them via Configure.
func ConfigureFromEnv() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	Configure(cfg.Profiles, cfg.EngineURL)
	return nil
}

// NewProfile builds a Profile with the default user and network
// disabled, mirroring the original runtime's Profile() constructor
// defaults.
func NewProfile(name, image string) Profile {
	return profile.New(name, image)
}

// WorkingDirectory acquires a scoped working-directory volume and
// returns it along with a release function the caller must invoke on
// every exit path (typically via defer), guaranteeing cleanup even on
// failure.
func WorkingDirectory(ctx context.Context) (*WorkingDir, func(), error) {
	cli, err := engine.Client(defaultRuntime.EngineURL, engine.StandardPolicy)
	if err != nil {
		return nil, func() {}, err
	}
	handle, err := workdir.Acquire(ctx, cli)
	if err != nil {
		return nil, func() {}, err
	}
	release := func() { workdir.Release(ctx, cli, handle) }
	return handle, release, nil
}

// Create builds a Sandbox against the default runtime's configured
// profiles and engine.
func Create(ctx context.Context, opts CreateOptions) (*Sandbox, error) {
	return defaultRuntime.Create(ctx, opts)
}

// Start attaches to, drives, and inspects sb, returning its Result.
func Start(ctx context.Context, sb *Sandbox, stdin []byte) (Result, error) {
	return defaultRuntime.Start(ctx, sb, stdin)
}

// Destroy force-removes sb's container. Never returns an error; engine
// failures are logged and swallowed.
func Destroy(ctx context.Context, sb *Sandbox) {
	defaultRuntime.Destroy(ctx, sb)
}

// Run composes Create, Start, and a scoped Destroy.
func Run(ctx context.Context, opts CreateOptions, stdin []byte) (Result, error) {
	return defaultRuntime.Run(ctx, opts, stdin)
}

