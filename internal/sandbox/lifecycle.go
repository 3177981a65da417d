package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockermount "github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/errdefs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sandboxrun/epicbox/internal/archive"
	"github.com/sandboxrun/epicbox/internal/attach"
	"github.com/sandboxrun/epicbox/internal/engine"
	"github.com/sandboxrun/epicbox/internal/limits"
	"github.com/sandboxrun/epicbox/internal/metrics"
	"github.com/sandboxrun/epicbox/internal/profile"
	"github.com/sandboxrun/epicbox/internal/workdir"
)

const (
	// defaultNamePrefix names containers created against a real engine.
	defaultNamePrefix = "epicbox-"

	// testNamePrefix marks containers created by a test harness, so an
	// operator-side reaper can filter test debris by prefix instead of
	// sweeping every epicbox-owned container.
	testNamePrefix = "epicbox-test-"
)

// Runtime is the explicit, dependency-injected form of the lifecycle:
// a profile registry plus the engine endpoint to talk to. Create, Start,
// Destroy, and Run all hang off it rather than off package-level state,
// so tests and multi-tenant callers can run several runtimes side by
// side. The ergonomic package-level wrapper lives in the root epicbox
// package.
type Runtime struct {
	Profiles  *profile.Registry
	EngineURL string

	// NamePrefix is prepended to the uuidv4 that names every container
	// this Runtime creates. Empty defaults to defaultNamePrefix.
	NamePrefix string
}

// NewRuntime builds a Runtime bound to profiles and an engine endpoint.
// An empty engineURL defers to the engine client's environment-derived
// default (DOCKER_HOST and friends).
func NewRuntime(profiles *profile.Registry, engineURL string) *Runtime {
	return &Runtime{Profiles: profiles, EngineURL: engineURL, NamePrefix: defaultNamePrefix}
}

// NewTestRuntime builds a Runtime identical to NewRuntime except its
// containers are named with testNamePrefix, so test-run debris can be
// garbage-collected separately from production containers.
func NewTestRuntime(profiles *profile.Registry, engineURL string) *Runtime {
	return &Runtime{Profiles: profiles, EngineURL: engineURL, NamePrefix: testNamePrefix}
}

func (r *Runtime) namePrefix() string {
	if r.NamePrefix == "" {
		return defaultNamePrefix
	}
	return r.NamePrefix
}

// CreateOptions parameterizes Create. Limits and Workdir are optional;
// a nil Limits uses limits.Defaults, and a nil Workdir leaves the
// container without a mounted working directory.
type CreateOptions struct {
	ProfileName string
	Command     string
	Files       []File
	Limits      *limits.Spec
	Workdir     *workdir.Handle
}

// Create builds, but does not start, a container for
// opts.ProfileName: it assembles the host config from the resolved
// limits and profile, creates the container, stages any files, and
// records the workdir's Swarm node on first use.
func (r *Runtime) Create(ctx context.Context, opts CreateOptions) (*Sandbox, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CreateDuration)

	prof, err := r.Profiles.Lookup(opts.ProfileName)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	merged := limits.Merge(opts.Limits)

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:     merged.MemoryBytes(),
			MemorySwap: merged.MemoryBytes(),
			PidsLimit:  merged.PidsLimit(),
			Ulimits:    merged.Ulimits(),
		},
		ReadonlyRootfs: prof.ReadOnly,
		LogConfig:      container.LogConfig{Type: "none"},
	}
	if prof.NetworkDisabled {
		hostConfig.NetworkMode = "none"
	}

	var env []string
	workingDir := ""
	if opts.Workdir != nil {
		workingDir = workdir.MountTarget
		hostConfig.Mounts = append(hostConfig.Mounts, dockermount.Mount{
			Type:   dockermount.TypeVolume,
			Source: opts.Workdir.VolumeName,
			Target: workdir.MountTarget,
		})
		if c := opts.Workdir.NodeConstraintEnv(); c != "" {
			env = append(env, c)
		}
	}

	cmd := commandFor(prof, opts.Command)

	cli, err := engine.Client(r.EngineURL, engine.StandardPolicy)
	if err != nil {
		return nil, engine.Wrap("create", err)
	}

	containerName := r.namePrefix() + uuid.NewString()
	resp, createErr := cli.ContainerCreate(ctx,
		&container.Config{
			Image:      prof.Image,
			Cmd:        cmd,
			User:       prof.User,
			Env:        env,
			WorkingDir: workingDir,
			OpenStdin:  true,
			StdinOnce:  true,
		},
		hostConfig,
		nil,
		nil,
		containerName,
	)

	var id string
	switch {
	case createErr == nil && resp.ID == "":
		log.Warn().Str("name", containerName).Msg("container created but refresh didn't report an id, using name as handle")
		id = containerName
	case createErr == nil:
		id = resp.ID
	case errdefs.IsConflict(createErr):
		existing, inspectErr := cli.ContainerInspect(ctx, containerName)
		if inspectErr != nil {
			return nil, engine.Wrap("create", fmt.Errorf("container name conflict, lookup failed: %w", inspectErr))
		}
		id = existing.ID
	default:
		return nil, engine.Wrap("create", createErr)
	}

	if opts.Workdir != nil && opts.Workdir.Node == "" {
		if info, inspectErr := cli.ContainerInspect(ctx, id); inspectErr == nil && info.Node != nil {
			opts.Workdir.RecordNode(info.Node.Name)
		}
	}

	if len(opts.Files) > 0 {
		if err := stageFiles(ctx, r.EngineURL, id, workingDir, opts.Files); err != nil {
			return nil, engine.Wrap("create", err)
		}
	}

	return &Sandbox{
		ID:              uuid.NewString(),
		ContainerHandle: id,
		RealtimeLimitS:  merged.RealTimeSeconds(),
	}, nil
}

func commandFor(prof profile.Profile, override string) []string {
	command := override
	if command == "" {
		command = prof.DefaultCommand
	}
	if command == "" {
		command = "true"
	}
	return []string{"/bin/sh", "-c", command}
}

func stageFiles(ctx context.Context, engineURL, containerID, dest string, files []File) error {
	tarBytes, err := archive.Write(files)
	if err != nil {
		return fmt.Errorf("build upload archive: %w", err)
	}
	if dest == "" {
		dest = "/"
	}

	cli, err := engine.Client(engineURL, engine.UploadPolicy)
	if err != nil {
		return err
	}
	return cli.CopyToContainer(ctx, containerID, dest, bytes.NewReader(tarBytes), types.CopyToContainerOptions{})
}

// Start attaches to sandbox, feeds stdin, pumps output to completion,
// and inspects the terminated container to build a Result. A deadline
// elapsing in the communicator is reported as Result.Timeout rather than
// an error — the container is left running for the caller to Destroy.
func (r *Runtime) Start(ctx context.Context, sb *Sandbox, stdin []byte) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StartDuration)

	cli, err := engine.Client(r.EngineURL, engine.AttachPolicy)
	if err != nil {
		return Result{}, engine.Wrap("start", err)
	}

	outcome, err := attach.Communicate(ctx, cli, sb.ContainerHandle, attach.NewOptions(stdin, sb.RealtimeLimitS))
	if errors.Is(err, attach.ErrTimeout) {
		metrics.RecordResult(true, false)
		log.Info().Str("container", sb.ContainerHandle).Bool("timeout", true).
			Msg("sandbox run result")
		return Result{Timeout: true}, nil
	}
	if err != nil {
		return Result{}, engine.Wrap("start", err)
	}

	exitCode, err := waitForExit(ctx, r.EngineURL, sb.ContainerHandle)
	if err != nil {
		return Result{}, engine.Wrap("start", err)
	}

	info, err := cli.ContainerInspect(ctx, sb.ContainerHandle)
	if err != nil {
		return Result{}, engine.Wrap("start", err)
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, info.State.StartedAt)
	finishedAt, _ := time.Parse(time.RFC3339Nano, info.State.FinishedAt)
	timeout, duration := ClassifyTermination(exitCode, info.State.OOMKilled, startedAt, finishedAt)
	metrics.RecordResult(timeout, info.State.OOMKilled)

	result := Result{
		ExitCode:  &exitCode,
		Stdout:    outcome.Stdout,
		Stderr:    outcome.Stderr,
		DurationS: duration,
		Timeout:   timeout,
		OOMKilled: info.State.OOMKilled,
	}
	log.Info().
		Str("container", sb.ContainerHandle).
		Int("exit_code", exitCode).
		Bool("timeout", timeout).
		Bool("oom_killed", info.State.OOMKilled).
		Float64("duration", duration).
		Str("stdout", truncateForLog(outcome.Stdout)).
		Str("stderr", truncateForLog(outcome.Stderr)).
		Msg("sandbox run result")
	return result, nil
}

// waitForExit asks the engine for the container's exit status through
// the blocking wait endpoint, the authoritative source for the exit
// code — the container has already stopped by the time Start calls
// this, since attach.Communicate only returns once the attach stream
// closes, so WaitConditionNotRunning resolves immediately.
func waitForExit(ctx context.Context, engineURL, containerID string) (int, error) {
	cli, err := engine.Client(engineURL, engine.WaitPolicy)
	if err != nil {
		return 0, err
	}
	statusCh, errCh := cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		return int(status.StatusCode), nil
	case waitErr := <-errCh:
		return 0, fmt.Errorf("container wait: %w", waitErr)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// maxLoggedOutputBytes caps the stdout/stderr bytes embedded in the
// run-result log line so a noisy sandbox can't blow up log storage.
const maxLoggedOutputBytes = 100

func truncateForLog(b []byte) string {
	if len(b) <= maxLoggedOutputBytes {
		return string(b)
	}
	return string(b[:maxLoggedOutputBytes]) + " *** truncated ***"
}

// Destroy force-removes sb's container and any anonymous volumes the
// engine created for it. Failures are logged and swallowed: orphan
// containers are an out-of-band garbage collection problem, and
// Destroy must never raise from a deferred call.
func (r *Runtime) Destroy(ctx context.Context, sb *Sandbox) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DestroyDuration)

	cli, err := engine.Client(r.EngineURL, engine.StandardPolicy)
	if err != nil {
		log.Warn().Err(err).Str("container", sb.ContainerHandle).Msg("destroy: could not build engine client")
		return
	}

	err = cli.ContainerRemove(ctx, sb.ContainerHandle, types.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err == nil {
		return
	}
	if isNotFound(err) {
		log.Warn().Str("container", sb.ContainerHandle).Msg("destroy: container already gone")
		return
	}
	log.Warn().Err(err).Str("container", sb.ContainerHandle).Msg("destroy: engine remove failed")
}

func isNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// Run composes Create, Start, and a scoped Destroy: the container is
// always removed, even if Start fails or times out.
func (r *Runtime) Run(ctx context.Context, opts CreateOptions, stdin []byte) (Result, error) {
	sb, err := r.Create(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.Destroy(cleanupCtx, sb)
	}()

	return r.Start(ctx, sb, stdin)
}
