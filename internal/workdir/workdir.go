// Package workdir implements the scoped, named engine volume that lets
// sandbox file state persist across multiple sandbox invocations.
package workdir

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MountTarget is the fixed path inside the container a WorkingDirectory
// is bind-mounted at.
const MountTarget = "/sandbox"

// defaultNamePrefix names volumes acquired for a real engine.
const defaultNamePrefix = "epicbox-"

// testNamePrefix marks volumes acquired by a test harness, so an
// operator-side reaper can filter test debris by prefix, mirroring the
// container-naming convention in internal/sandbox.
const testNamePrefix = "epicbox-test-"

// managedLabel marks volumes created by this package so an operator-level
// reaper can find orphans by label. Containers carry no such label.
const managedLabel = "xyz.epicbox.managed"

// Handle is a named engine volume scoped to the lifetime of one
// epicbox.WorkingDirectory call. It may be borrowed by multiple sequential
// sandbox runs, but must not be shared between scopes.
type Handle struct {
	VolumeName string
	// Node is populated lazily the first time a sandbox runs against
	// this handle and the engine reports a Swarm Node attribute.
	Node string
}

// NodeConstraintEnv returns the environment variable that pins a
// follow-up container to the same Swarm node as a prior run against
// this handle, or "" if no node has been recorded yet.
func (h *Handle) NodeConstraintEnv() string {
	if h.Node == "" {
		return ""
	}
	return "constraint:node==" + h.Node
}

// Acquire creates a uniquely-named volume through the engine.
func Acquire(ctx context.Context, cli *client.Client) (*Handle, error) {
	return acquireWithPrefix(ctx, cli, defaultNamePrefix)
}

// AcquireForTest is Acquire with testNamePrefix, for use by test
// harnesses that want their working-directory volumes distinguishable
// from production ones.
func AcquireForTest(ctx context.Context, cli *client.Client) (*Handle, error) {
	return acquireWithPrefix(ctx, cli, testNamePrefix)
}

func acquireWithPrefix(ctx context.Context, cli *client.Client, prefix string) (*Handle, error) {
	name := prefix + uuid.NewString()
	_, err := cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: map[string]string{managedLabel: "true"},
	})
	if err != nil {
		return nil, fmt.Errorf("create working directory volume %s: %w", name, err)
	}
	log.Info().Str("volume", name).Msg("working directory volume created")
	return &Handle{VolumeName: name}, nil
}

// Release removes the volume. Failures are logged and swallowed —
// cleanup is best-effort; a "not found" response is downgraded to a
// warning since the volume may already be gone, anything else is logged
// at error level but never propagated — cleanup here is always
// best-effort.
func Release(ctx context.Context, cli *client.Client, h *Handle) {
	if h == nil {
		return
	}
	err := cli.VolumeRemove(ctx, h.VolumeName, true)
	if err == nil {
		log.Info().Str("volume", h.VolumeName).Msg("working directory volume released")
		return
	}
	if client.IsErrNotFound(err) {
		log.Warn().Str("volume", h.VolumeName).Msg("working directory volume already gone")
		return
	}
	log.Error().Err(err).Str("volume", h.VolumeName).Msg("failed to remove working directory volume")
}

// RecordNode populates h.Node the first time it is observed, given the
// Swarm node name reported by a container inspect. A blank nodeName is a
// no-op (non-Swarm engines never report one).
func (h *Handle) RecordNode(nodeName string) {
	if h.Node != "" || nodeName == "" {
		return
	}
	h.Node = nodeName
}
