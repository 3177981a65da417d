// Package sandbox implements the sandbox lifecycle: create, start,
// destroy, and the convenience run that composes them. It is the layer
// that turns a profile, a set of limits, and a working directory into a
// running container and, eventually, a terminated one.
package sandbox

import (
	"github.com/sandboxrun/epicbox/internal/archive"
)

// File is a single upload staged into a sandbox's working directory
// before start. It is the same shape archive.Write consumes.
type File = archive.File

// Sandbox is a handle returned by Create and consumed by Start/Destroy.
// It must be destroyed exactly once; Run enforces that via a deferred
// Destroy.
type Sandbox struct {
	ID              string
	ContainerHandle string
	RealtimeLimitS  int
}

// Result describes how a sandbox terminated.
type Result struct {
	// ExitCode is nil iff the sandbox was terminated by a wall-clock
	// timeout before a wait/inspect could observe a real exit code.
	ExitCode *int
	Stdout   []byte
	Stderr   []byte
	// DurationS is -1 when the engine reports FinishedAt preceding
	// StartedAt, a known engine timestamp oddity; never "corrected".
	DurationS float64
	Timeout   bool
	OOMKilled bool
}
