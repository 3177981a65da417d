// Package limits normalizes and defaults the resource constraints applied
// to a sandbox, and derives the engine-level ulimit/host-config values
// from them.
package limits

import "github.com/docker/docker/api/types/container"

// Unlimited marks Processes as having no cap.
const Unlimited = -1

// CPUToRealTimeFactor is the multiplier applied to CPUTimeS to derive
// RealTimeS when the caller did not supply a real-time limit.
const CPUToRealTimeFactor = 5

// Defaults mirror the original sandbox runtime's defaults: 1 second of
// CPU time, 5 seconds of wall-clock time, 64MB of memory, and no cap on
// processes or file size.
var Defaults = Spec{
	CPUTimeS: ptr(1),
	RealTimeS: ptr(5),
	MemoryMB: ptr(64),
}

// Spec is the semantic, engine-agnostic description of a sandbox's
// resource limits. Fields are nil when unset ("none"/uncapped).
type Spec struct {
	CPUTimeS      *int
	RealTimeS     *int
	MemoryMB      *int
	Processes     *int // Unlimited (-1) means no cap.
	FileSizeBytes *int64
}

func ptr[T any](v T) *T { return &v }

// Merge overrides Defaults with any fields present in overrides, then
// derives RealTimeS from CPUTimeS when the caller left RealTimeS unset.
//
// Merge(nil) and Merge(&Spec{}) both return a copy of Defaults.
func Merge(overrides *Spec) Spec {
	result := Defaults
	if overrides == nil {
		return result
	}

	realTimeSpecified := overrides.RealTimeS != nil

	if overrides.CPUTimeS != nil {
		result.CPUTimeS = overrides.CPUTimeS
	}
	if overrides.RealTimeS != nil {
		result.RealTimeS = overrides.RealTimeS
	}
	if overrides.MemoryMB != nil {
		result.MemoryMB = overrides.MemoryMB
	}
	if overrides.Processes != nil {
		result.Processes = overrides.Processes
	}
	if overrides.FileSizeBytes != nil {
		result.FileSizeBytes = overrides.FileSizeBytes
	}

	if !realTimeSpecified && result.CPUTimeS != nil {
		result.RealTimeS = ptr(*result.CPUTimeS * CPUToRealTimeFactor)
	}

	return result
}

// Ulimits derives the engine ulimit array for this configuration. CPU time maps to
// the "cpu" ulimit (soft == hard); file size maps to "fsize". Processes
// and memory are NOT ulimits — they are carried via HostConfig's
// PidsLimit/Memory fields instead (see MemoryBytes/PidsLimit below).
func (s Spec) Ulimits() []*container.Ulimit {
	var out []*container.Ulimit
	if s.CPUTimeS != nil {
		cpu := int64(*s.CPUTimeS)
		out = append(out, &container.Ulimit{Name: "cpu", Soft: cpu, Hard: cpu})
	}
	if s.FileSizeBytes != nil {
		out = append(out, &container.Ulimit{Name: "fsize", Soft: *s.FileSizeBytes, Hard: *s.FileSizeBytes})
	}
	return out
}

// MemoryBytes converts MemoryMB to bytes for HostConfig.Memory /
// HostConfig.MemorySwap. Returns 0 (no limit) when MemoryMB is unset.
func (s Spec) MemoryBytes() int64 {
	if s.MemoryMB == nil {
		return 0
	}
	return int64(*s.MemoryMB) * 1024 * 1024
}

// PidsLimit returns the value to set on HostConfig.PidsLimit: nil for
// "unset" (engine default), -1 for explicitly unlimited, or the cap.
func (s Spec) PidsLimit() *int64 {
	if s.Processes == nil {
		return nil
	}
	v := int64(*s.Processes)
	return &v
}

// RealTimeSeconds returns the wall-clock deadline in seconds, or 0 if
// unset. Merge always populates it from Defaults. A zero deadline handed
// to attach.Communicate counts as already elapsed, not as "no deadline".
func (s Spec) RealTimeSeconds() int {
	if s.RealTimeS == nil {
		return 0
	}
	return *s.RealTimeS
}
