package sandbox

import "time"

// Signal numbers epicbox cares about, encoded the way the engine reports
// a signal-killed process: ExitCode = 128 + signal.
const (
	sigKill = 9
	sigXCPU = 24
)

// ClassifyTermination maps one inspected container exit state to the
// timeout flag and duration in seconds. It is a pure function of the
// inspect result so termination edge cases can be driven directly in
// tests without an engine.
//
// A container killed by SIGXCPU (cpu-time ulimit exceeded) or by
// SIGKILL for a runaway process looks, from the exit code alone, just
// like the OOM-killer's own SIGKILL — the discriminator is OOMKilled.
// When it's false, that combination is reported as a timeout even
// though a concrete exit code was reached.
func ClassifyTermination(exitCode int, oomKilled bool, startedAt, finishedAt time.Time) (timeout bool, durationS float64) {
	durationS = finishedAt.Sub(startedAt).Seconds()
	if durationS < 0 {
		durationS = -1
	}

	signal := exitCode - 128
	if !oomKilled && (signal == sigKill || signal == sigXCPU) {
		timeout = true
	}
	return timeout, durationS
}
