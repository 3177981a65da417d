// Package attach implements the non-blocking, bidirectional pump that
// drives a created-but-not-started container to termination over its
// hijacked attach stream.
//
// The engine multiplexes stdout/stderr and accepts stdin on one hijacked
// TCP/unix-socket connection. A naive blocking read-then-write pair
// would stall if the container writes more than the kernel's buffer
// before draining stdin, so the read and write halves run on independent
// goroutines synchronized by a shared deadline — the Go-native
// equivalent of the select-driven, non-blocking-fd design the original
// runtime used (see DESIGN.md for the full rationale).
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/sandboxrun/epicbox/internal/stream"
)

// ErrTimeout is returned when the deadline elapses before the engine
// closes the attach stream. The container is intentionally NOT killed
// here — the caller classifies and later destroys it.
var ErrTimeout = errors.New("attach: realtime deadline exceeded")

const (
	readChunkSize = 4096
	tickInterval  = 1 * time.Second

	// startRetries bounds the number of times a container start is
	// retried after a devicemapper/udev race
	// (https://github.com/docker/docker/issues/4036) surfaces as a
	// start failure.
	startRetries = 10
)

// Options configures one Communicate call.
type Options struct {
	// Stdin is delivered over the attach socket's write half. Empty
	// means the write half is shut down immediately after attach so the
	// container sees EOF on its stdin right away.
	Stdin []byte

	// StartAfterAttach starts the container once the attach socket is
	// open, matching epicbox's "always attach before start" ordering.
	// Defaults to true via NewOptions.
	StartAfterAttach bool

	// DeadlineSeconds bounds the wall-clock lifetime of the pump.
	DeadlineSeconds int
}

// NewOptions builds Options with StartAfterAttach defaulted to true.
func NewOptions(stdin []byte, deadlineSeconds int) Options {
	return Options{Stdin: stdin, StartAfterAttach: true, DeadlineSeconds: deadlineSeconds}
}

// Result carries the demultiplexed output collected before termination.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Communicate opens an attach socket on containerID, optionally starts
// it, pumps stdin in and stdout/stderr out until the container's write
// half closes (or the stream resets), and returns the demultiplexed
// output. It returns ErrTimeout if opts.DeadlineSeconds elapses first.
func Communicate(ctx context.Context, cli *client.Client, containerID string, opts Options) (Result, error) {
	hijacked, err := cli.ContainerAttach(ctx, containerID, types.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
		Logs:   false,
	})
	if err != nil {
		return Result{}, fmt.Errorf("attach: %w", err)
	}
	defer hijacked.Close()

	if len(opts.Stdin) == 0 {
		closeWrite(hijacked)
	}

	if opts.StartAfterAttach {
		if err := startWithRetry(ctx, cli, containerID); err != nil {
			return Result{}, fmt.Errorf("start: %w", err)
		}
	}

	writerDone := make(chan error, 1)
	if len(opts.Stdin) > 0 {
		go func() {
			_, werr := hijacked.Conn.Write(opts.Stdin)
			if werr != nil {
				writerDone <- werr
				return
			}
			closeWrite(hijacked)
			writerDone <- nil
		}()
	} else {
		writerDone <- nil
	}

	buf, readErr := pump(hijacked, opts.DeadlineSeconds, writerDone)
	if readErr != nil {
		return Result{}, readErr
	}

	stdout, stderr := stream.Demux(buf)
	return Result{Stdout: stdout, Stderr: stderr}, nil
}

func pump(hijacked types.HijackedResponse, deadlineSeconds int, writerDone <-chan error) ([]byte, error) {
	deadline := time.Now().Add(time.Duration(deadlineSeconds) * time.Second)
	var all []byte
	chunk := make([]byte, readChunkSize)

	for {
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		select {
		case werr := <-writerDone:
			if werr != nil && isBrokenPipe(werr) {
				log.Warn().Err(werr).Msg("stdin write failed, peer closed stdin early")
				return all, nil
			}
		default:
		}

		tickDeadline := time.Now().Add(tickInterval)
		if tickDeadline.After(deadline) {
			tickDeadline = deadline
		}
		hijacked.Conn.SetReadDeadline(tickDeadline)

		n, err := hijacked.Reader.Read(chunk)
		if n > 0 {
			all = append(all, chunk[:n:n]...)
		}
		if err == nil {
			continue
		}

		if isTimeout(err) {
			continue
		}
		if err == io.EOF {
			return all, nil
		}
		if isConnReset(err) {
			log.Warn().Err(err).Msg("attach stream reset by peer")
			return all, nil
		}
		return nil, fmt.Errorf("attach stream read: %w", err)
	}
}

// startWithRetry starts a container, retrying a bounded number of times
// when the engine reports a devicemapper error: a known race between the
// devicemapper storage driver and udev device-node creation can make a
// start fail transiently right after create.
func startWithRetry(ctx context.Context, cli *client.Client, containerID string) error {
	var err error
	for attempt := startRetries + 1; attempt > 0; attempt-- {
		err = cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{})
		if err == nil {
			return nil
		}
		if attempt == 1 || !strings.Contains(err.Error(), "devicemapper") {
			return err
		}
		log.Info().Err(err).Str("container", containerID).Int("retries_left", attempt-1).
			Msg("start failed on a devicemapper/udev race, retrying")
	}
	return err
}

func closeWrite(hijacked types.HijackedResponse) {
	if cw, ok := hijacked.Conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			log.Debug().Err(err).Msg("stdin half-close failed")
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed)
}
