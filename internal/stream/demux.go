// Package stream decodes the container engine's multiplexed attach/logs
// byte stream into separate stdout and stderr buffers.
package stream

import "encoding/binary"

// Frame header layout for a non-TTY attach/logs stream: selector byte,
// three zero padding bytes, then a 32-bit big-endian payload length.
const headerSize = 8

const (
	selectorStdout = 1
	selectorStderr = 2
)

// Demux walks buf frame by frame and returns the concatenation of all
// stdout-selected payloads and all stderr-selected payloads, in arrival
// order. Selectors other than stdout/stderr (0 and >=3) are ignored. A
// trailing fragment shorter than a full header is discarded, since the
// producer always flushes whole frames before closing the stream.
func Demux(buf []byte) (stdout, stderr []byte) {
	walker := 0
	for len(buf)-walker >= headerSize {
		header := buf[walker : walker+headerSize]
		selector := header[0]
		length := binary.BigEndian.Uint32(header[4:8])

		start := walker + headerSize
		end := start + int(length)
		if end > len(buf) {
			// Producer promised more payload than we have; treat as a
			// short trailing fragment and stop.
			break
		}

		payload := buf[start:end]
		switch selector {
		case selectorStdout:
			stdout = append(stdout, payload...)
		case selectorStderr:
			stderr = append(stderr, payload...)
		}
		walker = end
	}
	return stdout, stderr
}

// Frame encodes a single (selector, payload) pair using the same header
// layout Demux decodes. Used by tests to build synthetic mux streams.
func Frame(selector byte, payload []byte) []byte {
	header := make([]byte, headerSize)
	header[0] = selector
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	return append(header, payload...)
}

// StdoutSelector and StderrSelector expose the selector byte values for
// callers building frames with Frame.
const (
	StdoutSelector = selectorStdout
	StderrSelector = selectorStderr
)
