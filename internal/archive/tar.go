// Package archive serializes file payloads into the in-memory tar
// archives the container engine's put-archive endpoint expects.
package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"time"
)

// File is a single entry to stage into a sandbox's working directory.
type File struct {
	Name    string
	Content []byte
}

// Write serializes files into an uncompressed tar stream. Entries whose
// Name is empty are skipped — a deliberate permissive policy matching
// the original sandbox runtime's handling of malformed file records.
// Each entry's ModTime is set to now; mode is fixed at 0644.
func Write(files []File) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	for _, f := range files {
		if f.Name == "" {
			continue
		}
		header := &tar.Header{
			Name:    f.Name,
			Size:    int64(len(f.Content)),
			Mode:    0644,
			ModTime: now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("tar write header for %q: %w", f.Name, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("tar write body for %q: %w", f.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("tar close: %w", err)
	}
	return buf.Bytes(), nil
}
