package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// tailer reads a growing log file incrementally. It remembers the byte
// offset reached on the previous read and any unterminated last line.
type tailer struct {
	path    string
	offset  int64
	partial []byte
}

// newTailer starts tailing path at offset. Content before offset is never
// scanned.
func newTailer(path string, offset int64) *tailer {
	return &tailer{path: path, offset: offset}
}

// lines returns the lines appended since the last call. The unterminated
// last line, if any, is included and kept so that it is returned again,
// completed, on a later call. A missing file yields no lines.
func (t *tailer) lines() ([]string, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	if stat.Size() < t.offset {
		// Truncated or replaced: start over.
		t.offset = 0
		t.partial = nil
	}
	if stat.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking log: %w", err)
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	t.offset += int64(len(chunk))

	data := append(t.partial, chunk...)
	var out []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		out = append(out, string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	t.partial = append([]byte(nil), data...)
	if len(t.partial) > 0 {
		out = append(out, string(t.partial))
	}
	return out, nil
}

// fileSize returns the size of path, or 0 when it does not exist.
func fileSize(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return stat.Size()
}
