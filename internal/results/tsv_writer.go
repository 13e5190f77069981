package results

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"dutbench/internal/bench"
)

// TSVWriter appends one formatted line per packet size. Each line is synced
// before WriteRow returns so a crash keeps every finished row.
type TSVWriter struct {
	mu sync.Mutex
	w  io.Writer
	f  *os.File
}

// NewTSVWriter truncates path and writes rows to it.
func NewTSVWriter(path string) (*TSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &TSVWriter{w: f, f: f}, nil
}

// NewTSVStream writes rows to w, which the caller owns.
func NewTSVStream(w io.Writer) *TSVWriter {
	return &TSVWriter{w: w}
}

// WriteRow writes rec as a tab separated line.
func (t *TSVWriter) WriteRow(rec bench.RowRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintln(t.w, rec.Values.Format()); err != nil {
		return err
	}
	if t.f != nil {
		return t.f.Sync()
	}
	return nil
}

// Close closes the file, if the writer owns one.
func (t *TSVWriter) Close() error {
	if t.f == nil {
		return nil
	}
	return t.f.Close()
}
