package results

import (
	"encoding/json"
	"os"
	"sync"

	"dutbench/internal/bench"
)

// Entry is one line of the JSONL log. Exactly one of Row and Run is set.
type Entry struct {
	Kind string           `json:"kind"`
	Row  *bench.RowRecord `json:"row,omitempty"`
	Run  *bench.RunRecord `json:"run,omitempty"`
}

const (
	KindRow = "row"
	KindRun = "run"
)

// JSONLWriter logs rows and run details as JSON lines.
type JSONLWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewJSONLWriter creates path and writes entries to it.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{f: f, enc: json.NewEncoder(f)}, nil
}

// WriteRow logs a finished row.
func (j *JSONLWriter) WriteRow(rec bench.RowRecord) error {
	return j.encode(Entry{Kind: KindRow, Row: &rec})
}

// WriteRun logs a finished run.
func (j *JSONLWriter) WriteRun(rec bench.RunRecord) error {
	return j.encode(Entry{Kind: KindRun, Run: &rec})
}

func (j *JSONLWriter) encode(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(e)
}

// Close closes the underlying file.
func (j *JSONLWriter) Close() error {
	return j.f.Close()
}
