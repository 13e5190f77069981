package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dutbench/internal/bench"
)

// ReplayLog reads a JSONL log from r and forwards row entries to rows and
// run entries to runs. Either writer may be nil.
func ReplayLog(r io.Reader, rows bench.RowWriter, runs bench.RunWriter) error {
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("entry %d: %w", line, err)
		}
		switch {
		case e.Kind == KindRow && e.Row != nil:
			if rows != nil {
				if err := rows.WriteRow(*e.Row); err != nil {
					return err
				}
			}
		case e.Kind == KindRun && e.Run != nil:
			if runs != nil {
				if err := runs.WriteRun(*e.Run); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("entry %d: unknown kind %q", line, e.Kind)
		}
	}
}

// ReplayLogFile opens a file and replays its entries.
func ReplayLogFile(path string, rows bench.RowWriter, runs bench.RunWriter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, rows, runs)
}
