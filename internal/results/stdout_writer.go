// Writer implementation printing results to STDOUT
package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dutbench/internal/bench"
)

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
)

// StdoutWriter prints each row as the packet size banner followed by the
// formatted line. Runs are printed as JSON when Verbose is set.
type StdoutWriter struct {
	Out     io.Writer
	Verbose bool
	// Color highlights the banner red when runs failed, green otherwise.
	Color bool
}

// NewStdoutWriter prints to os.Stdout.
func NewStdoutWriter(verbose bool) *StdoutWriter {
	return &StdoutWriter{Out: os.Stdout, Verbose: verbose}
}

// WriteRow outputs a single row.
func (w *StdoutWriter) WriteRow(rec bench.RowRecord) error {
	banner := fmt.Sprintf("Packet Size %s, VM %d, failed runs %d", rec.Size, rec.TargetID, rec.Failures)
	if w.Color {
		color := colorGreen
		if rec.Failures > 0 {
			color = colorRed
		}
		banner = color + banner + colorReset
	}
	fmt.Fprintln(w.Out, banner)
	fmt.Fprintln(w.Out, rec.Values.Format())
	return nil
}

// WriteRun outputs a run record in verbose mode.
func (w *StdoutWriter) WriteRun(rec bench.RunRecord) error {
	if !w.Verbose {
		return nil
	}
	data, _ := json.Marshal(rec)
	fmt.Fprintln(w.Out, string(data))
	return nil
}
