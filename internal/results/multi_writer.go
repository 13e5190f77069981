package results

import (
	"errors"

	"dutbench/internal/bench"
)

// MultiWriter fans rows and runs out to multiple writers. A failing writer
// does not keep the others from receiving the record.
type MultiWriter struct {
	rowWriters []bench.RowWriter
	runWriters []bench.RunWriter
}

// NewMultiWriter creates a new MultiWriter. Nil entries are skipped.
func NewMultiWriter(rws []bench.RowWriter, runs []bench.RunWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range rws {
		if w != nil {
			mw.rowWriters = append(mw.rowWriters, w)
		}
	}
	for _, w := range runs {
		if w != nil {
			mw.runWriters = append(mw.runWriters, w)
		}
	}
	return mw
}

// WriteRow sends a row to all row writers.
func (mw *MultiWriter) WriteRow(rec bench.RowRecord) error {
	var errs []error
	for _, w := range mw.rowWriters {
		if err := w.WriteRow(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteRun sends a run record to all run writers.
func (mw *MultiWriter) WriteRun(rec bench.RunRecord) error {
	var errs []error
	for _, w := range mw.runWriters {
		if err := w.WriteRun(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
