package main

import (
	"errors"
	"io"
	"os"

	"dutbench/internal/bench"
	"dutbench/internal/results"
)

// sinkOptions selects the row and run sinks for a sweep.
type sinkOptions struct {
	Out     string
	LogFile string
	// Quiet disables stdout printing, used while the TUI owns the terminal.
	Quiet   bool
	Verbose bool
	Color   bool
	// Extra sinks such as the status tracker or the TUI.
	ExtraRows []bench.RowWriter
	ExtraRuns []bench.RunWriter
}

// sinks is the fan-out handed to the orchestrator.
type sinks struct {
	Rows    bench.RowWriter
	Runs    bench.RunWriter
	closers []io.Closer
}

// Close closes every file backed sink.
func (s *sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newSinks sets up the TSV output file plus the optional stdout, JSONL and
// GreptimeDB sinks. GreptimeDB is used when GREPTIMEDB_ENDPOINT is set.
func newSinks(opts sinkOptions) (*sinks, error) {
	s := &sinks{}
	var rows []bench.RowWriter
	var runs []bench.RunWriter

	tsv, err := results.NewTSVWriter(opts.Out)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, tsv)
	rows = append(rows, tsv)

	if !opts.Quiet {
		sw := results.NewStdoutWriter(opts.Verbose)
		sw.Color = opts.Color
		rows = append(rows, sw)
		runs = append(runs, sw)
	}

	if opts.LogFile != "" {
		jw, err := results.NewJSONLWriter(opts.LogFile)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, jw)
		rows = append(rows, jw)
		runs = append(runs, jw)
	}

	gw, err := greptimeWriter()
	if err != nil {
		s.Close()
		return nil, err
	}
	if gw != nil {
		rows = append(rows, gw)
		runs = append(runs, gw)
	}

	rows = append(rows, opts.ExtraRows...)
	runs = append(runs, opts.ExtraRuns...)
	mw := results.NewMultiWriter(rows, runs)
	s.Rows, s.Runs = mw, mw
	return s, nil
}

func greptimeWriter() (*results.GreptimeDBWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	return results.NewGreptimeDBWriter(endpoint, database, os.Getenv("GREPTIMEDB_TABLE"), os.Getenv("GREPTIMEDB_RUN_TABLE"))
}
