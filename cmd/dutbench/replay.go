package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dutbench/internal/results"
)

var (
	replayInput string
	replayOut   string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-render result rows from a JSONL log",
	Long:  "replay reads a log written with run --log-file and writes its rows in the TSV result format to stdout or --out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		var tw *results.TSVWriter
		if replayOut == "" {
			tw = results.NewTSVStream(cmd.OutOrStdout())
		} else {
			var err error
			if tw, err = results.NewTSVWriter(replayOut); err != nil {
				return err
			}
		}
		defer tw.Close()
		return results.ReplayLogFile(replayInput, tw, nil)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSONL result log")
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "", "Write rows to this file instead of stdout")
	replayCmd.MarkFlagRequired("input")
}
