package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dutbench/internal/bench"
	"dutbench/internal/config"
	"dutbench/internal/dutstats"
	"dutbench/internal/generator"
	"dutbench/internal/latency"
	"dutbench/internal/logging"
	"dutbench/internal/preflight"
	"dutbench/internal/remote"
	"dutbench/internal/status"
	"dutbench/internal/traffic"
	"dutbench/internal/tui"
)

var (
	runOut         string
	runVM          int
	runConfigPath  string
	runSchemaPath  string
	runLogFile     string
	runSizes       []string
	runTUI         bool
	runStatusAddr  string
	runLogLevel    string
	runVerbose     bool
	runNoPreflight bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the packet size sweep against the DUT",
	Long: "run measures every packet size under the four traffic conditions and writes one " +
		"tab separated row of 12 fields per size to --out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(runLogLevel)
		if err != nil {
			return err
		}
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		sizes, err := cfg.PacketSizes()
		if err != nil {
			return err
		}
		if len(runSizes) > 0 {
			if sizes, err = traffic.ParseSizes(runSizes); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		isTerm := term.IsTerminal(int(os.Stdout.Fd()))
		useTUI := runTUI && isTerm
		logOut, closeLog, err := logDestination(useTUI, runOut)
		if err != nil {
			return err
		}
		defer closeLog()
		logger := logging.NewWithWriter(logOut, level).With("vm", runVM)
		ctx = logging.NewContext(ctx, logger)

		sup := generator.NewSupervisor(cfg.Generator.ProcessName)
		defer sup.KillAll()
		launcher, err := generator.NewLauncher(generator.Config{
			Command:   cfg.Generator.Command,
			LogPath:   cfg.Generator.LogPath,
			RandomArg: cfg.Generator.RandomArg,
			PTY:       cfg.Generator.PTY,
		}, sup)
		if err != nil {
			return err
		}

		resolver := remote.NewSSHConfigResolver(cfg.Remote.SSHConfig)
		dialer := remote.NewSSHDialer(resolver, cfg.Remote.DialTimeout.D(), cfg.Remote.KnownHosts)

		if !runNoPreflight {
			checker := &preflight.Checker{Resolver: resolver, Dialer: dialer, Generator: launcher}
			if cfg.Preflight.Ping {
				checker.Pinger = preflight.ICMPPinger{
					Count:      cfg.Preflight.PingCount,
					Timeout:    cfg.Preflight.PingTimeout.D(),
					Privileged: cfg.Preflight.Privileged,
				}
			}
			if err := checker.Run(ctx, cfg.Remote.Host); err != nil {
				return fmt.Errorf("preflight: %w", err)
			}
		}

		tracker := status.NewTracker(runVM, sizes)
		if runStatusAddr != "" {
			srv := status.NewServer(tracker)
			go func() {
				if err := srv.Start(ctx, runStatusAddr); err != nil {
					logger.Error("status server failed", "err", err)
				}
			}()
		}

		observers := bench.Observers{tracker}
		extraRows := []bench.RowWriter{tracker}
		var extraRuns []bench.RunWriter
		if useTUI {
			tw := tui.NewTUIWriter(runVM, sizes)
			defer tw.Close()
			observers = append(observers, tw)
			extraRows = append(extraRows, tw)
			extraRuns = append(extraRuns, tw)
		}

		out, err := newSinks(sinkOptions{
			Out:       runOut,
			LogFile:   runLogFile,
			Quiet:     useTUI,
			Verbose:   runVerbose,
			Color:     isTerm,
			ExtraRows: extraRows,
			ExtraRuns: extraRuns,
		})
		if err != nil {
			return err
		}
		defer out.Close()

		orch, err := bench.New(bench.Options{
			HostAlias:      cfg.Remote.Host,
			TargetID:       runVM,
			HighRate:       cfg.Rates.High,
			LowRate:        cfg.Rates.Low,
			RemoteCommand:  cfg.Remote.Command,
			SettleDelay:    cfg.Timing.SettleDelay.D(),
			InterruptGrace: cfg.Timing.InterruptGrace.D(),
			ArchiveLogs:    cfg.ArchiveLogs,
		}, bench.Deps{
			Launcher: launcher,
			Watcher: &generator.Watcher{
				Grace:    cfg.Timing.StartGrace.D(),
				Interval: cfg.Timing.PollInterval.D(),
				Timeout:  cfg.Timing.StartupTimeout.D(),
			},
			Dialer:   dialer,
			Stats:    dutstats.NewCollector(),
			Latency:  latency.NewParser(),
			Sweeper:  sup,
			Observer: observers,
			Runs:     out.Runs,
			Rows:     out.Rows,
		})
		if err != nil {
			return err
		}

		logger.Info("sweep starting", "sizes", len(sizes), "host", cfg.Remote.Host, "out", runOut)
		rows, err := orch.Sweep(ctx, sizes)
		logger.Info("sweep finished", "rows", len(rows), "of", len(sizes))
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("sweep interrupted after %d of %d sizes: %w", len(rows), len(sizes), err)
			}
			return err
		}
		return nil
	},
}

// logDestination keeps logs off the terminal while the TUI owns it by
// writing them next to the output file.
func logDestination(useTUI bool, out string) (io.Writer, func(), error) {
	if !useTUI {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(out+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func init() {
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "Path of the TSV result file")
	runCmd.Flags().IntVar(&runVM, "vm", 0, "Target VM id passed to the generator and the DUT script")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a bench configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "", "Path to a CUE schema overriding the built-in one")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export rows and run details (JSONL)")
	runCmd.Flags().StringSliceVar(&runSizes, "sizes", nil, "Packet sizes to sweep (e.g. 64,1500,random)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the interactive progress view")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "Serve sweep status over HTTP on this address (e.g. :8080)")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every run record to stdout")
	runCmd.Flags().BoolVar(&runNoPreflight, "no-preflight", false, "Skip the reachability checks before the sweep")
	runCmd.MarkFlagRequired("out")
	runCmd.MarkFlagRequired("vm")
}
