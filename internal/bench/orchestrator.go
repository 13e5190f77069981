// Package bench sequences the benchmark: for every packet size it runs the
// four traffic conditions one after another and merges them into a row.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/google/uuid"

	"dutbench/internal/dutstats"
	"dutbench/internal/generator"
	"dutbench/internal/latency"
	"dutbench/internal/logging"
	"dutbench/internal/remote"
	"dutbench/internal/traffic"
)

// DefaultRemoteCommand runs the stats script on the DUT.
const DefaultRemoteCommand = "python scripts/stats.py {{.Respond}} {{.TargetID}}"

// Launcher starts a generator for a condition.
type Launcher interface {
	Launch(ctx context.Context, c traffic.Condition) (generator.Handle, error)
}

// StartWaiter blocks until a launched generator transmits.
type StartWaiter interface {
	WaitForStart(ctx context.Context, h generator.Handle) error
}

// StatsParser turns the remote report into a measurement.
type StatsParser interface {
	Parse(lines []string) (dutstats.Measurement, error)
}

// LatencyReader reads the RTT summary from a generator log.
type LatencyReader interface {
	ParseFile(path string) (latency.Measurement, error)
}

// Sweeper kills generators left over from earlier runs.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Options are the experiment parameters.
type Options struct {
	HostAlias string
	TargetID  int
	HighRate  int
	LowRate   int
	// RemoteCommand is a text/template rendered with Respond, TargetID, Rate
	// and Size.
	RemoteCommand  string
	SettleDelay    time.Duration
	InterruptGrace time.Duration
	ArchiveLogs    bool
}

// Deps are the collaborators of an Orchestrator. Observer, Runs and Rows are
// optional.
type Deps struct {
	Launcher Launcher
	Watcher  StartWaiter
	Dialer   remote.Dialer
	Stats    StatsParser
	Latency  LatencyReader
	Sweeper  Sweeper
	Observer StateObserver
	Runs     RunWriter
	Rows     RowWriter
}

// Orchestrator runs conditions strictly one at a time.
type Orchestrator struct {
	opts Options
	deps Deps
	cmd  *template.Template
	now  func() time.Time
}

// New validates opts and deps.
func New(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Launcher == nil || deps.Watcher == nil || deps.Dialer == nil ||
		deps.Stats == nil || deps.Latency == nil || deps.Sweeper == nil {
		return nil, errors.New("bench: missing collaborator")
	}
	if opts.RemoteCommand == "" {
		opts.RemoteCommand = DefaultRemoteCommand
	}
	if opts.InterruptGrace <= 0 {
		opts.InterruptGrace = generator.InterruptGrace
	}
	tmpl, err := template.New("remote").Option("missingkey=error").Parse(opts.RemoteCommand)
	if err != nil {
		return nil, fmt.Errorf("bench: remote command template: %w", err)
	}
	return &Orchestrator{opts: opts, deps: deps, cmd: tmpl, now: time.Now}, nil
}

// RemoteCommand renders the DUT command for c.
func (o *Orchestrator) RemoteCommand(c traffic.Condition) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Respond  int
		TargetID int
		Rate     int
		Size     traffic.PacketSize
	}{c.RespondFlag(), c.TargetID, c.Rate, c.Size}
	if err := o.cmd.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (o *Orchestrator) transition(res *RunResult, s State) {
	res.State = s
	if o.deps.Observer != nil {
		o.deps.Observer.ObserveState(StateEvent{
			RunID:     res.RunID,
			Condition: res.Condition,
			State:     s,
			Failure:   res.Failure,
			Time:      o.now(),
		})
	}
}

// RunCondition executes one run. Teardown always happens, also after a
// failed launch or a cancelled context.
func (o *Orchestrator) RunCondition(ctx context.Context, c traffic.Condition) RunResult {
	res := RunResult{RunID: uuid.NewString(), Condition: c, Started: o.now()}
	logger := logging.FromContext(ctx).With("run", res.RunID, "size", string(c.Size), "condition", c.Kind.String())
	ctx = logging.NewContext(ctx, logger)
	logger.Info("running " + c.Kind.String())

	o.transition(&res, Launching)
	h, err := o.deps.Launcher.Launch(ctx, c)
	if err == nil {
		o.transition(&res, AwaitingStart)
		err = o.deps.Watcher.WaitForStart(ctx, h)
		if err == nil {
			logger.Info("TX started")
			o.transition(&res, CollectingRemote)
			res.Stats, err = o.collect(ctx, c)
		}
	}

	o.transition(&res, TearingDown)
	o.teardown(ctx, h, &res)

	res.Finished = o.now()
	if err != nil {
		res.Err = err
		res.Failure = Classify(err)
		o.transition(&res, Failed)
		logger.Warn("run failed", "kind", string(res.Failure), "err", err)
	} else {
		o.transition(&res, Complete)
		logger.Info("run complete",
			"rx_mean_kpps", res.Stats.RxMeanKpps,
			"rx_stdev_kpps", res.Stats.RxStdevKpps,
			"cpu", res.Stats.CPUUsagePercent,
			"rtt_mean", res.Latency.RTTMean,
			"rtt_stdev", res.Latency.RTTStdev)
	}
	return res
}

func (o *Orchestrator) collect(ctx context.Context, c traffic.Condition) (dutstats.Measurement, error) {
	cmd, err := o.RemoteCommand(c)
	if err != nil {
		return dutstats.Measurement{}, fmt.Errorf("%w: %v", remote.ErrExec, err)
	}
	sess, err := o.deps.Dialer.Dial(ctx, o.opts.HostAlias)
	if err != nil {
		return dutstats.Measurement{}, err
	}
	defer sess.Close()

	out, err := sess.Exec(ctx, cmd)
	if err != nil {
		var ee *remote.ExecError
		if errors.As(err, &ee) {
			for _, l := range ee.Stderr {
				logging.FromContext(ctx).Warn("dut stderr", "line", l)
			}
		}
		return dutstats.Measurement{}, err
	}
	return o.deps.Stats.Parse(out.Stdout)
}

// teardown stops the generator, reads its summary and clears stragglers.
// It keeps going when ctx is already cancelled.
func (o *Orchestrator) teardown(ctx context.Context, h generator.Handle, res *RunResult) {
	logger := logging.FromContext(ctx)
	bg := context.WithoutCancel(ctx)

	if h != nil {
		if err := h.Interrupt(); err != nil {
			logger.Warn("interrupt generator failed", "err", err)
		}
		if !h.Wait(o.opts.InterruptGrace) {
			logger.Warn("generator ignored interrupt, killing", "pid", h.Pid())
			if err := h.ForceKill(); err != nil {
				logger.Warn("kill generator failed", "err", err)
			}
			h.Wait(o.opts.InterruptGrace)
		}
		if err := h.Close(); err != nil {
			logger.Warn("close generator log failed", "err", err)
		}
		_ = sleep(ctx, o.opts.SettleDelay)

		lat, err := o.deps.Latency.ParseFile(h.LogPath())
		if err != nil {
			logger.Warn("read latency summary failed", "log", h.LogPath(), "err", err)
		}
		res.Latency = lat

		if o.opts.ArchiveLogs {
			dst := fmt.Sprintf("%s.%s.%s", h.LogPath(), res.Condition.Size, res.Condition.Kind.Slug())
			if err := copyFile(h.LogPath(), dst); err != nil {
				logger.Warn("archive generator log failed", "dst", dst, "err", err)
			} else {
				res.LogArchive = dst
			}
		}
	}

	if n, err := o.deps.Sweeper.Sweep(bg); err != nil {
		logger.Warn("straggler sweep failed", "err", err)
	} else if n > 0 {
		logger.Info("swept straggler generators", "count", n)
	}
	_ = sleep(ctx, o.opts.SettleDelay)
}

// RunSize runs the four conditions for size and merges them into a row.
// It stops early only when ctx is cancelled.
func (o *Orchestrator) RunSize(ctx context.Context, size traffic.PacketSize) (Row, []RunResult) {
	var row Row
	var results []RunResult
	for _, k := range traffic.Kinds {
		if ctx.Err() != nil {
			break
		}
		c := traffic.NewCondition(k, size, o.opts.TargetID, o.opts.HighRate, o.opts.LowRate)
		res := o.RunCondition(ctx, c)
		row.Merge(res)
		results = append(results, res)
		logging.FromContext(ctx).Debug("partial row", "size", string(size), "row", row.Format())
	}
	return row, results
}

// Sweep runs every size in order and hands each row to the row writer as
// soon as it is produced. It returns the rows produced so far together with
// any writer errors or the cancellation cause.
func (o *Orchestrator) Sweep(ctx context.Context, sizes []traffic.PacketSize) ([]RowRecord, error) {
	sweepID := uuid.NewString()
	logger := logging.FromContext(ctx).With("sweep", sweepID)
	ctx = logging.NewContext(ctx, logger)

	var rows []RowRecord
	var errs []error
	for _, size := range sizes {
		if ctx.Err() != nil {
			break
		}
		logger.Info("packet size", "size", string(size), "target", o.opts.TargetID)
		row, results := o.RunSize(ctx, size)

		failures := 0
		for _, r := range results {
			if !r.OK() {
				failures++
			}
			if o.deps.Runs != nil {
				if err := o.deps.Runs.WriteRun(r.Record(sweepID)); err != nil {
					errs = append(errs, fmt.Errorf("write run %s: %w", r.RunID, err))
				}
			}
		}
		failures += len(traffic.Kinds) - len(results)

		rec := RowRecord{
			SweepID:  sweepID,
			Size:     size,
			TargetID: o.opts.TargetID,
			Values:   row,
			Failures: failures,
			Time:     o.now(),
		}
		rows = append(rows, rec)
		logger.Info("row done", "size", string(size), "failures", failures, "row", row.Format())
		if o.deps.Rows != nil {
			if err := o.deps.Rows.WriteRow(rec); err != nil {
				errs = append(errs, fmt.Errorf("write row %s: %w", size, err))
			}
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return rows, errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
