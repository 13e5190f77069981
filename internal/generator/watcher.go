package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dutbench/internal/lineparse"
	"dutbench/internal/logging"
)

// Defaults for the start watcher and teardown.
const (
	StartGrace     = 5 * time.Second
	PollInterval   = time.Second
	StartTimeout   = 2 * time.Minute
	InterruptGrace = 5 * time.Second
)

// ErrStartupTimeout means no start marker appeared before the deadline.
var ErrStartupTimeout = errors.New("generator startup timed out")

// IsStartLine reports whether line shows the generator actively transmitting.
// Summary lines carry a StdDev token and never count as a start.
func IsStartLine(line string) bool {
	return strings.Contains(line, "[Queue ") &&
		strings.Contains(line, "Mpps") &&
		!strings.Contains(line, "StdDev")
}

type watchState int

const (
	watchGrace watchState = iota
	watchPolling
	watchStarted
)

// Watcher polls a generator log until transmission starts.
type Watcher struct {
	Grace    time.Duration
	Interval time.Duration
	// Timeout bounds the whole wait including Grace. Zero waits until ctx is done.
	Timeout time.Duration
}

// NewWatcher returns a Watcher with the default timings.
func NewWatcher() *Watcher {
	return &Watcher{Grace: StartGrace, Interval: PollInterval, Timeout: StartTimeout}
}

// WaitForStart blocks until the last complete line of h's log is a start
// line. It fails with ErrStartupTimeout on deadline, ErrExitedEarly when the
// process dies first, or the context error.
func (w *Watcher) WaitForStart(ctx context.Context, h Handle) error {
	logger := logging.FromContext(ctx)
	var deadline <-chan time.Time
	if w.Timeout > 0 {
		t := time.NewTimer(w.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	polls := 0
	state := watchGrace
	for state != watchStarted {
		switch state {
		case watchGrace:
			if err := w.pause(ctx, deadline, w.Grace); err != nil {
				return err
			}
			state = watchPolling
		case watchPolling:
			polls++
			lines, err := lineparse.TailFile(h.LogPath(), 1, true)
			if err != nil {
				logger.Debug("log not readable yet", "log", h.LogPath(), "err", err)
			}
			if len(lines) == 1 && IsStartLine(lines[0]) {
				state = watchStarted
				continue
			}
			if h.Exited() {
				return fmt.Errorf("%w (pid %d, log %s)", ErrExitedEarly, h.Pid(), h.LogPath())
			}
			if err := w.pause(ctx, deadline, w.Interval); err != nil {
				return err
			}
		}
	}
	logger.Debug("generator transmitting", "pid", h.Pid(), "polls", polls)
	return nil
}

func (w *Watcher) pause(ctx context.Context, deadline <-chan time.Time, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		return fmt.Errorf("%w after %s", ErrStartupTimeout, w.Timeout)
	case <-t.C:
		return nil
	}
}
