package bench

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dutbench/internal/dutstats"
	"dutbench/internal/generator"
	"dutbench/internal/latency"
	"dutbench/internal/remote"
	"dutbench/internal/traffic"
)

func TestFormatTruncatesRTT(t *testing.T) {
	r := Row{1.24, 0.006, 3, 4, 5, 6, 7, 7.999, -1.5, 0.4, 12, 99.96}
	got := r.Format()
	want := "1.2\t0.01\t3.0\t4.0\t5.0\t6.00\t7.0\t7\t-1\t0\t12\t100.0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseRow(t *testing.T) {
	r, err := ParseRow("1234.6\t8.91\t11.5\t22.0\t2000.0\t1.50\t33.0\t7\t0\t12\t2\t44.4\n")
	if err != nil {
		t.Fatalf("ParseRow: %v", err)
	}
	if r[0] != 1234.6 || r[7] != 7 || r[11] != 44.4 {
		t.Fatalf("unexpected row %v", r)
	}
	if _, err := ParseRow("1\t2"); err == nil {
		t.Fatal("expected error for short row")
	}
	if _, err := ParseRow("1\t2\t3\t4\t5\t6\t7\t8\t9\t10\t11\tx"); err == nil {
		t.Fatal("expected error for non-numeric field")
	}
}

// Synthetic DUT report and generator log go through the real parsers and
// must come out as the scaled values in the formatted row.
func TestRoundTripScaling(t *testing.T) {
	stats, err := dutstats.NewCollector().Parse([]string{"CPU 50.0", "RX Stat: 4500000 12340"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	lat := latency.NewParser().Parse([]string{
		"[Queue 0] 1.2 Mpps",
		"[udp traffic] Samples: 10, Average: 81234.0 ns, StdDev: 5678.0 ns",
	})

	var row Row
	for _, k := range traffic.Kinds {
		row.Merge(RunResult{
			Condition: traffic.Condition{Kind: k},
			State:     Complete,
			Stats:     stats,
			Latency:   lat,
		})
	}
	want := "4500.0\t12.34\t50.0\t50.0\t4500.0\t12.34\t50.0\t81\t5\t81\t5\t50.0"
	if got := row.Format(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMergeIgnoresFailedRuns(t *testing.T) {
	var row Row
	row.Merge(RunResult{
		Condition: traffic.Condition{Kind: traffic.DefaultNoResponse},
		State:     Failed,
		Stats:     dutstats.Measurement{CPUUsagePercent: 10, RxMeanKpps: 1},
	})
	if row != (Row{}) {
		t.Fatalf("expected zero row, got %v", row)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{fmt.Errorf("wait: %w", context.Canceled), FailureCancelled},
		{&remote.ExecError{Command: "x", Err: context.DeadlineExceeded}, FailureCancelled},
		{fmt.Errorf("%w after 1s", generator.ErrStartupTimeout), FailureStartupTimeout},
		{generator.ErrExitedEarly, FailureLaunch},
		{fmt.Errorf("%w: refused", remote.ErrConnection), FailureConnection},
		{&remote.ExecError{Command: "x", Stderr: []string{"boom"}}, FailureExec},
		{fmt.Errorf("cpu: %w", dutstats.ErrZeroReading), FailureParse},
		{errors.New("other"), FailureOther},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestStateText(t *testing.T) {
	for s := Idle; s <= Failed; s++ {
		b, _ := s.MarshalText()
		var back State
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Fatalf("state %v did not survive text round trip: %v", s, err)
		}
	}
	if !Complete.Terminal() || CollectingRemote.Terminal() {
		t.Fatal("unexpected Terminal result")
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Observers{a, nil, b}
	obs.ObserveState(StateEvent{RunID: "r1", State: Launching})
	if len(a.states) != 1 || len(b.states) != 1 {
		t.Fatalf("expected both observers notified, got %d and %d", len(a.states), len(b.states))
	}
}
