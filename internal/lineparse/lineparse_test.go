package lineparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var rxPattern = Pattern{Marker: "RX Stat", Fields: map[string]int{"mean": 2, "stdev": 3}}

func TestPatternFirstAndFields(t *testing.T) {
	lines := []string{"noise", "RX Stat: 14000 300", "RX Stat: 1 1"}
	r, ok := rxPattern.First(lines)
	if !ok {
		t.Fatalf("expected a match")
	}
	mean, err := r.Int("mean")
	if err != nil {
		t.Fatalf("mean: %v", err)
	}
	stdev, err := r.Int("stdev")
	if err != nil {
		t.Fatalf("stdev: %v", err)
	}
	if mean != 14000 || stdev != 300 {
		t.Fatalf("unexpected values %d %d", mean, stdev)
	}
}

func TestPatternLast(t *testing.T) {
	p := Pattern{Marker: "udp", Fields: map[string]int{"v": 1}}
	r, ok := p.Last([]string{"udp 1", "udp 2", "tcp 3"})
	if !ok {
		t.Fatalf("expected a match")
	}
	if v, _ := r.Float("v"); v != 2 {
		t.Fatalf("expected last match, got %v", v)
	}
}

func TestRecordErrors(t *testing.T) {
	r, ok := rxPattern.Parse("RX Stat:")
	if !ok {
		t.Fatalf("expected marker match")
	}
	if _, err := r.Int("mean"); err == nil {
		t.Fatalf("expected error for missing position")
	}
	if _, err := r.Int("bogus"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	r, _ = rxPattern.Parse("RX Stat: abc 1")
	if _, err := r.Int("mean"); err == nil {
		t.Fatalf("expected error for non numeric field")
	}
	if _, ok := rxPattern.Parse("TX Stat: 1 2"); ok {
		t.Fatalf("unexpected match without marker")
	}
}

func TestTailKeepsLastLines(t *testing.T) {
	in := "a\nb\nc\nd\n"
	got, err := Tail(strings.NewReader(in), 2, false)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "d"}, got); diff != "" {
		t.Fatalf("tail mismatch (-want +got):\n%s", diff)
	}
}

func TestTailIncompleteLine(t *testing.T) {
	in := "a\r\nb\npart"
	got, _ := Tail(strings.NewReader(in), 1, true)
	if diff := cmp.Diff([]string{"b"}, got); diff != "" {
		t.Fatalf("complete-only mismatch (-want +got):\n%s", diff)
	}
	got, _ = Tail(strings.NewReader(in), 2, false)
	if diff := cmp.Diff([]string{"b", "part"}, got); diff != "" {
		t.Fatalf("tail mismatch (-want +got):\n%s", diff)
	}
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("x\ny\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := TailFile(path, 5, true)
	if err != nil {
		t.Fatalf("tail file: %v", err)
	}
	if diff := cmp.Diff([]string{"x", "y"}, got); diff != "" {
		t.Fatalf("tail mismatch (-want +got):\n%s", diff)
	}
	if _, err := TailFile(filepath.Join(t.TempDir(), "missing"), 1, true); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
