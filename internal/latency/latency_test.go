package latency

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSecondLineMatches(t *testing.T) {
	lines := []string{
		"[Queue 0] Sent 1000 packets, StdDev 0.01 Mpps",
		"[udp traffic] Samples: 100, Average: 5.0 ns, StdDev: 9.0 ns, Quartiles: 1/2/3",
	}
	m := NewParser().Parse(lines)
	if m.RTTMean != 5.0 || m.RTTStdev != 9.0 {
		t.Fatalf("expected (5.0, 9.0), got %+v", m)
	}
}

func TestParseNoMatchDefaultsToZero(t *testing.T) {
	m := NewParser().Parse([]string{"[Queue 0] 1.2 Mpps", "bye"})
	if m != (Measurement{}) {
		t.Fatalf("expected zero measurement, got %+v", m)
	}
}

func TestParseSkipsMalformedSummary(t *testing.T) {
	m := NewParser().Parse([]string{"[udp traffic] truncated"})
	if m != (Measurement{}) {
		t.Fatalf("expected zero measurement for malformed line, got %+v", m)
	}
}

func TestParseFileUsesTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tg_out.txt")
	content := "[udp traffic] Samples: 1, Average: 1.0 ns, StdDev: 1.0 ns\n" +
		"[Queue 0] 1.2 Mpps\n" +
		"[Queue 0] StdDev 0.1 Mpps\n" +
		"[udp traffic] Samples: 9, Average: 7250.5 ns, StdDev: 310.0 ns\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.RTTMean != 7250.5 || m.RTTStdev != 310.0 {
		t.Fatalf("unexpected measurement %+v", m)
	}

	// A summary outside the trailing window is ignored.
	if err := os.WriteFile(path, []byte(content+"a\nb\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, _ = NewParser().ParseFile(path)
	if m != (Measurement{}) {
		t.Fatalf("expected zero measurement, got %+v", m)
	}
}
