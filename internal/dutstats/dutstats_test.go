package dutstats

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseValidReport(t *testing.T) {
	lines := []string{
		"collecting for 10s",
		"CPU 37.5",
		"RX Stat: 14880000 1250",
	}
	m, err := NewCollector().Parse(lines)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Measurement{RxMeanKpps: 14880, RxStdevKpps: 1.25, CPUUsagePercent: 37.5, RawRxMean: 14880000, RawRxStdev: 1250}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("measurement mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMissingCPU(t *testing.T) {
	_, err := NewCollector().Parse([]string{"RX Stat: 100 1"})
	if !errors.Is(err, ErrMissingMarker) || !errors.Is(err, ErrParse) {
		t.Fatalf("expected missing marker parse failure, got %v", err)
	}
}

// A zero CPU reading is indistinguishable from a missing CPU line: both fail.
func TestParseZeroCPUEqualsMissing(t *testing.T) {
	c := NewCollector()
	_, zeroErr := c.Parse([]string{"CPU 0.0", "RX Stat: 100 1"})
	_, missingErr := c.Parse([]string{"RX Stat: 100 1"})
	if zeroErr == nil || missingErr == nil {
		t.Fatalf("expected both reports to fail, got %v and %v", zeroErr, missingErr)
	}
	if !errors.Is(zeroErr, ErrParse) || !errors.Is(missingErr, ErrParse) {
		t.Fatalf("expected both to be parse failures")
	}
	if !errors.Is(zeroErr, ErrZeroReading) {
		t.Fatalf("expected zero reading kind, got %v", zeroErr)
	}
}

func TestParseRXFailures(t *testing.T) {
	c := NewCollector()
	cases := map[string][]string{
		"missing rx": {"CPU 12"},
		"zero mean":  {"CPU 12", "RX Stat: 0 5"},
		"short line": {"CPU 12", "RX Stat: 5"},
		"not int":    {"CPU 12", "RX Stat: 1.5 5"},
		"bad cpu":    {"CPU high", "RX Stat: 1 5"},
		"neg cpu":    {"CPU -3.5", "RX Stat: 2000 5"},
		"nan cpu":    {"CPU nan", "RX Stat: 2000 5"},
		"inf cpu":    {"CPU +Inf", "RX Stat: 2000 5"},
		"neg mean":   {"CPU 12", "RX Stat: -2000 5"},
		"neg stdev":  {"CPU 12", "RX Stat: 2000 -5"},
	}
	for name, lines := range cases {
		if _, err := c.Parse(lines); !errors.Is(err, ErrParse) {
			t.Errorf("%s: expected parse failure, got %v", name, err)
		}
	}
}

func TestParseRejectsInvalidReadings(t *testing.T) {
	_, err := NewCollector().Parse([]string{"CPU -3.5", "RX Stat: -2000 5"})
	if !errors.Is(err, ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
	if errors.Is(err, ErrZeroReading) {
		t.Fatalf("negative reading must not be reported as zero: %v", err)
	}
}

func TestParseUsesFirstMarkerLine(t *testing.T) {
	m, err := NewCollector().Parse([]string{"CPU 10", "CPU 90", "RX Stat: 2000 10", "RX Stat: 9000 90"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.CPUUsagePercent != 10 || m.RawRxMean != 2000 {
		t.Fatalf("expected first lines to win, got %+v", m)
	}
}
