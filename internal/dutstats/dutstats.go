// Package dutstats turns the DUT-side statistics report into a measurement.
//
// The report is the stdout of the remote stats command. Two lines matter:
//
//	CPU <percent>
//	RX Stat: <mean> <stdev>
//
// A zero CPU reading or a zero RX mean is reported as ErrZeroReading. A true
// zero load cannot be told apart from a broken report, so both are failures.
package dutstats

import (
	"errors"
	"fmt"
	"math"

	"dutbench/internal/lineparse"
)

var (
	// ErrParse is the failure kind for any unusable stats report.
	ErrParse = errors.New("dut stats parse failure")
	// ErrMissingMarker means the CPU or RX line was not in the report.
	ErrMissingMarker = fmt.Errorf("%w: marker line missing", ErrParse)
	// ErrZeroReading means a value that must be positive read as zero.
	ErrZeroReading = fmt.Errorf("%w: zero reading", ErrParse)
	// ErrInvalidReading means a negative, NaN or infinite value.
	ErrInvalidReading = fmt.Errorf("%w: invalid reading", ErrParse)
)

const (
	CPUMarker = "CPU"
	RXMarker  = "RX Stat"
)

// Measurement is the DUT side of one run.
type Measurement struct {
	RxMeanKpps      float64 `json:"rx_mean_kpps"`
	RxStdevKpps     float64 `json:"rx_stdev_kpps"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	RawRxMean       int64   `json:"raw_rx_mean"`
	RawRxStdev      int64   `json:"raw_rx_stdev"`
}

// Collector parses stats reports.
type Collector struct {
	CPU lineparse.Pattern
	RX  lineparse.Pattern
}

// NewCollector returns a Collector for the standard report layout.
func NewCollector() *Collector {
	return &Collector{
		CPU: lineparse.Pattern{Marker: CPUMarker, Fields: map[string]int{"percent": 1}},
		RX:  lineparse.Pattern{Marker: RXMarker, Fields: map[string]int{"mean": 2, "stdev": 3}},
	}
}

// Parse extracts a Measurement from the report lines.
func (c *Collector) Parse(lines []string) (Measurement, error) {
	cpuRec, ok := c.CPU.First(lines)
	if !ok {
		return Measurement{}, fmt.Errorf("cpu: %w", ErrMissingMarker)
	}
	cpu, err := cpuRec.Float("percent")
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: cpu: %v", ErrParse, err)
	}
	if cpu < 0 || math.IsNaN(cpu) || math.IsInf(cpu, 0) {
		return Measurement{}, fmt.Errorf("cpu %v: %w", cpu, ErrInvalidReading)
	}
	if cpu == 0 {
		return Measurement{}, fmt.Errorf("cpu: %w", ErrZeroReading)
	}

	rxRec, ok := c.RX.First(lines)
	if !ok {
		return Measurement{}, fmt.Errorf("rx: %w", ErrMissingMarker)
	}
	mean, err := rxRec.Int("mean")
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: rx: %v", ErrParse, err)
	}
	stdev, err := rxRec.Int("stdev")
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: rx: %v", ErrParse, err)
	}
	if mean < 0 || stdev < 0 {
		return Measurement{}, fmt.Errorf("rx %d %d: %w", mean, stdev, ErrInvalidReading)
	}
	if mean == 0 {
		return Measurement{}, fmt.Errorf("rx mean: %w", ErrZeroReading)
	}

	return Measurement{
		RxMeanKpps:      float64(mean) / 1000,
		RxStdevKpps:     float64(stdev) / 1000,
		CPUUsagePercent: cpu,
		RawRxMean:       mean,
		RawRxStdev:      stdev,
	}, nil
}
