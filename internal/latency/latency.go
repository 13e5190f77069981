// Package latency reads the round-trip summary the traffic generator prints
// when it is interrupted.
package latency

import (
	"dutbench/internal/lineparse"
)

// Marker identifies the generator's latency summary line.
const Marker = "udp traffic"

// Measurement is the generator side of one run. Values are in the
// generator's native unit.
type Measurement struct {
	RTTMean  float64 `json:"rtt_mean"`
	RTTStdev float64 `json:"rtt_stdev"`
}

// Parser extracts a Measurement from the trailing lines of a generator log.
type Parser struct {
	Pattern lineparse.Pattern
	// Lines is how many trailing log lines are inspected.
	Lines int
}

// NewParser returns a Parser for the standard summary layout, where the mean
// is the 6th and the standard deviation the 9th whitespace separated field.
func NewParser() *Parser {
	return &Parser{
		Pattern: lineparse.Pattern{Marker: Marker, Fields: map[string]int{"mean": 5, "stdev": 8}},
		Lines:   2,
	}
}

// Parse returns the values of the last parsable summary line, or a zero
// Measurement when there is none.
func (p *Parser) Parse(lines []string) Measurement {
	var m Measurement
	for _, l := range lines {
		rec, ok := p.Pattern.Parse(l)
		if !ok {
			continue
		}
		mean, err := rec.Float("mean")
		if err != nil {
			continue
		}
		stdev, err := rec.Float("stdev")
		if err != nil {
			continue
		}
		m = Measurement{RTTMean: mean, RTTStdev: stdev}
	}
	return m
}

// ParseFile parses the trailing lines of the log at path. A read error is
// returned together with a zero Measurement.
func (p *Parser) ParseFile(path string) (Measurement, error) {
	lines, err := lineparse.TailFile(path, p.Lines, false)
	if err != nil {
		return Measurement{}, err
	}
	return p.Parse(lines), nil
}
