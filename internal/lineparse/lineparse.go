// Package lineparse extracts typed fields from whitespace separated text lines.
package lineparse

import (
	"fmt"
	"strconv"
	"strings"
)

// Pattern describes a line recognised by a marker token whose fields sit at
// fixed whitespace separated positions. Field indexes are zero based.
type Pattern struct {
	Marker string
	Fields map[string]int
}

// Record holds the fields of a line that matched a Pattern.
type Record struct {
	Line   string
	fields []string
	index  map[string]int
}

// Match reports whether line contains the pattern marker.
func (p Pattern) Match(line string) bool {
	return strings.Contains(line, p.Marker)
}

// Parse returns a Record when line contains the marker.
func (p Pattern) Parse(line string) (Record, bool) {
	if !p.Match(line) {
		return Record{}, false
	}
	return Record{Line: line, fields: strings.Fields(line), index: p.Fields}, true
}

// First returns the record for the first line containing the marker.
func (p Pattern) First(lines []string) (Record, bool) {
	for _, l := range lines {
		if r, ok := p.Parse(l); ok {
			return r, true
		}
	}
	return Record{}, false
}

// Last returns the record for the last line containing the marker.
func (p Pattern) Last(lines []string) (Record, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if r, ok := p.Parse(lines[i]); ok {
			return r, true
		}
	}
	return Record{}, false
}

// Field returns the raw text of a named field.
func (r Record) Field(name string) (string, error) {
	idx, ok := r.index[name]
	if !ok {
		return "", fmt.Errorf("unknown field %q", name)
	}
	if idx < 0 || idx >= len(r.fields) {
		return "", fmt.Errorf("field %q at position %d missing in line %q", name, idx, r.Line)
	}
	return r.fields[idx], nil
}

// Float parses a named field as float64.
func (r Record) Float(name string) (float64, error) {
	s, err := r.Field(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	return v, nil
}

// Int parses a named field as int64.
func (r Record) Int(name string) (int64, error) {
	s, err := r.Field(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	return v, nil
}
