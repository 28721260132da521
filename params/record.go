// Package params flattens the posterior summaries of a COOLEST model into
// per-document parameter sets, one for the lens plane (mass profiles) and one
// for the source plane (light profiles).
//
// Keys have the form <Prefix>_<index>_<suffix>, e.g. "PEMD_0_theta_E" or
// "Sersic_1_R_sersic". The index counts extracted profiles of the same role
// (lens or source) within one document.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Record is the posterior summary of one parameter of one profile.
type Record struct {
	PointEstimate float64 `json:"point_estimate"`
	Percentile16  float64 `json:"percentile_16th"`
	Percentile84  float64 `json:"percentile_84th"`
	Median        float64 `json:"median"`
	Mean          float64 `json:"mean"`
	Latex         string  `json:"latex_str"`
}

// Set is an insertion-ordered mapping from parameter key to Record.
// The zero value is an empty set.
type Set struct {
	keys    []string
	records map[string]Record
}

func (s *Set) put(key string, r Record) {
	if s.records == nil {
		s.records = make(map[string]Record)
	}
	if _, ok := s.records[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.records[key] = r
}

func (s *Set) merge(other Set) {
	for _, k := range other.keys {
		s.put(k, other.records[k])
	}
}

// Len returns the number of parameters in the set.
func (s Set) Len() int { return len(s.keys) }

// Keys returns the keys in insertion order.
func (s Set) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns the record stored under key.
func (s Set) Get(key string) (Record, bool) {
	r, ok := s.records[key]
	return r, ok
}

// MarshalJSON encodes the set as a JSON object with keys in insertion order.
// Missing statistics (NaN) are written as null.
func (s Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := writeRecord(&buf, s.records[k]); err != nil {
			return nil, fmt.Errorf("record %s: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, r Record) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"point_estimate", r.PointEstimate},
		{"percentile_16th", r.Percentile16},
		{"percentile_84th", r.Percentile84},
		{"median", r.Median},
		{"mean", r.Mean},
	}
	buf.WriteByte('{')
	for _, f := range fields {
		fmt.Fprintf(buf, "%q:", f.name)
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			buf.WriteString("null")
		} else {
			v, err := json.Marshal(f.value)
			if err != nil {
				return err
			}
			buf.Write(v)
		}
		buf.WriteByte(',')
	}
	latex, err := json.Marshal(r.Latex)
	if err != nil {
		return err
	}
	buf.WriteString(`"latex_str":`)
	buf.Write(latex)
	buf.WriteByte('}')
	return nil
}

// Level grades a Diagnostic.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
)

func (l Level) String() string {
	if l == LevelWarn {
		return "warn"
	}
	return "info"
}

// Diagnostic records something that was skipped or noteworthy during
// extraction. Diagnostics never stop the extraction of a document.
type Diagnostic struct {
	Level   Level
	Message string
}

func (d Diagnostic) String() string {
	return d.Level.String() + ": " + d.Message
}

func warnf(format string, args ...any) Diagnostic {
	return Diagnostic{Level: LevelWarn, Message: fmt.Sprintf(format, args...)}
}

func infof(format string, args ...any) Diagnostic {
	return Diagnostic{Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}
