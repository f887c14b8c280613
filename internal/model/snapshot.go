package model

import (
	"bytes"
	"strconv"
	"time"
)

// Snapshot is a copy of the consolidated state at one instant. It is a value
// type: copying a Snapshot copies every field.
type Snapshot struct {
	values  [metricCount]float64
	present [metricCount]bool
}

func (s Snapshot) Get(m Metric) (float64, bool) {
	if !m.Valid() {
		return 0, false
	}
	return s.values[m], s.present[m]
}

func (s *Snapshot) Set(m Metric, v float64) {
	if !m.Valid() {
		return
	}
	s.values[m] = v
	s.present[m] = true
}

// Nullable returns the value as a driver-friendly argument: nil when absent.
func (s Snapshot) Nullable(m Metric) any {
	v, ok := s.Get(m)
	if !ok {
		return nil
	}
	return v
}

// MarshalJSON renders every metric in column order, absent ones as null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := Metric(0); i < metricCount; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(metrics[i].name)
		buf.WriteString(`":`)
		if s.present[i] {
			buf.WriteString(strconv.FormatFloat(s.values[i], 'f', -1, 64))
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Record is one persisted row of reading history.
type Record struct {
	ID        int64
	Timestamp time.Time
	Snapshot  Snapshot
}

// Point is a single (timestamp, value) pair returned by range queries.
type Point struct {
	Timestamp time.Time
	Value     float64
}
