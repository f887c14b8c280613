package model

import (
	"fmt"
	"strings"
)

const Placeholder = "--"

func FormatValue(v float64, ok bool, unit string) string {
	if !ok {
		return Placeholder
	}
	return fmt.Sprintf("%.2f%s", v, unit)
}

// ReportLines renders one "Label: value unit" line per metric.
func ReportLines(s Snapshot) []string {
	lines := make([]string, 0, metricCount)
	for _, m := range AllMetrics() {
		v, ok := s.Get(m)
		lines = append(lines, m.Label()+": "+FormatValue(v, ok, m.Unit()))
	}
	return lines
}

func FormatReport(s Snapshot) string {
	return strings.Join(ReportLines(s), "\n")
}
