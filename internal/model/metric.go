package model

import (
	"errors"
	"fmt"
)

var ErrInvalidMetric = errors.New("invalid metric")

// Metric identifies one measured quantity. Its name doubles as the storage
// column and the query API parameter.
type Metric int

const (
	Voltage Metric = iota
	Current
	Power
	Lux
	Temperature
	Humidity
	Irradiance
	EstimatedPower

	metricCount
)

type metricInfo struct {
	name  string
	label string
	unit  string
}

var metrics = [metricCount]metricInfo{
	Voltage:        {name: "voltage", label: "Tensão", unit: " V"},
	Current:        {name: "current_mA", label: "Corrente", unit: " mA"},
	Power:          {name: "power_mW", label: "Potência", unit: " mW"},
	Lux:            {name: "lux", label: "Luminosidade", unit: " lux"},
	Temperature:    {name: "temperature", label: "Temperatura", unit: " °C"},
	Humidity:       {name: "humidity", label: "Umidade", unit: " %"},
	Irradiance:     {name: "irradiance", label: "Irradiância", unit: " W/m²"},
	EstimatedPower: {name: "estimated_power_mW", label: "Potência estimada", unit: " mW"},
}

var metricsByName = func() map[string]Metric {
	m := make(map[string]Metric, metricCount)
	for i := Metric(0); i < metricCount; i++ {
		m[metrics[i].name] = i
	}
	return m
}()

// AllMetrics returns every metric in storage column order.
func AllMetrics() []Metric {
	all := make([]Metric, 0, metricCount)
	for i := Metric(0); i < metricCount; i++ {
		all = append(all, i)
	}
	return all
}

// ParseMetric resolves a metric by name against the allow-list.
func ParseMetric(name string) (Metric, error) {
	m, ok := metricsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMetric, name)
	}
	return m, nil
}

func (m Metric) Valid() bool {
	return m >= 0 && m < metricCount
}

func (m Metric) String() string {
	if !m.Valid() {
		return fmt.Sprintf("metric(%d)", int(m))
	}
	return metrics[m].name
}

func (m Metric) Label() string {
	if !m.Valid() {
		return m.String()
	}
	return metrics[m].label
}

func (m Metric) Unit() string {
	if !m.Valid() {
		return ""
	}
	return metrics[m].unit
}
