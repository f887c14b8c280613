package model

// Sensor is the group owning a set of metrics on the bus.
type Sensor int

const (
	SensorUnknown Sensor = iota
	SensorPowerMeter
	SensorLight
	SensorClimate
	SensorIrradiance
	SensorEstimatedPower
)

func (s Sensor) String() string {
	switch s {
	case SensorPowerMeter:
		return "power_meter"
	case SensorLight:
		return "light"
	case SensorClimate:
		return "climate"
	case SensorIrradiance:
		return "irradiance"
	case SensorEstimatedPower:
		return "estimated_power"
	default:
		return "unknown"
	}
}

type Field struct {
	Metric Metric
	Value  float64
}

// Reading is a decoded partial update from one bus message. Fields holds only
// the values that were present and numeric.
type Reading struct {
	Subject string
	Sensor  Sensor
	Fields  []Field
}
