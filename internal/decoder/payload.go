package decoder

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Number is an optional JSON number. Values of any other JSON type leave it
// unset instead of failing the whole payload.
type Number struct {
	Value float64
	Valid bool
	Null  bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{Null: true}
		return nil
	}
	if len(data) == 0 || !(data[0] == '-' || (data[0] >= '0' && data[0] <= '9')) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

type powerMeterPayload struct {
	Voltage Number `json:"voltage"`
	Current Number `json:"current"`
	Power   Number `json:"power"`
}

type climatePayload struct {
	Temperature Number `json:"temperature"`
	Humidity    Number `json:"humidity"`
}

type irradiancePayload struct {
	Irradiance Number `json:"irradiance"`
}

type estimatedPowerPayload struct {
	EstimatedPower Number `json:"estimatedPower"`
}

// EstimatedPowerMessage is the body published for the estimated-power subject.
type EstimatedPowerMessage struct {
	EstimatedPower float64 `json:"estimatedPower"`
}
