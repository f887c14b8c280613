// Package decoder turns raw bus payloads into typed partial readings.
package decoder

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/model"
)

type Decoder struct {
	sensors map[string]model.Sensor
}

func New(subjects config.Subjects) *Decoder {
	sensors := map[string]model.Sensor{
		subjects.PowerMeter:     model.SensorPowerMeter,
		subjects.Light:          model.SensorLight,
		subjects.Climate:        model.SensorClimate,
		subjects.Irradiance:     model.SensorIrradiance,
		subjects.EstimatedPower: model.SensorEstimatedPower,
	}
	delete(sensors, "")
	return &Decoder{sensors: sensors}
}

// Sensor reports which sensor group owns subject.
func (d *Decoder) Sensor(subject string) (model.Sensor, bool) {
	s, ok := d.sensors[subject]
	return s, ok
}

// Decode parses payload for subject. It returns false for unknown subjects and
// for payloads that are not a JSON object; such messages must be dropped.
func (d *Decoder) Decode(subject string, payload []byte) (model.Reading, bool) {
	sensor, ok := d.sensors[subject]
	if !ok {
		return model.Reading{}, false
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return model.Reading{}, false
	}

	r := model.Reading{Subject: subject, Sensor: sensor}

	switch sensor {
	case model.SensorPowerMeter:
		var p powerMeterPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return model.Reading{}, false
		}
		r.Fields = appendNumber(r.Fields, model.Voltage, p.Voltage)
		r.Fields = appendNumber(r.Fields, model.Current, p.Current)
		r.Fields = appendNumber(r.Fields, model.Power, p.Power)
	case model.SensorLight:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(payload, &raw); err != nil {
			return model.Reading{}, false
		}
		// the light sensor reports null in darkness; missing or null is zero lux
		lux := Number{Null: true}
		if v, ok := raw["lux"]; ok && len(bytes.TrimSpace(v)) > 0 {
			lux = Number{}
			_ = lux.UnmarshalJSON(v)
		}
		switch {
		case lux.Valid:
			r.Fields = append(r.Fields, model.Field{Metric: model.Lux, Value: lux.Value})
		case lux.Null:
			r.Fields = append(r.Fields, model.Field{Metric: model.Lux, Value: 0})
		}
	case model.SensorClimate:
		var p climatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return model.Reading{}, false
		}
		r.Fields = appendNumber(r.Fields, model.Temperature, p.Temperature)
		r.Fields = appendNumber(r.Fields, model.Humidity, p.Humidity)
	case model.SensorIrradiance:
		var p irradiancePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return model.Reading{}, false
		}
		r.Fields = appendNumber(r.Fields, model.Irradiance, p.Irradiance)
	case model.SensorEstimatedPower:
		var p estimatedPowerPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return model.Reading{}, false
		}
		r.Fields = appendNumber(r.Fields, model.EstimatedPower, p.EstimatedPower)
	}

	return r, true
}

func appendNumber(fields []model.Field, m model.Metric, n Number) []model.Field {
	if !n.Valid {
		return fields
	}
	return append(fields, model.Field{Metric: m, Value: n.Value})
}
