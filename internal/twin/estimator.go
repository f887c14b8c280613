package twin

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/speedwagon-io/solarbridge/internal/bus"
	"github.com/speedwagon-io/solarbridge/internal/decoder"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
	"github.com/speedwagon-io/solarbridge/internal/model"
)

const kind = "estimated_power"

// Estimator publishes an estimated power reading after every power-meter
// update, once voltage, temperature and irradiance are all known.
type Estimator struct {
	log       *slog.Logger
	module    Module
	publisher bus.Publisher
	metrics   *metrics.Metrics
	subject   string
	qos       byte
}

func NewEstimator(log *slog.Logger, module Module, publisher bus.Publisher, m *metrics.Metrics, subject string, qos byte) *Estimator {
	return &Estimator{
		log:       log,
		module:    module,
		publisher: publisher,
		metrics:   m,
		subject:   subject,
		qos:       qos,
	}
}

func (e *Estimator) Observe(ctx context.Context, r model.Reading, snap model.Snapshot) {
	if r.Sensor != model.SensorPowerMeter {
		return
	}

	t, okT := snap.Get(model.Temperature)
	g, okG := snap.Get(model.Irradiance)
	v, okV := snap.Get(model.Voltage)
	if !okT || !okG || !okV {
		e.log.Debug("waiting for temperature, irradiance and voltage to estimate power")
		return
	}

	power, err := e.module.Power(t, g, v)
	if err != nil {
		e.log.Warn("failed to estimate power",
			slog.Float64("temperature", t),
			slog.Float64("irradiance", g),
			slog.Float64("voltage", v),
			sl.Err(err),
		)
		return
	}

	payload, err := json.Marshal(decoder.EstimatedPowerMessage{EstimatedPower: power})
	if err != nil {
		e.log.Error("failed to marshal estimate", sl.Err(err))
		return
	}

	err = e.publisher.Publish(ctx, e.subject, e.qos, payload)
	e.metrics.Publishes.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	if err != nil {
		e.log.Error("failed to publish estimated power", sl.Err(err))
		return
	}

	e.log.Debug("estimated power published", slog.Float64("estimated_power_mw", power))
}
