// Package ingest applies decoded bus readings to the consolidated state and
// persists the result.
package ingest

import (
	"context"
	"log/slog"

	"github.com/speedwagon-io/solarbridge/internal/decoder"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
	"github.com/speedwagon-io/solarbridge/internal/model"
	"github.com/speedwagon-io/solarbridge/internal/state"
)

// Observer is notified after a reading has been applied and persisted.
type Observer interface {
	Observe(ctx context.Context, r model.Reading, snap model.Snapshot)
}

type Pipeline struct {
	log       *slog.Logger
	decoder   *decoder.Decoder
	store     *state.Store
	writer    *Writer
	metrics   *metrics.Metrics
	observers []Observer
}

func NewPipeline(
	log *slog.Logger,
	dec *decoder.Decoder,
	store *state.Store,
	writer *Writer,
	m *metrics.Metrics,
	observers ...Observer,
) *Pipeline {
	return &Pipeline{
		log:       log,
		decoder:   dec,
		store:     store,
		writer:    writer,
		metrics:   m,
		observers: observers,
	}
}

// Handle processes one bus message. It reports whether the message was
// accepted; rejected messages leave the state and storage untouched.
func (p *Pipeline) Handle(ctx context.Context, subject string, payload []byte) bool {
	if _, known := p.decoder.Sensor(subject); !known {
		p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnknownSubject).Inc()
		return false
	}

	reading, ok := p.decoder.Decode(subject, payload)
	if !ok {
		p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		p.log.Debug("dropping malformed payload", slog.String("subject", subject))
		return false
	}

	p.metrics.MessagesReceived.WithLabelValues(reading.Sensor.String()).Inc()

	snap := p.store.Apply(reading)
	p.writer.Write(ctx, snap)

	for _, o := range p.observers {
		o.Observe(ctx, reading, snap)
	}

	return true
}
