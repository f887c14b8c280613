// Package broadcast republishes the consolidated state on a fixed interval.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/speedwagon-io/solarbridge/internal/bus"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
	"github.com/speedwagon-io/solarbridge/internal/state"
)

const kind = "state"

type Broadcaster struct {
	log       *slog.Logger
	store     *state.Store
	publisher bus.Publisher
	metrics   *metrics.Metrics
	subject   string
	qos       byte
	interval  time.Duration
}

func New(
	log *slog.Logger,
	store *state.Store,
	publisher bus.Publisher,
	m *metrics.Metrics,
	subject string,
	qos byte,
	interval time.Duration,
) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		log:       log,
		store:     store,
		publisher: publisher,
		metrics:   m,
		subject:   subject,
		qos:       qos,
		interval:  interval,
	}
}

// Start blocks, publishing a snapshot every interval until ctx is done.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("starting state broadcaster",
		slog.String("subject", b.subject),
		slog.Duration("interval", b.interval),
	)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick publishes the current snapshot if the bus is up. Errors are logged.
func (b *Broadcaster) Tick(ctx context.Context) {
	if !b.publisher.IsConnected() {
		return
	}

	payload, err := json.Marshal(b.store.Snapshot())
	if err != nil {
		b.log.Error("failed to marshal state", sl.Err(err))
		return
	}

	err = b.publisher.Publish(ctx, b.subject, b.qos, payload)
	b.metrics.Publishes.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	if err != nil {
		b.log.Error("failed to publish state", slog.String("subject", b.subject), sl.Err(err))
	}
}
