// Package command turns control-channel text messages into status reports
// and actuator commands.
package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/speedwagon-io/solarbridge/internal/bus"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
	"github.com/speedwagon-io/solarbridge/internal/model"
	"github.com/speedwagon-io/solarbridge/internal/session"
	"github.com/speedwagon-io/solarbridge/internal/storage"
)

const (
	Status      = "#status"
	CleaningOn  = "#limpezaon"
	CleaningOff = "#limpezaoff"
)

const (
	replyNoReadings  = "📭 Ainda não há leituras registradas."
	replyStatusError = "❌ Erro ao consultar o banco."
	replyCleaningOn  = "✅ Limpeza ON enviada."
	replyCleaningOff = "✅ Limpeza OFF enviada."
	failCleaningOn   = "❌ Falha ao enviar comando de limpeza ON."
	failCleaningOff  = "❌ Falha ao enviar comando de limpeza OFF."
)

const actuatorPin = "GPIO23"

// LatestReader returns the most recent persisted reading.
type LatestReader interface {
	Latest(ctx context.Context) (model.Record, error)
}

// Replier sends a text reply to the origin of a command.
type Replier interface {
	Send(ctx context.Context, to, text string) error
}

type Dispatcher struct {
	log       *slog.Logger
	readings  LatestReader
	publisher bus.Publisher
	replier   Replier
	metrics   *metrics.Metrics
	subject   string
	qos       byte
}

func NewDispatcher(
	log *slog.Logger,
	readings LatestReader,
	publisher bus.Publisher,
	replier Replier,
	m *metrics.Metrics,
	subject string,
	qos byte,
) *Dispatcher {
	return &Dispatcher{
		log:       log,
		readings:  readings,
		publisher: publisher,
		replier:   replier,
		metrics:   m,
		subject:   subject,
		qos:       qos,
	}
}

// Run handles messages one at a time until ctx is done or in is closed.
func (d *Dispatcher) Run(ctx context.Context, in <-chan session.InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			d.Handle(ctx, msg)
		}
	}
}

// Handle executes msg if it is a known command and reports whether it was.
func (d *Dispatcher) Handle(ctx context.Context, msg session.InboundMessage) bool {
	cmd := Normalize(msg.Text)

	log := d.log.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("from", msg.From),
		slog.String("command", cmd),
	)

	var (
		reply string
		err   error
	)

	switch cmd {
	case Status:
		reply, err = d.status(ctx)
	case CleaningOn:
		err = d.actuate(ctx, "high")
		reply = replyCleaningOn
		if err != nil {
			reply = failCleaningOn
		}
	case CleaningOff:
		err = d.actuate(ctx, "low")
		reply = replyCleaningOff
		if err != nil {
			reply = failCleaningOff
		}
	default:
		return false
	}

	d.metrics.Commands.WithLabelValues(cmd, metrics.Outcome(err)).Inc()
	if err != nil {
		log.Error("command failed", sl.Err(err))
	} else {
		log.Info("command handled")
	}

	if err := d.replier.Send(ctx, msg.From, reply); err != nil {
		log.Error("failed to send reply", sl.Err(err))
	}

	return true
}

func (d *Dispatcher) status(ctx context.Context) (string, error) {
	rec, err := d.readings.Latest(ctx)
	if errors.Is(err, storage.ErrNoReadings) {
		return replyNoReadings, nil
	}
	if err != nil {
		return replyStatusError, err
	}
	return StatusReport(rec), nil
}

func (d *Dispatcher) actuate(ctx context.Context, level string) error {
	payload, err := json.Marshal(map[string]string{actuatorPin: level})
	if err != nil {
		return err
	}

	err = d.publisher.Publish(ctx, d.subject, d.qos, payload)
	d.metrics.Publishes.WithLabelValues("control", metrics.Outcome(err)).Inc()
	return err
}

// Normalize trims and lower-cases command text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// StatusReport formats a persisted reading for the #status reply.
func StatusReport(rec model.Record) string {
	var b strings.Builder
	b.WriteString("📊 Última leitura:\n\n🕒 ")
	b.WriteString(rec.Timestamp.UTC().Format(time.DateTime))
	for _, line := range model.ReportLines(rec.Snapshot) {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}
