package ingest

import (
	"context"
	"log/slog"

	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
	"github.com/speedwagon-io/solarbridge/internal/model"
)

type Recorder interface {
	Insert(ctx context.Context, snap model.Snapshot) (int64, error)
}

// Writer appends one snapshot row per accepted message. Failures are logged
// and dropped: there is no retry and no buffering.
type Writer struct {
	log      *slog.Logger
	recorder Recorder
	metrics  *metrics.Metrics
}

func NewWriter(log *slog.Logger, recorder Recorder, m *metrics.Metrics) *Writer {
	return &Writer{
		log:      log,
		recorder: recorder,
		metrics:  m,
	}
}

func (w *Writer) Write(ctx context.Context, snap model.Snapshot) {
	id, err := w.recorder.Insert(ctx, snap)
	if err != nil {
		w.metrics.RowWriteFailures.Inc()
		w.log.Error("failed to insert reading", sl.Err(err))
		return
	}

	w.metrics.RowsWritten.Inc()
	w.log.Debug("reading saved", slog.Int64("id", id))
}
