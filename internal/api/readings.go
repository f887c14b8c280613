package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/relvacode/iso8601"

	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/model"
	"github.com/speedwagon-io/solarbridge/internal/storage"
)

// TimestampLayout renders instants the way browsers print Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrInvalidRange = errors.New("invalid time range")

const (
	msgInvalidMetric = `Parâmetro "metric" inválido.`
	msgInvalidRange  = `Parâmetros "start" e "end" são obrigatórios (ISO).`
	msgQueryFailed   = "Erro interno ao consultar o banco."
)

type errorResponse struct {
	Error string `json:"error"`
}

// parseRange requires both endpoints as ISO-8601 instants.
func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}

	start, err := iso8601.ParseString(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrInvalidRange, err)
	}
	end, err := iso8601.ParseString(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrInvalidRange, err)
	}

	return start.UTC(), end.UTC(), nil
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric, err := model.ParseMetric(q.Get("metric"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidMetric})
		return
	}

	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRange})
		return
	}

	points, err := s.readings.Range(r.Context(), metric, start, end, storage.MaxRangeRows)
	if err != nil {
		s.log.Error("failed to query readings",
			slog.String("metric", metric.String()),
			sl.Err(err),
		)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgQueryFailed})
		return
	}

	name := metric.String()
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		out = append(out, map[string]any{
			"ts": p.Timestamp.UTC().Format(TimestampLayout),
			name: p.Value,
		})
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(s.state.FormatReport()))
		return
	}

	s.writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", sl.Err(err))
	}
}
