package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/model"
)

// MaxRangeRows caps the number of points a single range query returns.
const MaxRangeRows = 50000

// TimeLayout is the storage representation of a row timestamp, always UTC.
const TimeLayout = "2006-01-02 15:04:05.000"

var ErrNoReadings = errors.New("no readings recorded")

type Repository struct {
	log *slog.Logger
	db  *sql.DB
	now func() time.Time
}

// Open connects to the configured engine, sizes the connection pool and
// creates the readings table if needed.
func Open(log *slog.Logger, cfg config.StorageConfig) (*Repository, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.name == DriverSQLite {
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if d.name == DriverSQLite && isMemoryDSN(dsn) {
		// every connection to an in-memory database opens a fresh, empty one
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := New(log, db)
	if err := repo.Migrate(context.Background(), d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// New wraps an already opened handle. The schema is not touched.
func New(log *slog.Logger, db *sql.DB) *Repository {
	return &Repository{
		log: log,
		db:  db,
		now: time.Now,
	}
}

func (r *Repository) Migrate(ctx context.Context, d dialect) error {
	for _, stmt := range d.schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	r.log.Info("readings table ready", slog.String("driver", d.name))
	return nil
}

// Insert appends snap as a new row stamped with the current time.
func (r *Repository) Insert(ctx context.Context, snap model.Snapshot) (int64, error) {
	metrics := model.AllMetrics()
	args := make([]any, 0, len(metrics)+1)
	args = append(args, r.now().UTC().Format(TimeLayout))
	for _, m := range metrics {
		// illuminance is never stored as NULL, even before the light sensor reports
		if _, ok := snap.Get(m); !ok && m == model.Lux {
			args = append(args, 0.0)
			continue
		}
		args = append(args, snap.Nullable(m))
	}

	query := fmt.Sprintf(
		"INSERT INTO readings (ts, %s) VALUES (?%s)",
		columnList(),
		strings.Repeat(", ?", len(metrics)),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}

	// not every driver reports ids; the row is written either way
	id, _ := res.LastInsertId()
	return id, nil
}

// Latest returns the most recent row or ErrNoReadings.
func (r *Repository) Latest(ctx context.Context) (model.Record, error) {
	query := fmt.Sprintf(
		"SELECT id, ts, %s FROM readings ORDER BY ts DESC, id DESC LIMIT 1",
		columnList(),
	)

	metrics := model.AllMetrics()
	var (
		rec    model.Record
		tsRaw  any
		values = make([]sql.NullFloat64, len(metrics))
	)
	dest := make([]any, 0, len(metrics)+2)
	dest = append(dest, &rec.ID, &tsRaw)
	for i := range values {
		dest = append(dest, &values[i])
	}

	err := r.db.QueryRowContext(ctx, query).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrNoReadings
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("failed to query latest reading: %w", err)
	}

	rec.Timestamp, err = parseTimestamp(tsRaw)
	if err != nil {
		return model.Record{}, err
	}
	for i, m := range metrics {
		if values[i].Valid {
			rec.Snapshot.Set(m, values[i].Float64)
		}
	}

	return rec, nil
}

// Range returns the non-null values of metric with start <= ts <= end,
// oldest first, at most limit rows (MaxRangeRows when limit <= 0).
func (r *Repository) Range(ctx context.Context, metric model.Metric, start, end time.Time, limit int) ([]model.Point, error) {
	if !metric.Valid() {
		return nil, model.ErrInvalidMetric
	}
	if limit <= 0 || limit > MaxRangeRows {
		limit = MaxRangeRows
	}

	// metric comes from the allow-list, never from raw input
	query := fmt.Sprintf(
		"SELECT ts, `%[1]s` FROM readings WHERE `%[1]s` IS NOT NULL AND ts BETWEEN ? AND ? ORDER BY ts ASC, id ASC LIMIT %[2]d",
		metric.String(), limit,
	)

	rows, err := r.db.QueryContext(ctx, query,
		start.UTC().Format(TimeLayout),
		end.UTC().Format(TimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	points := make([]model.Point, 0)
	for rows.Next() {
		var (
			tsRaw any
			value float64
		)
		if err := rows.Scan(&tsRaw, &value); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		ts, err := parseTimestamp(tsRaw)
		if err != nil {
			return nil, err
		}
		points = append(points, model.Point{Timestamp: ts, Value: value})
	}

	return points, rows.Err()
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&count)
	return count, err
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// parseTimestamp accepts what the drivers hand back for the ts column: text
// from sqlite, bytes from mysql, or time.Time when the DSN sets parseTime.
func parseTimestamp(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}

	ts, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		ts, err = time.ParseInLocation(time.DateTime, s, time.UTC)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return ts, nil
}
