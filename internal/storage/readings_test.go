package storage

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/model"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(sl.Discard(), config.StorageConfig{
		Driver:       DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "data", "readings.db"),
		MaxOpenConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(sl.Discard(), config.StorageConfig{Driver: "postgres", DSN: "x"})
	require.Error(t, err)
}

func TestInsertAndLatest(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	start := time.Date(2025, 8, 19, 8, 20, 0, 0, time.UTC)
	repo.now = stepClock(start, time.Second)

	_, err := repo.Latest(ctx)
	require.ErrorIs(t, err, ErrNoReadings)

	var snap model.Snapshot
	snap.Set(model.Voltage, 12.1)
	snap.Set(model.Lux, 0)
	_, err = repo.Insert(ctx, snap)
	require.NoError(t, err)

	snap.Set(model.Voltage, 12.4)
	snap.Set(model.Temperature, 28.5)
	id, err := repo.Insert(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, int64(2), id)

	rec, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.Equal(t, start.Add(time.Second), rec.Timestamp)
	require.Equal(t, snap, rec.Snapshot)

	_, ok := rec.Snapshot.Get(model.Humidity)
	require.False(t, ok)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestRange(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	start := time.Date(2025, 8, 19, 8, 0, 0, 0, time.UTC)
	repo.now = stepClock(start, time.Minute)

	// 08:00 .. 08:09, voltage absent on even minutes
	for i := 0; i < 10; i++ {
		var snap model.Snapshot
		if i%2 == 1 {
			snap.Set(model.Voltage, float64(i))
		}
		snap.Set(model.Lux, float64(i*100))
		_, err := repo.Insert(ctx, snap)
		require.NoError(t, err)
	}

	points, err := repo.Range(ctx, model.Voltage, start.Add(3*time.Minute), start.Add(7*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, points, 3)
	for i, p := range points {
		require.Equal(t, float64(3+2*i), p.Value)
		require.Equal(t, start.Add(time.Duration(3+2*i)*time.Minute), p.Timestamp)
	}

	// bounds are inclusive and converted to UTC
	loc := time.FixedZone("BRT", -3*3600)
	points, err = repo.Range(ctx, model.Lux, start.In(loc), start.Add(2*time.Minute).In(loc), 0)
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.Equal(t, 0.0, points[0].Value)
	require.Equal(t, 200.0, points[2].Value)

	points, err = repo.Range(ctx, model.Lux, start, start.Add(time.Hour), 4)
	require.NoError(t, err)
	require.Len(t, points, 4)
	for i := 1; i < len(points); i++ {
		require.True(t, points[i].Timestamp.After(points[i-1].Timestamp))
	}

	points, err = repo.Range(ctx, model.Humidity, start, start.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Empty(t, points)

	_, err = repo.Range(ctx, model.Metric(99), start, start, 0)
	require.ErrorIs(t, err, model.ErrInvalidMetric)
}

func TestInsertQueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := New(sl.Discard(), db)
	repo.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 6e6, time.FixedZone("X", 3600)) }

	var snap model.Snapshot
	snap.Set(model.Voltage, 12.1)
	snap.Set(model.Current, 0.8)
	snap.Set(model.Power, 9.7)

	expected := regexp.QuoteMeta("INSERT INTO readings (ts, `voltage`, `current_mA`, `power_mW`, `lux`, `temperature`, `humidity`, `irradiance`, `estimated_power_mW`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	mock.ExpectExec(expected).
		WithArgs("2025-01-02 02:04:05.006", 12.1, 0.8, 9.7, 0.0, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.Insert(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRangeCapsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := New(sl.Discard(), db)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ts, `power_mW` FROM readings WHERE `power_mW` IS NOT NULL AND ts BETWEEN ? AND ? ORDER BY ts ASC, id ASC LIMIT 50000")).
		WithArgs("2025-01-01 00:00:00.000", "2025-01-02 00:00:00.000").
		WillReturnRows(sqlmock.NewRows([]string{"ts", "power_mW"}).
			AddRow([]byte("2025-01-01 10:00:00.250"), 9.5).
			AddRow("2025-01-01 10:00:01", 9.6))

	points, err := repo.Range(context.Background(), model.Power, from, from.Add(24*time.Hour), MaxRangeRows+1)
	require.NoError(t, err)
	require.Equal(t, []model.Point{
		{Timestamp: time.Date(2025, 1, 1, 10, 0, 0, 250e6, time.UTC), Value: 9.5},
		{Timestamp: time.Date(2025, 1, 1, 10, 0, 1, 0, time.UTC), Value: 9.6},
	}, points)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDialectSchema(t *testing.T) {
	d, err := dialectFor(DriverMySQL)
	require.NoError(t, err)
	require.Len(t, d.schema, 1)
	require.Contains(t, d.schema[0], "`estimated_power_mW` DOUBLE NULL")
	require.Contains(t, d.schema[0], "INDEX idx_ts (ts)")

	d, err = dialectFor(DriverSQLite)
	require.NoError(t, err)
	require.Len(t, d.schema, 2)
	require.Contains(t, d.schema[0], "`lux` REAL NULL")
}

func TestInsertStoresMissingLuxAsZero(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	var snap model.Snapshot
	snap.Set(model.Voltage, 12.1)
	_, err := repo.Insert(ctx, snap)
	require.NoError(t, err)

	rec, err := repo.Latest(ctx)
	require.NoError(t, err)
	lux, ok := rec.Snapshot.Get(model.Lux)
	require.True(t, ok)
	require.Equal(t, 0.0, lux)

	_, ok = rec.Snapshot.Get(model.Temperature)
	require.False(t, ok)
}

func TestOpenInMemoryUsesSingleConnection(t *testing.T) {
	repo, err := Open(sl.Discard(), config.StorageConfig{
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.Equal(t, 1, repo.db.Stats().MaxOpenConnections)

	ctx := context.Background()
	var snap model.Snapshot
	snap.Set(model.Humidity, 40)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := repo.Insert(ctx, snap)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), count)
}
