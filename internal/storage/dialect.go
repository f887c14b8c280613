package storage

import (
	"fmt"
	"strings"

	"github.com/speedwagon-io/solarbridge/internal/model"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// dialect holds the driver-specific DDL. Queries are shared: timestamps are
// bound as fixed-width UTC strings, which both engines compare correctly.
type dialect struct {
	name   string
	schema []string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return dialect{
			name: DriverSQLite,
			schema: []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS readings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					ts TEXT NOT NULL,
					%s
				)`, metricColumns("REAL NULL")),
				`CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts)`,
			},
		}, nil
	case DriverMySQL:
		return dialect{
			name: DriverMySQL,
			schema: []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS readings (
					id INT AUTO_INCREMENT PRIMARY KEY,
					ts DATETIME(3) NOT NULL,
					%s,
					INDEX idx_ts (ts)
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, metricColumns("DOUBLE NULL")),
			},
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func metricColumns(columnType string) string {
	cols := make([]string, 0, len(model.AllMetrics()))
	for _, m := range model.AllMetrics() {
		cols = append(cols, fmt.Sprintf("`%s` %s", m.String(), columnType))
	}
	return strings.Join(cols, ",\n\t\t\t\t\t")
}

func columnList() string {
	cols := make([]string, 0, len(model.AllMetrics()))
	for _, m := range model.AllMetrics() {
		cols = append(cols, "`"+m.String()+"`")
	}
	return strings.Join(cols, ", ")
}
