// Package database opens the SQL store that holds orders. SQLite is the
// zero-configuration default; PostgreSQL is used when a DSN is configured.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// DB is an open database handle tagged with its backend, so callers can
// write portable queries with "?" placeholders and Rebind them.
type DB struct {
	*sql.DB
	Backend BackendType
	logger  *slog.Logger
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Effective()
	logger = logger.With("component", "database", "backend", string(cfg.Backend))

	var (
		sqlDB *sql.DB
		err   error
	)
	switch cfg.Backend {
	case BackendSQLite:
		sqlDB, err = OpenSQLite(cfg.SQLite)
	case BackendPostgreSQL:
		sqlDB, err = OpenPostgreSQL(ctx, cfg.PostgreSQL)
	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	db := &DB{DB: sqlDB, Backend: cfg.Backend, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	logger.Info("database ready")
	return db, nil
}

// Rebind rewrites "?" placeholders into the backend's native style.
func (db *DB) Rebind(query string) string {
	if db.Backend != BackendPostgreSQL {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HealthStatus is a point-in-time view of the connection pool.
type HealthStatus struct {
	Healthy   bool   `json:"healthy"`
	Backend   string `json:"backend"`
	OpenConns int    `json:"open_conns"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
	Error     string `json:"error,omitempty"`
}

// Health pings the database and reports pool statistics.
func (db *DB) Health(ctx context.Context) HealthStatus {
	stats := db.Stats()
	status := HealthStatus{
		Healthy:   true,
		Backend:   string(db.Backend),
		OpenConns: stats.OpenConnections,
		InUse:     stats.InUse,
		Idle:      stats.Idle,
	}
	if err := db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	return status
}
