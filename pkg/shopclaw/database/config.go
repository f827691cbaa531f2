package database

import (
	"strings"
	"time"
)

// BackendType identifies the SQL engine behind the order store.
type BackendType string

const (
	BackendSQLite     BackendType = "sqlite"
	BackendPostgreSQL BackendType = "postgresql"
)

// Config selects and configures the database backend.
type Config struct {
	// Backend is "sqlite" (default) or "postgresql".
	Backend BackendType `yaml:"backend"`

	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	// Path to the database file (default: "./data/shopclaw.db").
	Path string `yaml:"path"`

	// JournalMode (default: WAL).
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout in milliseconds (default: 5000).
	BusyTimeout int `yaml:"busy_timeout"`
}

// PostgreSQLConfig holds PostgreSQL connection settings. DSN wins over the
// discrete fields when set.
type PostgreSQLConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DefaultConfig returns a SQLite configuration under ./data.
func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		SQLite: SQLiteConfig{
			Path:        "./data/shopclaw.db",
			JournalMode: "WAL",
			BusyTimeout: 5000,
		},
	}
}

// Effective returns the config with defaults applied.
func (c Config) Effective() Config {
	out := c
	out.Backend = BackendType(strings.ToLower(strings.TrimSpace(string(out.Backend))))
	switch out.Backend {
	case "", "sqlite3":
		out.Backend = BackendSQLite
	case "postgres", "pgx":
		out.Backend = BackendPostgreSQL
	}

	def := DefaultConfig().SQLite
	if out.SQLite.Path == "" {
		out.SQLite.Path = def.Path
	}
	if out.SQLite.JournalMode == "" {
		out.SQLite.JournalMode = def.JournalMode
	}
	if out.SQLite.BusyTimeout <= 0 {
		out.SQLite.BusyTimeout = def.BusyTimeout
	}

	pg := &out.PostgreSQL
	if pg.Host == "" {
		pg.Host = "localhost"
	}
	if pg.Port == 0 {
		pg.Port = 5432
	}
	if pg.SSLMode == "" {
		pg.SSLMode = "disable"
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = 25
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = 10
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = 30 * time.Minute
	}
	if pg.ConnMaxIdleTime == 0 {
		pg.ConnMaxIdleTime = 5 * time.Minute
	}
	return out
}
