package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenSQLite_Migrates(t *testing.T) {
	cfg := Config{SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "test.db")}}

	db, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite", db.Backend)
	}

	version, err := db.CurrentVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("version = %d, want %d", version, SchemaVersion)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n); err != nil {
		t.Fatalf("orders table missing: %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := Config{SQLite: SQLiteConfig{Path: path}}

	db, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	db.Close()

	db, err = Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("repeated Migrate failed: %v", err)
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("schema_version has %d rows, want 1", rows)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	query := "UPDATE orders SET status = ?, updated_at = ? WHERE id = ?"
	tests := []struct {
		backend BackendType
		want    string
	}{
		{BackendSQLite, query},
		{BackendPostgreSQL, "UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			t.Parallel()
			db := &DB{Backend: tt.backend}
			if got := db.Rebind(query); got != tt.want {
				t.Errorf("Rebind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_Effective(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   BackendType
		want BackendType
	}{
		{"", BackendSQLite},
		{"SQLite", BackendSQLite},
		{"postgres", BackendPostgreSQL},
		{"postgresql", BackendPostgreSQL},
	}
	for _, tt := range tests {
		got := Config{Backend: tt.in}.Effective()
		if got.Backend != tt.want {
			t.Errorf("Effective(%q).Backend = %q, want %q", tt.in, got.Backend, tt.want)
		}
		if got.SQLite.BusyTimeout != 5000 || got.PostgreSQL.Port != 5432 {
			t.Errorf("defaults not applied: %+v", got)
		}
	}
}

func TestBuildPostgreSQLDSN(t *testing.T) {
	t.Parallel()

	cfg := Config{PostgreSQL: PostgreSQLConfig{
		Host: "db.internal", Database: "shop", User: "shop", Password: "p@ss",
	}}.Effective().PostgreSQL

	dsn := BuildPostgreSQLDSN(cfg)
	for _, want := range []string{"postgres://", "db.internal:5432", "/shop", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}

	cfg.DSN = "postgres://u:p@host/db"
	if got := BuildPostgreSQLDSN(cfg); got != cfg.DSN {
		t.Errorf("explicit DSN not used: %q", got)
	}
}

func TestHealth(t *testing.T) {
	db, err := Open(context.Background(), Config{SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "h.db")}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	h := db.Health(context.Background())
	if !h.Healthy || h.Backend != "sqlite" {
		t.Errorf("unexpected health: %+v", h)
	}
}
