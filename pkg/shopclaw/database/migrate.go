package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SchemaVersion is the version recorded after Migrate succeeds.
const SchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name          TEXT NOT NULL,
	last_name           TEXT NOT NULL,
	phone               TEXT NOT NULL,
	email               TEXT,
	address             TEXT NOT NULL,
	city                TEXT NOT NULL,
	product_summary     TEXT NOT NULL,
	amount              TEXT,
	shopify_invoice_url TEXT,
	status              TEXT NOT NULL DEFAULT 'PENDING',
	source              TEXT NOT NULL DEFAULT 'WEB',
	payment_method      TEXT NOT NULL DEFAULT 'CREDIT_CARD',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_phone ON orders(phone);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id                  BIGSERIAL PRIMARY KEY,
	first_name          TEXT NOT NULL,
	last_name           TEXT NOT NULL,
	phone               TEXT NOT NULL,
	email               TEXT,
	address             TEXT NOT NULL,
	city                TEXT NOT NULL,
	product_summary     TEXT NOT NULL,
	amount              TEXT,
	shopify_invoice_url TEXT,
	status              TEXT NOT NULL DEFAULT 'PENDING',
	source              TEXT NOT NULL DEFAULT 'WEB',
	payment_method      TEXT NOT NULL DEFAULT 'CREDIT_CARD',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_phone ON orders(phone);
`

// Migrate creates the schema if needed and records the version. It is safe
// to call on every start.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := db.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		return nil
	}

	schema := sqliteSchema
	if db.Backend == BackendPostgreSQL {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		db.Rebind("INSERT INTO schema_version (version) VALUES (?)"), SchemaVersion); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	db.logger.Info("schema migrated", "from", current, "to", SchemaVersion)
	return nil
}

// CurrentVersion returns the highest applied schema version, 0 if none.
func (db *DB) CurrentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}
