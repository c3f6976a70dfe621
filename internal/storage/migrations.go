package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version  string
	sqlite   string
	postgres string
}

var migrations = []migration{
	{
		version: "001_create_offers",
		sqlite: `
			CREATE TABLE IF NOT EXISTS offers (
				id TEXT PRIMARY KEY,
				store_name TEXT NOT NULL,
				product_name TEXT NOT NULL,
				brand TEXT,
				quantity TEXT,
				price REAL NOT NULL,
				original_price REAL,
				offer_date_start TEXT NOT NULL,
				offer_date_end TEXT NOT NULL,
				source_file TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			);
		`,
		postgres: `
			CREATE TABLE IF NOT EXISTS offers (
				id UUID PRIMARY KEY,
				store_name TEXT NOT NULL,
				product_name TEXT NOT NULL,
				brand TEXT,
				quantity TEXT,
				price DOUBLE PRECISION NOT NULL,
				original_price DOUBLE PRECISION,
				offer_date_start DATE NOT NULL,
				offer_date_end DATE NOT NULL,
				source_file TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			);
		`,
	},
	{
		version:  "002_index_offers_source_file",
		sqlite:   `CREATE INDEX IF NOT EXISTS idx_offers_source_file ON offers (source_file);`,
		postgres: `CREATE INDEX IF NOT EXISTS idx_offers_source_file ON offers (source_file);`,
	},
}

// Migrate applies pending schema migrations for driver ("sqlite" or "postgres")
// and returns the versions it applied.
func Migrate(ctx context.Context, db *sql.DB, driver string) ([]string, error) {
	if err := ensureSchemaMigrationsTable(ctx, db, driver); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		stmt := m.sqlite
		if driver == "postgres" {
			stmt = m.postgres
		}
		if err := runMigration(ctx, db, m.version, stmt); err != nil {
			return ran, fmt.Errorf("run migration %s: %w", m.version, err)
		}
		ran = append(ran, m.version)
	}
	return ran, nil
}

func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB, driver string) error {
	var query string
	switch driver {
	case "sqlite", "":
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`
	}
	_, err := db.ExecContext(ctx, query)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func runMigration(ctx context.Context, db *sql.DB, version, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
