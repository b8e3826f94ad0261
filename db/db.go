// Package db persists scan history in Postgres. The store is optional:
// with no DSN configured the bot runs statelessly and nothing here is
// touched.
package db

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and
// indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS room_scans (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			server TEXT NOT NULL,
			room_id INTEGER NOT NULL,
			room_name TEXT,
			latest_at TIMESTAMPTZ,
			age_seconds BIGINT,
			decision TEXT,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_room_scans_room ON room_scans(server, room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_room_scans_run ON room_scans(run_id)`,
		`CREATE TABLE IF NOT EXISTS notices (
			id SERIAL PRIMARY KEY,
			server TEXT NOT NULL,
			room_id INTEGER NOT NULL,
			message TEXT,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notices_room ON notices(server, room_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
