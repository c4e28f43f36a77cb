package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is one versioned schema step. Steps are applied in order and
// tracked in schema_migrations so restarts are idempotent.
type migration struct {
	version string
	ddl     string
}

// The core only owns the tables its loaders and run persistence need; the
// reporting schema proper is managed by the dashboard deployment.
var migrations = []migration{
	{
		version: "001_job_runs",
		ddl: `
			CREATE TABLE IF NOT EXISTS job_runs (
				id UUID PRIMARY KEY,
				pipeline VARCHAR(64) NOT NULL,
				status VARCHAR(16) NOT NULL,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ,
				records_extracted INTEGER NOT NULL DEFAULT 0,
				records_transformed INTEGER NOT NULL DEFAULT 0,
				records_loaded INTEGER NOT NULL DEFAULT 0,
				validation_errors INTEGER NOT NULL DEFAULT 0,
				error_msg TEXT,
				duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_job_runs_pipeline_started
				ON job_runs (pipeline, started_at DESC);
		`,
	},
	{
		version: "002_sync_state",
		ddl: `
			CREATE TABLE IF NOT EXISTS sync_state (
				pipeline VARCHAR(64) PRIMARY KEY,
				last_sync_at TIMESTAMPTZ NOT NULL
			);
		`,
	},
	{
		version: "003_lms_users",
		ddl: `
			CREATE TABLE IF NOT EXISTS lms_users (
				user_id VARCHAR(128) PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				department TEXT NOT NULL DEFAULT '',
				manager_id VARCHAR(128) NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL,
				last_modified TIMESTAMPTZ,
				synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		version: "004_lms_completions",
		ddl: `
			CREATE TABLE IF NOT EXISTS lms_completions (
				user_id VARCHAR(128) NOT NULL,
				item_id VARCHAR(128) NOT NULL,
				completed_at TIMESTAMPTZ NOT NULL,
				status VARCHAR(32) NOT NULL,
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				hours DOUBLE PRECISION NOT NULL DEFAULT 0,
				synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (user_id, item_id, completed_at)
			);
			CREATE INDEX IF NOT EXISTS idx_lms_completions_item
				ON lms_completions (item_id);
		`,
	},
	{
		version: "005_lms_items",
		ddl: `
			CREATE TABLE IF NOT EXISTS lms_items (
				item_id VARCHAR(128) PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				item_type VARCHAR(32) NOT NULL,
				duration_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
				synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}

// RunMigrations applies all pending schema steps.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	logger.Info("checking for pending database migrations")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate applied migrations: %w", err)
	}

	pending := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		pending++
		logger.Info("applying migration", "version", m.version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.version, err)
		}

		if _, err := tx.Exec(m.ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.version, err)
		}
	}

	if pending == 0 {
		logger.Info("database schema up to date")
	} else {
		logger.Info("migrations applied", "count", pending)
	}

	return nil
}
