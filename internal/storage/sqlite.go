/*
Package storage provides SQLite database migrations.

This file contains schema definitions and migration logic for the storage
layer. Migrations are append-only; bump by adding to the list.
*/
package storage

import (
	"fmt"
	"log/slog"
)

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	// Create migrations table
	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	// Get current version
	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	// Run migrations in order
	migrations := []migration{
		{version: 1, name: "screenshots", up: s.migration001Screenshots},
		{version: 2, name: "index_queue", up: s.migration002IndexQueue},
		{version: 3, name: "learned_rules", up: s.migration003LearnedRules},
	}

	for _, m := range migrations {
		if version < m.version {
			slog.Debug("running migration", "version", m.version, "name", m.name)
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m.version, m.name); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"
	row := s.db.QueryRow(query)

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	query := "INSERT INTO schema_migrations (version, name) VALUES (?, ?)"
	_, err := s.db.Exec(query, version, name)
	return err
}

// migration001Screenshots creates the capture, preference and search history tables.
func (s *SQLiteStorage) migration001Screenshots() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS screenshots (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			path TEXT NOT NULL,
			trigger_kind TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("failed to create screenshots table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_screenshots_date
		ON screenshots(date)
	`); err != nil {
		return fmt.Errorf("failed to create screenshots date index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_screenshots_created
		ON screenshots(created_at)
	`); err != nil {
		return fmt.Errorf("failed to create screenshots created index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create preferences table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS search_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			search_id TEXT NOT NULL UNIQUE,
			query_hash TEXT NOT NULL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			results_count INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create search_history table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_search_history_timestamp
		ON search_history(timestamp DESC)
	`); err != nil {
		return fmt.Errorf("failed to create search_history timestamp index: %w", err)
	}

	return nil
}

// migration002IndexQueue creates the durable indexing queue and failure log.
func (s *SQLiteStorage) migration002IndexQueue() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS index_jobs (
			screenshot_id TEXT PRIMARY KEY,
			visible_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			force INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("failed to create index_jobs table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_index_jobs_visible
		ON index_jobs(visible_at)
	`); err != nil {
		return fmt.Errorf("failed to create index_jobs visible index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS index_failures (
			screenshot_id TEXT PRIMARY KEY,
			attempts INTEGER NOT NULL,
			reason TEXT NOT NULL,
			failed_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create index_failures table: %w", err)
	}

	return nil
}

// migration003LearnedRules creates the append-only learned rules table.
func (s *SQLiteStorage) migration003LearnedRules() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS learned_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create learned_rules table: %w", err)
	}

	return nil
}
