package storage

import "fmt"

// migrate creates the snapshot schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied")
	return nil
}

var migrations = []string{
	// Last good payload per (kind, route). captured_at is unix nanoseconds.
	`CREATE TABLE IF NOT EXISTS snapshots (
		kind        TEXT NOT NULL,
		route_tag   TEXT NOT NULL,
		payload     BLOB NOT NULL,
		captured_at INTEGER NOT NULL,
		PRIMARY KEY (kind, route_tag)
	)`,

	// Refresh bookkeeping (last_refresh, last_outage, etc.)
	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}
