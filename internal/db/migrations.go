package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: history lookups by movement request (approval audit trail).
	`CREATE INDEX IF NOT EXISTS idx_history_events_request
	     ON history_events(movement_request_id) WHERE movement_request_id IS NOT NULL`,
}

// Migrate ensures the schema and then applies migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
