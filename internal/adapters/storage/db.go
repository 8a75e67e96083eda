package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables
	schema := `
	CREATE TABLE IF NOT EXISTS submission (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		image_payload TEXT NOT NULL,
		status TEXT NOT NULL,
		result_json TEXT,
		error_message TEXT,
		uploaded_at TEXT NOT NULL,
		rotation INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_submission_position ON submission(position);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// IsCapacityErr reports whether err indicates the durable store ran out of
// space (SQLITE_FULL or the filesystem itself). Capacity failures degrade
// durability for the session, not correctness, so callers downgrade them to
// a warning instead of failing the mutation.
// PRE: none
// POST: returns true only for storage-capacity failures
func IsCapacityErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "sqlite_full") ||
		strings.Contains(msg, "no space left on device")
}
