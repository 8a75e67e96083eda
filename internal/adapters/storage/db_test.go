package storage

import (
	"database/sql"
	"errors"
	"sort"
	"testing"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// getTableNames returns sorted table names from sqlite_master, excluding internal tables.
func getTableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan table name: %v", err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TestInitDB_CreatesSchema verifies the submission table exists after init.
func TestInitDB_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	if err := InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	names := getTableNames(t, db)
	if len(names) != 1 || names[0] != "submission" {
		t.Errorf("expected [submission], got %v", names)
	}
}

// TestInitDB_Idempotent verifies running init twice is safe.
func TestInitDB_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := InitDB(db); err != nil {
		t.Fatalf("first InitDB: %v", err)
	}
	if err := InitDB(db); err != nil {
		t.Fatalf("second InitDB: %v", err)
	}
}

// TestIsCapacityErr classifies storage-capacity failures.
func TestIsCapacityErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite full", errors.New("database or disk is full (13)"), true},
		{"constant name", errors.New("SQLITE_FULL: out of space"), true},
		{"filesystem full", errors.New("write /tmp/g.db: no space left on device"), true},
		{"unrelated", errors.New("UNIQUE constraint failed: submission.id"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCapacityErr(tc.err); got != tc.want {
				t.Errorf("IsCapacityErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
