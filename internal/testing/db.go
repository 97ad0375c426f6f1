// Package testing provides testing utilities and helpers for the papertrade project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/papertrade/papertrade/internal/database"
)

// NewTestDB creates a temp-file SQLite database for testing with the ledger
// schema applied. Returns the database instance and a cleanup function that
// closes the connection and removes the file. The cleanup function is
// idempotent and safe to call multiple times.
//
// Temporary files (rather than :memory:) ensure each test gets its own
// isolated database that survives connection-pool churn.
func NewTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_ledger_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "ledger",
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(tmpPath + suffix); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove %s: %v", tmpPath+suffix, err)
			}
		}
	}
}

// MustExec executes a statement against the test database and fails the test
// on error. Useful for seeding fixtures.
func MustExec(t *testing.T, db *database.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Conn().Exec(query, args...); err != nil {
		t.Fatalf("Failed to exec %q: %v", fmt.Sprintf("%.40s", query), err)
	}
}
