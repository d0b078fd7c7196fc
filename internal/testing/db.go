// Package testing provides shared test helpers for the persistence layers.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/rebalancer/internal/database"
)

// NewTestDB creates a temporary file-backed sqlite database with the given
// profile. A temp file rather than :memory: exercises the same WAL and
// PRAGMA path as production. The cleanup function closes the connection and
// removes the file.
func NewTestDB(t *testing.T, name string, profile database.Profile) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
		// WAL side files are cleaned up on close but may linger after a crash.
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
	}
}
