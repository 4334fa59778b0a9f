package db

import (
	"path/filepath"
	"testing"
)

// setupTestRepository opens a migrated database in a temp dir.
func setupTestRepository(t *testing.T) (*Repository, *Database) {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRepository(database, nil), database
}
