package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elevate/elevate.metabase.tools/internal/db"
	"github.com/elevate/elevate.metabase.tools/internal/store"
)

// TempStore opens a migrated state database in a temporary directory.
func TempStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	database, err := db.OpenAndMigrate(dbPath)
	if err != nil {
		t.Fatalf("Failed to create state database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	return store.New(database), dbPath
}

// WriteFile writes content to a file in dir and returns its path.
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}
