package db_test

import (
	"path/filepath"
	"testing"

	"github.com/elevate/elevate.metabase.tools/internal/db"
)

func TestMigrateIsIncremental(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	if database.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", database.Path(), dbPath)
	}

	applied, err := database.Migrate()
	if err != nil {
		t.Fatalf("first migrate failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 migrations applied, got %v", applied)
	}
	if applied[0] != "000001_sessions.sql" {
		t.Errorf("migrations must run in order, got %v", applied)
	}

	applied, err = database.Migrate()
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected nothing to apply on second run, got %v", applied)
	}

	for _, table := range []string{"sessions", "import_runs", "import_mappings"} {
		var count int
		err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s missing after migrate", table)
		}
	}
}

func TestOpenAndMigrateInMemory(t *testing.T) {
	database, err := db.OpenAndMigrate(":memory:")
	if err != nil {
		t.Fatalf("OpenAndMigrate failed: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec(`INSERT INTO sessions (instance, username, token) VALUES ('a', 'b', 'c')`); err != nil {
		t.Fatalf("schema not usable: %v", err)
	}
}
