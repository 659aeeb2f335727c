package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/elevate/elevate.metabase.tools/internal/db"
)

// setupTestDB creates a temporary test database with migrations applied.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.OpenAndMigrate(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSessionStore_RoundTrip(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()

	token, err := s.Sessions.LoadToken(ctx, "https://mb.example.com", "admin")
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "" {
		t.Errorf("expected no token, got %q", token)
	}

	if err := s.Sessions.SaveToken(ctx, "https://mb.example.com", "admin", "t1"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if err := s.Sessions.SaveToken(ctx, "https://mb.example.com", "admin", "t2"); err != nil {
		t.Fatalf("SaveToken overwrite failed: %v", err)
	}
	if err := s.Sessions.SaveToken(ctx, "https://other.example.com", "admin", "o1"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	token, err = s.Sessions.LoadToken(ctx, "https://mb.example.com", "admin")
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "t2" {
		t.Errorf("expected latest token t2, got %q", token)
	}

	token, _ = s.Sessions.LoadToken(ctx, "https://mb.example.com", "someone-else")
	if token != "" {
		t.Errorf("tokens are per user, got %q", token)
	}
}

func TestRunStore_Journal(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()

	j, err := s.Runs.Begin(ctx, BeginParams{
		Instance:   "https://mb.example.com",
		Mode:       "replace",
		SourcePath: "metabase-state.json",
		SourceRev:  "sha256:abc",
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if len(j.UUID()) != 36 {
		t.Errorf("expected a uuid, got %q", j.UUID())
	}

	for _, m := range []Mapping{
		{Kind: "card", SourceID: 2, TargetID: 202},
		{Kind: "collection", SourceID: 1, TargetID: 101},
		{Kind: "card", SourceID: 1, TargetID: 201},
		{Kind: "dashboard", SourceID: 1, TargetID: 301},
		{Kind: "card", SourceID: 1, TargetID: 211},
	} {
		if err := j.RecordMapping(ctx, m.Kind, m.SourceID, m.TargetID); err != nil {
			t.Fatalf("RecordMapping failed: %v", err)
		}
	}

	run, err := s.Runs.Get(ctx, j.UUID()[:8])
	if err != nil {
		t.Fatalf("Get by prefix failed: %v", err)
	}
	if run.Status != RunRunning {
		t.Errorf("expected running, got %s", run.Status)
	}
	if run.FinishedAt != nil {
		t.Error("running import has no finish time")
	}
	if run.Mappings != 4 {
		t.Errorf("expected 4 mappings, got %d", run.Mappings)
	}

	mappings, err := s.Runs.Mappings(ctx, j.UUID())
	if err != nil {
		t.Fatalf("Mappings failed: %v", err)
	}
	want := []Mapping{
		{Kind: "collection", SourceID: 1, TargetID: 101},
		{Kind: "card", SourceID: 1, TargetID: 211},
		{Kind: "card", SourceID: 2, TargetID: 202},
		{Kind: "dashboard", SourceID: 1, TargetID: 301},
	}
	if len(mappings) != len(want) {
		t.Fatalf("expected %d mappings, got %v", len(want), mappings)
	}
	for i := range want {
		if mappings[i] != want[i] {
			t.Errorf("mapping %d = %+v, want %+v", i, mappings[i], want[i])
		}
	}

	if err := j.Finish(ctx, errors.New("boom")); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	run, err = s.Runs.Get(ctx, j.UUID())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if run.Status != RunFailed || run.Error != "boom" {
		t.Errorf("expected failed run with error, got %s %q", run.Status, run.Error)
	}
	if run.FinishedAt == nil {
		t.Error("finished run should have a finish time")
	}
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()

	var ids []string
	for _, mode := range []string{"replace", "merge", "merge"} {
		j, err := s.Runs.Begin(ctx, BeginParams{Instance: "i", Mode: mode})
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := j.Finish(ctx, nil); err != nil {
			t.Fatalf("Finish failed: %v", err)
		}
		ids = append(ids, j.UUID())
	}

	runs, err := s.Runs.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].UUID != ids[2] || runs[1].UUID != ids[1] {
		t.Errorf("expected newest first, got %s, %s", runs[0].UUID, runs[1].UUID)
	}
	if runs[0].Status != RunSucceeded {
		t.Errorf("expected succeeded, got %s", runs[0].Status)
	}

	if _, err := s.Runs.Get(ctx, "does-not-exist"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunStore_RejectsUnknownMode(t *testing.T) {
	s := New(setupTestDB(t))
	if _, err := s.Runs.Begin(context.Background(), BeginParams{Instance: "i", Mode: "upsert"}); err == nil {
		t.Fatal("expected the schema to reject an unknown mode")
	}
}
