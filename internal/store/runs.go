package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunStore journals import runs and the id mappings they produce.
type RunStore struct {
	store *Store
}

// BeginParams describes an import run about to start.
type BeginParams struct {
	Instance   string
	Mode       string
	SourcePath string
	SourceRev  string
}

// ImportRun is a journal entry for one import.
type ImportRun struct {
	UUID       string     `json:"uuid" yaml:"uuid"`
	Instance   string     `json:"instance" yaml:"instance"`
	Mode       string     `json:"mode" yaml:"mode"`
	SourcePath string     `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	SourceRev  string     `json:"source_rev,omitempty" yaml:"source_rev,omitempty"`
	Status     string     `json:"status" yaml:"status"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Mappings   int        `json:"mappings" yaml:"mappings"`
}

// Mapping is one source id to destination id assignment.
type Mapping struct {
	Kind     string `json:"kind" yaml:"kind"`
	SourceID int    `json:"source_id" yaml:"source_id"`
	TargetID int    `json:"target_id" yaml:"target_id"`
}

// Journal records the mappings of a single run. It satisfies
// importer.Journal.
type Journal struct {
	runs *RunStore
	uuid string
}

// UUID returns the run id.
func (j *Journal) UUID() string {
	return j.uuid
}

// RecordMapping stores source -> target for kind. Recording the same source
// twice keeps the latest target.
func (j *Journal) RecordMapping(ctx context.Context, kind string, source, target int) error {
	_, err := j.runs.store.db.ExecContext(ctx, `
		INSERT INTO import_mappings (run_uuid, kind, source_id, target_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_uuid, kind, source_id) DO UPDATE SET target_id = excluded.target_id
	`, j.uuid, kind, source, target)
	if err != nil {
		return fmt.Errorf("failed to record %s mapping %d -> %d: %w", kind, source, target, err)
	}
	return nil
}

// Finish marks the run succeeded, or failed with runErr.
func (j *Journal) Finish(ctx context.Context, runErr error) error {
	status := RunSucceeded
	var errText *string
	if runErr != nil {
		status = RunFailed
		msg := runErr.Error()
		errText = &msg
	}
	_, err := j.runs.store.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, error = ?, finished_at = ? WHERE uuid = ?`,
		status, errText, now(), j.uuid)
	if err != nil {
		return fmt.Errorf("failed to finish import run %s: %w", j.uuid, err)
	}
	return nil
}

// Begin records a new running import and returns its journal.
func (rs *RunStore) Begin(ctx context.Context, params BeginParams) (*Journal, error) {
	runUUID := uuid.NewString()
	err := rs.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO import_runs (uuid, instance, mode, source_path, source_rev, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runUUID, params.Instance, params.Mode, params.SourcePath, params.SourceRev, RunRunning, now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin import run: %w", err)
	}
	return &Journal{runs: rs, uuid: runUUID}, nil
}

// List returns the most recent runs first. A limit of 0 returns all runs.
func (rs *RunStore) List(ctx context.Context, limit int) ([]ImportRun, error) {
	query := `
		SELECT r.uuid, r.instance, r.mode, r.source_path, r.source_rev, r.status,
		       COALESCE(r.error, ''), r.started_at, r.finished_at,
		       (SELECT COUNT(*) FROM import_mappings m WHERE m.run_uuid = r.uuid)
		FROM import_runs r
		ORDER BY r.started_at DESC, r.rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rs.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		var (
			r          ImportRun
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.UUID, &r.Instance, &r.Mode, &r.SourcePath, &r.SourceRev, &r.Status,
			&r.Error, &startedAt, &finishedAt, &r.Mappings); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns a single run by uuid or unique uuid prefix.
func (rs *RunStore) Get(ctx context.Context, ref string) (*ImportRun, error) {
	runs, err := rs.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var match *ImportRun
	for i := range runs {
		if runs[i].UUID == ref {
			return &runs[i], nil
		}
		if len(ref) >= 4 && len(runs[i].UUID) >= len(ref) && runs[i].UUID[:len(ref)] == ref {
			if match != nil {
				return nil, fmt.Errorf("import run prefix %q is ambiguous", ref)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, ErrRunNotFound
	}
	return match, nil
}

// Mappings returns the mappings of a run ordered by kind and source id.
func (rs *RunStore) Mappings(ctx context.Context, runUUID string) ([]Mapping, error) {
	rows, err := rs.store.db.QueryContext(ctx, `
		SELECT kind, source_id, target_id FROM import_mappings
		WHERE run_uuid = ?
		ORDER BY CASE kind WHEN 'collection' THEN 0 WHEN 'card' THEN 1 ELSE 2 END, source_id
	`, runUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.Kind, &m.SourceID, &m.TargetID); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ErrRunNotFound is returned by Get when no run matches.
var ErrRunNotFound = errors.New("import run not found")
