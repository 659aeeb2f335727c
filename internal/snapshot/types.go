// Package snapshot reads and writes Metabase state documents.
//
// The unindented canonical form is byte-stable across runs against an
// unchanged server and is the only form used for comparisons and revisions.
// The indented form is for operators and version control.
package snapshot

import "github.com/elevate/elevate.metabase.tools/internal/domain"

// DefaultPath is the default snapshot file location.
const DefaultPath = "metabase-state.json"

// SaveOptions configures Save.
type SaveOptions struct {
	// Canonical writes the unindented form instead of the indented one.
	Canonical bool
}

// SaveResult contains the result of writing a snapshot.
type SaveResult struct {
	OutputPath  string `json:"out"`
	SnapshotRev string `json:"snapshot_rev"`
	domain.Counts
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	InputPath   string `json:"input"`
	Valid       bool   `json:"valid"`
	SnapshotRev string `json:"snapshot_rev"`
	Message     string `json:"message,omitempty"`
	domain.Counts
}
