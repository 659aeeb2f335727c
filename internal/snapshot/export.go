package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
)

// Encode returns the bytes Save would write together with the snapshot
// revision, which is always computed from the canonical form.
func Encode(s *domain.State, opts SaveOptions) ([]byte, string, error) {
	canonical, err := CanonicalJSON(s)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate canonical JSON: %w", err)
	}
	rev := ComputeSnapshotRev(canonical)

	if opts.Canonical {
		return canonical, rev, nil
	}
	pretty, err := PrettyJSON(s)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate JSON: %w", err)
	}
	return pretty, rev, nil
}

// Save writes the document to path, creating parent directories.
func Save(path string, s *domain.State, opts SaveOptions) (*SaveResult, error) {
	if path == "" {
		path = DefaultPath
	}

	data, rev, err := Encode(s, opts)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	return &SaveResult{
		OutputPath:  path,
		SnapshotRev: rev,
		Counts:      s.Counts(),
	}, nil
}
