package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
)

// Load reads and parses a snapshot file. The raw bytes are returned as well.
func Load(path string) (*domain.State, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return s, data, nil
}

// Parse decodes a snapshot document, rejecting unknown top level fields.
func Parse(data []byte) (*domain.State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var top map[string]json.RawMessage
	if err := dec.Decode(&top); err != nil {
		return nil, err
	}
	for key := range top {
		switch key {
		case "collections", "dashboards", "cards":
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}

	var s domain.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Verify checks that a snapshot file is canonical (round-trip deterministic)
// and internally consistent.
func Verify(inputPath string) (*VerifyResult, error) {
	s, _, err := Load(inputPath)
	if err != nil {
		return nil, err
	}

	canonicalOrig, err := CanonicalJSON(s)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot: %w", err)
	}

	reloaded, err := Parse(canonicalOrig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse canonicalized snapshot: %w", err)
	}
	canonicalReloaded, err := CanonicalJSON(reloaded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-canonicalize: %w", err)
	}

	result := &VerifyResult{
		InputPath:   inputPath,
		SnapshotRev: ComputeSnapshotRev(canonicalOrig),
		Counts:      s.Counts(),
	}

	if !bytes.Equal(canonicalOrig, canonicalReloaded) {
		result.Message = "round-trip failed: " + findFirstDiff(string(canonicalOrig), string(canonicalReloaded))
		return result, nil
	}
	if err := s.CheckReferences(); err != nil {
		result.Message = "reference check failed:\n" + err.Error()
		return result, nil
	}

	result.Valid = true
	result.Message = "snapshot is canonical and consistent"
	return result, nil
}

func findFirstDiff(a, b string) string {
	minLen := min(len(a), len(b))

	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			start := max(i-20, 0)
			end := min(i+20, minLen)
			return fmt.Sprintf("difference at byte %d: ...%s... vs ...%s...",
				i, strings.ReplaceAll(a[start:end], "\n", "\\n"),
				strings.ReplaceAll(b[start:end], "\n", "\\n"))
		}
	}

	if len(a) != len(b) {
		return fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))
	}

	return "unknown difference"
}
