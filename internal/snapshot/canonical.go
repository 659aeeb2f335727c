package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
)

// CanonicalJSON produces a deterministic JSON encoding:
// - top level keys in document order (collections, dashboards, cards)
// - every nested object with keys sorted lexicographically
// - no insignificant whitespace, no HTML escaping, no trailing newline
// - numbers written exactly as received
func CanonicalJSON(s *domain.State) ([]byte, error) {
	ordered, err := buildOrderedState(s)
	if err != nil {
		return nil, err
	}
	data, err := encode(ordered)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// PrettyJSON produces the indented form of the canonical encoding, followed
// by a newline.
func PrettyJSON(s *domain.State) ([]byte, error) {
	canonical, err := CanonicalJSON(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent snapshot: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ComputeSnapshotRev computes the sha256 hash of canonical JSON bytes.
// Returns "sha256:<hex>" format.
func ComputeSnapshotRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

func buildOrderedState(s *domain.State) (orderedMap, error) {
	collections, err := normalize(nonNil(s.Collections))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize collections: %w", err)
	}
	dashboards, err := normalize(nonNil(s.Dashboards))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize dashboards: %w", err)
	}
	cards, err := normalize(nonNil(s.Cards))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize cards: %w", err)
	}

	return orderedMap{
		{"collections", collections},
		{"dashboards", dashboards},
		{"cards", cards},
	}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// normalize round-trips v through a generic JSON tree so that object keys,
// including those inside raw server payloads, come out sorted.
func normalize(v any) (any, error) {
	data, err := encode(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// orderedMap is a slice of key-value pairs that marshals as a JSON object
// with keys in the order they appear in the slice.
type orderedMap []keyValue

type keyValue struct {
	Key   string
	Value any
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, kv := range om {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := encode(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := encode(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
