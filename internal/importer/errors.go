package importer

import (
	"fmt"
	"strings"

	"github.com/elevate/elevate.metabase.tools/internal/id"
)

// MappingError reports every problem found while validating a database
// mapping. Missing and Conflicting hold source ids; InvalidTargets maps
// source ids to destination ids that do not exist.
type MappingError struct {
	Missing        []id.DatabaseID
	Conflicting    []id.DatabaseID
	InvalidTargets map[id.DatabaseID]id.DatabaseID
}

func (e *MappingError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing databases in mapping: "+id.Join(e.Missing))
	}
	if len(e.Conflicting) > 0 {
		parts = append(parts, "databases both mapped and ignored: "+id.Join(e.Conflicting))
	}
	if len(e.InvalidTargets) > 0 {
		var pairs []string
		for _, src := range sortedKeys(e.InvalidTargets) {
			pairs = append(pairs, fmt.Sprintf("%d -> %d", src, e.InvalidTargets[src]))
		}
		parts = append(parts, "mappings referencing invalid databases: "+strings.Join(pairs, ", "))
	}
	return "invalid database mapping: " + strings.Join(parts, "; ")
}

func (e *MappingError) empty() bool {
	return len(e.Missing) == 0 && len(e.Conflicting) == 0 && len(e.InvalidTargets) == 0
}

// AmbiguousNameError reports a name that matches more than one destination
// entity during a merge import.
type AmbiguousNameError struct {
	Kind string
	Name string
	IDs  []int
}

func (e *AmbiguousNameError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, v := range e.IDs {
		ids[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s name %q is ambiguous: matches %s %s on the destination", e.Kind, e.Name, e.Kind+"s", strings.Join(ids, ","))
}
