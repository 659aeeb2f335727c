package importer

import (
	"context"
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

// ValidateDatabaseMapping checks, before anything is written, that every
// database referenced by a card is either mapped or ignored (never both) and
// that every mapped destination database exists. All problems are reported
// in a single *MappingError.
func ValidateDatabaseMapping(ctx context.Context, api metabase.API, state *domain.State, mapping map[id.DatabaseID]id.DatabaseID, ignored []id.DatabaseID) error {
	mErr := &MappingError{}

	for _, src := range state.CardDatabaseIDs() {
		_, mapped := mapping[src]
		if !mapped && !slices.Contains(ignored, src) {
			mErr.Missing = append(mErr.Missing, src)
		}
	}

	for _, src := range ignored {
		if _, mapped := mapping[src]; mapped && !slices.Contains(mErr.Conflicting, src) {
			mErr.Conflicting = append(mErr.Conflicting, src)
		}
	}
	slices.Sort(mErr.Conflicting)

	if len(mapping) > 0 {
		databases, err := api.GetAllDatabases(ctx)
		if err != nil {
			return err
		}
		existing := make(map[id.DatabaseID]bool, len(databases))
		for _, db := range databases {
			existing[db.ID] = true
		}
		for _, src := range sortedKeys(mapping) {
			if dst := mapping[src]; !existing[dst] {
				if mErr.InvalidTargets == nil {
					mErr.InvalidTargets = make(map[id.DatabaseID]id.DatabaseID)
				}
				mErr.InvalidTargets[src] = dst
			}
		}
	}

	if mErr.empty() {
		return nil
	}
	return mErr
}

func sortedKeys[K ~int, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
