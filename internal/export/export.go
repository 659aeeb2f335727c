// Package export reads the state of a Metabase instance into a snapshot
// document with every identifier renumbered to 1..N.
//
// Renumbering is deterministic: two exports of an unchanged instance produce
// byte-identical canonical documents.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

// Options configures Export.
type Options struct {
	// ExcludePersonalCollections drops collections whose name contains
	// PersonalMarker, together with their cards and dashboards.
	ExcludePersonalCollections bool
	PersonalMarker             string
	Logger                     *slog.Logger
}

// Result contains the exported document.
type Result struct {
	State          *domain.State
	Counts         domain.Counts
	NonNativeCards []string
}

// Export fetches collections, cards and dashboards, in that order, and
// returns a renumbered, reference-consistent document.
func Export(ctx context.Context, api metabase.API, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &mappings{}
	state := &domain.State{}

	collections, err := exportCollections(ctx, api, opts, m)
	if err != nil {
		return nil, err
	}
	state.Collections = collections
	logger.Info("exported collections", "count", len(collections))

	cards, nonNative, err := exportCards(ctx, api, m, logger)
	if err != nil {
		return nil, err
	}
	state.Cards = cards
	logger.Info("exported cards", "count", len(cards))

	dashboards, err := exportDashboards(ctx, api, m)
	if err != nil {
		return nil, err
	}
	state.Dashboards = dashboards
	logger.Info("exported dashboards", "count", len(dashboards))

	if err := state.CheckReferences(); err != nil {
		return nil, fmt.Errorf("exported document is inconsistent: %w", err)
	}

	return &Result{
		State:          state,
		Counts:         state.Counts(),
		NonNativeCards: nonNative,
	}, nil
}

func exportCollections(ctx context.Context, api metabase.API, opts Options, m *mappings) ([]domain.Collection, error) {
	all, err := api.GetAllCollections(ctx)
	if err != nil {
		return nil, err
	}

	kept := slices.DeleteFunc(all, func(c domain.Collection) bool {
		if c.Archived || c.IsRoot() {
			return true
		}
		return opts.ExcludePersonalCollections && c.IsPersonal(opts.PersonalMarker)
	})
	slices.SortFunc(kept, func(a, b domain.Collection) int { return a.ID.Compare(b.ID) })

	m.collections = id.Renumber(collectionIDs(kept))
	for i := range kept {
		kept[i].ID = m.collections[kept[i].ID]
		kept[i].Description = normalize(kept[i].Description)
	}
	return kept, nil
}

func exportCards(ctx context.Context, api metabase.API, m *mappings, logger *slog.Logger) ([]domain.Card, []string, error) {
	all, err := api.GetAllCards(ctx)
	if err != nil {
		return nil, nil, err
	}

	kept := slices.DeleteFunc(all, func(c domain.Card) bool {
		return c.Archived || !m.inExportedCollection(c.CollectionID)
	})
	slices.SortFunc(kept, func(a, b domain.Card) int { return a.ID.Compare(b.ID) })

	ids := make([]id.CardID, len(kept))
	for i := range kept {
		ids[i] = kept[i].ID
	}
	m.cards = id.Renumber(ids)

	var nonNative []string
	for i := range kept {
		c := &kept[i]
		if !c.IsNative() {
			logger.Warn("card has no native SQL query and will not be imported", "card_id", c.ID, "name", c.Name)
			nonNative = append(nonNative, c.Name)
		}
		if err := m.remapCard(c); err != nil {
			return nil, nil, err
		}
	}
	return kept, nonNative, nil
}

func exportDashboards(ctx context.Context, api metabase.API, m *mappings) ([]domain.Dashboard, error) {
	all, err := api.GetAllDashboards(ctx)
	if err != nil {
		return nil, err
	}

	kept := slices.DeleteFunc(all, func(d domain.Dashboard) bool {
		return d.Archived || !m.inExportedCollection(d.CollectionID)
	})
	slices.SortFunc(kept, func(a, b domain.Dashboard) int { return a.ID.Compare(b.ID) })

	ids := make([]id.DashboardID, len(kept))
	for i := range kept {
		ids[i] = kept[i].ID
	}
	m.dashboards = id.Renumber(ids)

	for i := range kept {
		if err := m.remapDashboard(&kept[i]); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

func (m *mappings) inExportedCollection(ref *id.CollectionID) bool {
	return ref == nil || *ref == 0 || m.collections.Has(*ref)
}

func collectionIDs(cols []domain.Collection) []id.CollectionID {
	ids := make([]id.CollectionID, len(cols))
	for i := range cols {
		ids[i] = cols[i].ID
	}
	return ids
}
