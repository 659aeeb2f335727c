package importer

import (
	"context"
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/bulk"
	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

// Replace makes the destination's dashboards and cards equal to the
// snapshot's. Existing dashboards and cards are deleted first; collections
// are reused by name and never deleted.
//
// A failure after the first write leaves the destination partially
// modified. Nothing is written when the database mapping is invalid.
func Replace(ctx context.Context, api metabase.API, state *domain.State, opts Options) (*Result, error) {
	if err := ValidateDatabaseMapping(ctx, api, state, opts.DatabaseMapping, opts.IgnoredDatabases); err != nil {
		return nil, err
	}
	r := newRun(api, opts, ModeReplace)

	collections, err := r.reconcileCollections(ctx, state.Collections)
	if err != nil {
		return nil, err
	}

	if err := r.deleteAllDashboards(ctx); err != nil {
		return nil, err
	}
	if err := r.deleteAllCards(ctx); err != nil {
		return nil, err
	}

	cards, err := r.createCards(ctx, state.Cards, collections)
	if err != nil {
		return nil, err
	}

	_, err = bulk.Traverse(ctx, state.Dashboards, func(ctx context.Context, d domain.Dashboard) (id.DashboardID, error) {
		return r.createDashboard(ctx, &d, collections, cards)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("import finished", "mode", ModeReplace,
		"cards", r.result.CardsCreated, "dashboards", r.result.DashboardsCreated)
	return r.result, nil
}

func (r *run) deleteAllDashboards(ctx context.Context) error {
	existing, err := r.api.GetAllDashboards(ctx)
	if err != nil {
		return err
	}
	return bulk.ForEach(ctx, existing, func(ctx context.Context, d domain.Dashboard) error {
		r.logger.Debug("deleting dashboard", "dashboard_id", d.ID, "name", d.Name)
		if err := r.api.DeleteDashboard(ctx, d.ID); err != nil {
			return err
		}
		r.result.DashboardsDeleted++
		return nil
	})
}

func (r *run) deleteAllCards(ctx context.Context) error {
	existing, err := r.api.GetAllCards(ctx)
	if err != nil {
		return err
	}
	return bulk.ForEach(ctx, existing, func(ctx context.Context, c domain.Card) error {
		r.logger.Debug("deleting card", "card_id", c.ID, "name", c.Name)
		if err := r.api.DeleteCard(ctx, c.ID); err != nil {
			return err
		}
		r.result.CardsDeleted++
		return nil
	})
}

func (r *run) createCards(ctx context.Context, src []domain.Card, collections id.Mapping[id.CollectionKind]) (id.Mapping[id.CardKind], error) {
	cards := id.NewMapping[id.CardKind]()
	err := bulk.ForEach(ctx, src, func(ctx context.Context, s domain.Card) error {
		card, err := r.prepareCard(&s, collections)
		if err != nil || card == nil {
			return err
		}
		card.ID = 0
		r.logger.Info("creating card", "name", card.Name)
		if err := r.api.CreateCard(ctx, card); err != nil {
			return err
		}
		cards.Set(s.ID, card.ID)
		r.result.CardsCreated++
		r.record(ctx, "card", s.ID.Int(), card.ID.Int())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// createDashboard creates the dashboard and attaches its placements.
func (r *run) createDashboard(ctx context.Context, src *domain.Dashboard, collections id.Mapping[id.CollectionKind], cards id.Mapping[id.CardKind]) (id.DashboardID, error) {
	d, err := prepareDashboard(src, collections)
	if err != nil {
		return 0, err
	}
	placements, err := r.mapPlacements(src, cards)
	if err != nil {
		return 0, err
	}

	d.ID = 0
	r.logger.Info("creating dashboard", "name", d.Name, "placements", len(placements))
	if err := r.api.CreateDashboard(ctx, d); err != nil {
		return 0, err
	}
	if err := r.api.AddCardsToDashboard(ctx, d.ID, placements); err != nil {
		return 0, fmt.Errorf("dashboard %q: %w", d.Name, err)
	}
	r.result.DashboardsCreated++
	r.record(ctx, "dashboard", src.ID.Int(), d.ID.Int())
	return d.ID, nil
}
