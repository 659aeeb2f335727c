package importer

import (
	"context"
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/bulk"
	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

// Merge upserts the snapshot into the destination by name, leaving
// unrelated cards and dashboards alone. A card that matches exactly one
// destination card is updated in place; a matching dashboard is deleted and
// recreated. A name matching several destination entities is an
// *AmbiguousNameError. Running Merge twice with the same snapshot leaves the
// destination unchanged in shape.
func Merge(ctx context.Context, api metabase.API, state *domain.State, opts Options) (*Result, error) {
	if err := ValidateDatabaseMapping(ctx, api, state, opts.DatabaseMapping, opts.IgnoredDatabases); err != nil {
		return nil, err
	}
	r := newRun(api, opts, ModeMerge)

	collections, err := r.reconcileCollections(ctx, state.Collections)
	if err != nil {
		return nil, err
	}

	cards, err := r.upsertCards(ctx, state.Cards, collections)
	if err != nil {
		return nil, err
	}

	existing, err := api.GetAllDashboards(ctx)
	if err != nil {
		return nil, err
	}
	byName := indexByName(existing, func(d domain.Dashboard) (string, int, bool) {
		return d.Name, d.ID.Int(), d.Archived
	})

	err = bulk.ForEach(ctx, state.Dashboards, func(ctx context.Context, src domain.Dashboard) error {
		matches := byName[src.Name]
		if len(matches) > 1 {
			return &AmbiguousNameError{Kind: "dashboard", Name: src.Name, IDs: matches}
		}
		if len(matches) == 1 {
			r.logger.Info("replacing dashboard", "name", src.Name, "dashboard_id", matches[0])
			if err := api.DeleteDashboard(ctx, id.DashboardID(matches[0])); err != nil {
				return err
			}
			r.result.DashboardsReplaced++
		}
		_, err := r.createDashboard(ctx, &src, collections, cards)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("import finished", "mode", ModeMerge,
		"cards_created", r.result.CardsCreated, "cards_updated", r.result.CardsUpdated,
		"dashboards", r.result.DashboardsCreated)
	return r.result, nil
}

func (r *run) upsertCards(ctx context.Context, src []domain.Card, collections id.Mapping[id.CollectionKind]) (id.Mapping[id.CardKind], error) {
	existing, err := r.api.GetAllCards(ctx)
	if err != nil {
		return nil, err
	}
	byName := indexByName(existing, func(c domain.Card) (string, int, bool) {
		return c.Name, c.ID.Int(), c.Archived
	})

	cards := id.NewMapping[id.CardKind]()
	err = bulk.ForEach(ctx, src, func(ctx context.Context, s domain.Card) error {
		// Skipped cards never take part in name matching.
		card, err := r.prepareCard(&s, collections)
		if err != nil || card == nil {
			return err
		}

		matches := byName[s.Name]
		switch len(matches) {
		case 0:
			card.ID = 0
			r.logger.Info("creating card", "name", card.Name)
			if err := r.api.CreateCard(ctx, card); err != nil {
				return err
			}
			r.result.CardsCreated++
		case 1:
			card.ID = id.CardID(matches[0])
			r.logger.Info("updating card", "name", card.Name, "card_id", card.ID)
			if err := r.api.UpdateCard(ctx, card); err != nil {
				return err
			}
			r.result.CardsUpdated++
		default:
			return &AmbiguousNameError{Kind: "card", Name: s.Name, IDs: matches}
		}
		cards.Set(s.ID, card.ID)
		r.record(ctx, "card", s.ID.Int(), card.ID.Int())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// indexByName groups the ids of non-archived entities by name, in ascending
// id order.
func indexByName[T any](items []T, key func(T) (string, int, bool)) map[string][]int {
	out := make(map[string][]int)
	for _, item := range items {
		name, v, archived := key(item)
		if archived {
			continue
		}
		out[name] = append(out[name], v)
	}
	for _, ids := range out {
		slices.Sort(ids)
	}
	return out
}
