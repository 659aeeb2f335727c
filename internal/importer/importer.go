// Package importer writes a snapshot document back to a Metabase instance.
//
// Replace mode wipes the destination's dashboards and cards and recreates
// them; merge mode upserts by name. Both validate the database mapping
// before the first write and reconcile collections by name. Destination ids
// are assigned by the server, so every reference is rewritten through the
// mappings built as entities are created.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

const (
	ModeReplace = "replace"
	ModeMerge   = "merge"
)

// Journal records the id mappings produced by an import.
type Journal interface {
	RecordMapping(ctx context.Context, kind string, source, target int) error
}

// Options configures an import.
type Options struct {
	DatabaseMapping  map[id.DatabaseID]id.DatabaseID
	IgnoredDatabases []id.DatabaseID
	Journal          Journal
	Logger           *slog.Logger
}

// Result summarizes an import.
type Result struct {
	Mode               string `json:"mode"`
	CollectionsCreated int    `json:"collections_created"`
	CollectionsReused  int    `json:"collections_reused"`
	DashboardsDeleted  int    `json:"dashboards_deleted,omitempty"`
	CardsDeleted       int    `json:"cards_deleted,omitempty"`
	CardsCreated       int    `json:"cards_created"`
	CardsUpdated       int    `json:"cards_updated,omitempty"`
	CardsSkipped       int    `json:"cards_skipped"`
	DashboardsCreated  int    `json:"dashboards_created"`
	DashboardsReplaced int    `json:"dashboards_replaced,omitempty"`
	PlacementsDropped  int    `json:"placements_dropped"`
}

type run struct {
	api    metabase.API
	opts   Options
	logger *slog.Logger
	result *Result
}

func newRun(api metabase.API, opts Options, mode string) *run {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &run{
		api:    api,
		opts:   opts,
		logger: logger,
		result: &Result{Mode: mode},
	}
}

func (r *run) record(ctx context.Context, kind string, source, target int) {
	if r.opts.Journal == nil {
		return
	}
	if err := r.opts.Journal.RecordMapping(ctx, kind, source, target); err != nil {
		r.logger.Warn("failed to record id mapping", "kind", kind, "source", source, "target", target, "error", err)
	}
}

// reconcileCollections maps every snapshot collection to a non-archived
// destination collection of the same name, creating the ones that are missing.
func (r *run) reconcileCollections(ctx context.Context, collections []domain.Collection) (id.Mapping[id.CollectionKind], error) {
	existing, err := r.api.GetAllCollections(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]id.CollectionID)
	for _, c := range existing {
		if c.Archived || c.IsRoot() {
			continue
		}
		if _, seen := byName[c.Name]; !seen {
			byName[c.Name] = c.ID
		}
	}

	mapping := id.NewMapping[id.CollectionKind]()
	for _, src := range collections {
		if target, ok := byName[src.Name]; ok {
			mapping.Set(src.ID, target)
			r.result.CollectionsReused++
			r.record(ctx, "collection", src.ID.Int(), target.Int())
			continue
		}

		created := src
		created.ID = 0
		r.logger.Info("creating collection", "name", src.Name)
		if err := r.api.CreateCollection(ctx, &created); err != nil {
			return nil, err
		}
		byName[src.Name] = created.ID
		mapping.Set(src.ID, created.ID)
		r.result.CollectionsCreated++
		r.record(ctx, "collection", src.ID.Int(), created.ID.Int())
	}
	return mapping, nil
}

// prepareCard returns a copy of src rewritten for the destination, or nil
// when the card is skipped.
func (r *run) prepareCard(src *domain.Card, collections id.Mapping[id.CollectionKind]) (*domain.Card, error) {
	if !src.IsNative() {
		r.logger.Warn("skipping card without a native SQL query", "card_id", src.ID, "name", src.Name)
		r.result.CardsSkipped++
		return nil, nil
	}
	if slices.Contains(r.opts.IgnoredDatabases, src.DatabaseID) || slices.Contains(r.opts.IgnoredDatabases, src.DatasetQuery.DatabaseID) {
		r.logger.Warn("skipping card on an ignored database", "card_id", src.ID, "name", src.Name, "database_id", src.DatabaseID)
		r.result.CardsSkipped++
		return nil, nil
	}

	card := cloneCard(src)
	label := fmt.Sprintf("card %d (%s)", src.ID, src.Name)

	if card.CollectionID != nil && *card.CollectionID != 0 {
		target, err := collections.Lookup(*card.CollectionID, label+" collection_id")
		if err != nil {
			return nil, err
		}
		card.CollectionID = &target
	} else {
		card.CollectionID = nil
	}

	db, ok := r.opts.DatabaseMapping[src.DatabaseID]
	if !ok {
		return nil, &id.RefNotFoundError{Kind: "database", ID: src.DatabaseID.Int(), Where: label + " database_id"}
	}
	card.DatabaseID = db
	queryDB, ok := r.opts.DatabaseMapping[src.DatasetQuery.DatabaseID]
	if !ok {
		return nil, &id.RefNotFoundError{Kind: "database", ID: src.DatasetQuery.DatabaseID.Int(), Where: label + " dataset_query.database"}
	}
	card.DatasetQuery.DatabaseID = queryDB

	card.NormalizeDescription()
	return card, nil
}

// prepareDashboard returns a copy of src with its collection rewritten.
func prepareDashboard(src *domain.Dashboard, collections id.Mapping[id.CollectionKind]) (*domain.Dashboard, error) {
	d := *src
	d.Cards = nil
	if d.CollectionID != nil && *d.CollectionID != 0 {
		target, err := collections.Lookup(*d.CollectionID, fmt.Sprintf("dashboard %d (%s) collection_id", src.ID, src.Name))
		if err != nil {
			return nil, err
		}
		d.CollectionID = &target
	} else {
		d.CollectionID = nil
	}
	return &d, nil
}

// mapPlacements rewrites card references of a dashboard's placements. A
// placement whose card was not created is dropped with a warning; parameter
// mappings and series must resolve.
func (r *run) mapPlacements(src *domain.Dashboard, cards id.Mapping[id.CardKind]) ([]domain.DashboardCard, error) {
	out := make([]domain.DashboardCard, 0, len(src.Cards))
	for _, p := range src.Cards {
		where := fmt.Sprintf("dashboard %d (%s) placement %d", src.ID, src.Name, p.ID)
		dc := clonePlacement(p)

		if !dc.IsVirtual() {
			target, ok := cards[*dc.CardID]
			if !ok {
				r.logger.Warn("dropping placement of a card that was not imported",
					"dashboard", src.Name, "placement_id", p.ID, "card_id", *dc.CardID)
				r.result.PlacementsDropped++
				continue
			}
			dc.CardID = &target
		}

		var err error
		for i := range dc.ParameterMappings {
			pm := &dc.ParameterMappings[i]
			if pm.CardID, err = cards.Lookup(pm.CardID, fmt.Sprintf("%s parameter mapping %q", where, pm.ParameterID)); err != nil {
				return nil, err
			}
		}
		for i := range dc.Series {
			s := &dc.Series[i]
			if s.ID, err = cards.Lookup(s.ID, where+" series"); err != nil {
				return nil, err
			}
		}
		out = append(out, dc)
	}
	return out, nil
}

func cloneCard(src *domain.Card) *domain.Card {
	c := *src
	if src.DatasetQuery.Native != nil {
		native := *src.DatasetQuery.Native
		c.DatasetQuery.Native = &native
	}
	return &c
}

func clonePlacement(p domain.DashboardCard) domain.DashboardCard {
	p.ParameterMappings = slices.Clone(p.ParameterMappings)
	p.Series = slices.Clone(p.Series)
	return p
}
