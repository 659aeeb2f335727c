// Package prune deletes explicitly named cards and dashboards.
package prune

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/elevate/elevate.metabase.tools/internal/bulk"
	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
)

// Request names the entities to delete.
type Request struct {
	Cards      []id.CardID
	Dashboards []id.DashboardID
}

// Empty reports whether the request names nothing.
func (r Request) Empty() bool {
	return len(r.Cards) == 0 && len(r.Dashboards) == 0
}

// Result lists what was deleted, in deletion order.
type Result struct {
	Cards      []id.CardID      `json:"cards"`
	Dashboards []id.DashboardID `json:"dashboards"`
}

// NotFoundError lists requested ids that do not exist on the instance.
type NotFoundError struct {
	Cards      []id.CardID
	Dashboards []id.DashboardID
}

func (e *NotFoundError) Error() string {
	var parts []string
	if len(e.Cards) > 0 {
		parts = append(parts, "cards "+id.Join(e.Cards))
	}
	if len(e.Dashboards) > 0 {
		parts = append(parts, "dashboards "+id.Join(e.Dashboards))
	}
	return fmt.Sprintf("not found: %s", strings.Join(parts, "; "))
}

// Delete checks that every requested id exists and then deletes the cards
// followed by the dashboards, each in the order the instance lists them.
// Repeated ids are deleted once. If any id is unknown nothing is deleted.
func Delete(ctx context.Context, api metabase.API, req Request, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cards, err := api.GetAllCards(ctx)
	if err != nil {
		return nil, err
	}
	dashboards, err := api.GetAllDashboards(ctx)
	if err != nil {
		return nil, err
	}

	cardIDs := matched(cards, func(c domain.Card) id.CardID { return c.ID }, req.Cards)
	dashboardIDs := matched(dashboards, func(d domain.Dashboard) id.DashboardID { return d.ID }, req.Dashboards)

	notFound := &NotFoundError{
		Cards:      unmatched(req.Cards, cardIDs),
		Dashboards: unmatched(req.Dashboards, dashboardIDs),
	}
	if len(notFound.Cards) > 0 || len(notFound.Dashboards) > 0 {
		return nil, notFound
	}

	res := &Result{}
	err = bulk.ForEach(ctx, cardIDs, func(ctx context.Context, cardID id.CardID) error {
		logger.Info("deleting card", "card_id", cardID)
		if err := api.DeleteCard(ctx, cardID); err != nil {
			return err
		}
		res.Cards = append(res.Cards, cardID)
		return nil
	})
	if err != nil {
		return res, err
	}

	err = bulk.ForEach(ctx, dashboardIDs, func(ctx context.Context, dashboardID id.DashboardID) error {
		logger.Info("deleting dashboard", "dashboard_id", dashboardID)
		if err := api.DeleteDashboard(ctx, dashboardID); err != nil {
			return err
		}
		res.Dashboards = append(res.Dashboards, dashboardID)
		return nil
	})
	return res, err
}

// matched returns the ids of items that were requested, in listing order.
func matched[T any, K id.Kind](items []T, key func(T) id.ID[K], requested []id.ID[K]) []id.ID[K] {
	want := make(map[id.ID[K]]bool, len(requested))
	for _, v := range requested {
		want[v] = true
	}
	var out []id.ID[K]
	for _, item := range items {
		if v := key(item); want[v] {
			out = append(out, v)
			delete(want, v)
		}
	}
	return out
}

// unmatched returns the requested ids missing from found, once each.
func unmatched[K id.Kind](requested, found []id.ID[K]) []id.ID[K] {
	var out []id.ID[K]
	for _, v := range requested {
		if !slices.Contains(found, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
