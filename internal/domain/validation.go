package domain

import (
	"errors"
	"fmt"

	"github.com/elevate/elevate.metabase.tools/internal/id"
)

// CheckReferences validates the reference integrity of a document. Every
// violation is reported; the result is nil when the document is consistent.
func (s *State) CheckReferences() error {
	var errs []error

	collections := make(map[id.CollectionID]bool, len(s.Collections))
	for _, c := range s.Collections {
		if collections[c.ID] {
			errs = append(errs, fmt.Errorf("duplicate collection id %d", c.ID))
		}
		collections[c.ID] = true
		if c.Archived {
			errs = append(errs, fmt.Errorf("collection %d (%s) is archived", c.ID, c.Name))
		}
	}

	cards := make(map[id.CardID]bool, len(s.Cards))
	for _, c := range s.Cards {
		if cards[c.ID] {
			errs = append(errs, fmt.Errorf("duplicate card id %d", c.ID))
		}
		cards[c.ID] = true
		if c.Archived {
			errs = append(errs, fmt.Errorf("card %d (%s) is archived", c.ID, c.Name))
		}
		if err := checkCollection(collections, c.CollectionID); err != nil {
			errs = append(errs, fmt.Errorf("card %d (%s): %w", c.ID, c.Name, err))
		}
	}

	dashboards := make(map[id.DashboardID]bool, len(s.Dashboards))
	for _, d := range s.Dashboards {
		if dashboards[d.ID] {
			errs = append(errs, fmt.Errorf("duplicate dashboard id %d", d.ID))
		}
		dashboards[d.ID] = true
		if d.Archived {
			errs = append(errs, fmt.Errorf("dashboard %d (%s) is archived", d.ID, d.Name))
		}
		if err := checkCollection(collections, d.CollectionID); err != nil {
			errs = append(errs, fmt.Errorf("dashboard %d (%s): %w", d.ID, d.Name, err))
		}

		placements := make(map[id.DashboardCardID]bool, len(d.Cards))
		for _, dc := range d.Cards {
			if placements[dc.ID] {
				errs = append(errs, fmt.Errorf("dashboard %d (%s): duplicate placement id %d", d.ID, d.Name, dc.ID))
			}
			placements[dc.ID] = true

			if !dc.IsVirtual() && !cards[*dc.CardID] {
				errs = append(errs, fmt.Errorf("dashboard %d (%s) placement %d: card %d does not exist", d.ID, d.Name, dc.ID, *dc.CardID))
			}
			for _, pm := range dc.ParameterMappings {
				if !cards[pm.CardID] {
					errs = append(errs, fmt.Errorf("dashboard %d (%s) placement %d parameter %q: card %d does not exist", d.ID, d.Name, dc.ID, pm.ParameterID, pm.CardID))
				}
			}
			for _, series := range dc.Series {
				if !cards[series.ID] {
					errs = append(errs, fmt.Errorf("dashboard %d (%s) placement %d series: card %d does not exist", d.ID, d.Name, dc.ID, series.ID))
				}
			}
		}
	}

	return errors.Join(errs...)
}

func checkCollection(known map[id.CollectionID]bool, ref *id.CollectionID) error {
	if ref == nil || *ref == 0 || known[*ref] {
		return nil
	}
	return fmt.Errorf("collection %d does not exist", *ref)
}
