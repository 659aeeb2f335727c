package export

import (
	"fmt"
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
)

// mappings holds the identifier bijections built by the export stages.
type mappings struct {
	collections id.Mapping[id.CollectionKind]
	cards       id.Mapping[id.CardKind]
	dashboards  id.Mapping[id.DashboardKind]
}

// remapCollectionRef rewrites an optional collection reference. Root (nil or
// 0) is written as nil.
func (m *mappings) remapCollectionRef(ref *id.CollectionID, where string) (*id.CollectionID, error) {
	if ref == nil || *ref == 0 {
		return nil, nil
	}
	return m.collections.LookupPtr(ref, where)
}

func (m *mappings) remapCard(c *domain.Card) error {
	where := fmt.Sprintf("card %d (%s) collection_id", c.ID, c.Name)
	col, err := m.remapCollectionRef(c.CollectionID, where)
	if err != nil {
		return err
	}
	newID, err := m.cards.Lookup(c.ID, fmt.Sprintf("card %d (%s)", c.ID, c.Name))
	if err != nil {
		return err
	}

	c.ID = newID
	c.CollectionID = col
	c.NormalizeDescription()
	return nil
}

// remapDashboard rewrites the dashboard id, its collection, its placements
// (renumbered within the dashboard) and every card reference they hold.
func (m *mappings) remapDashboard(d *domain.Dashboard) error {
	label := fmt.Sprintf("dashboard %d (%s)", d.ID, d.Name)

	col, err := m.remapCollectionRef(d.CollectionID, label+" collection_id")
	if err != nil {
		return err
	}
	newID, err := m.dashboards.Lookup(d.ID, label)
	if err != nil {
		return err
	}

	placementIDs := make([]id.DashboardCardID, len(d.Cards))
	for i := range d.Cards {
		placementIDs[i] = d.Cards[i].ID
	}
	placements := id.Renumber(placementIDs)

	for i := range d.Cards {
		dc := &d.Cards[i]
		where := fmt.Sprintf("%s placement %d", label, dc.ID)

		if dc.CardID, err = m.cards.LookupPtr(dc.CardID, where+" card_id"); err != nil {
			return err
		}
		for j := range dc.ParameterMappings {
			pm := &dc.ParameterMappings[j]
			if pm.CardID, err = m.cards.Lookup(pm.CardID, fmt.Sprintf("%s parameter mapping %q", where, pm.ParameterID)); err != nil {
				return err
			}
		}
		for j := range dc.Series {
			s := &dc.Series[j]
			if s.ID, err = m.cards.Lookup(s.ID, where+" series"); err != nil {
				return err
			}
		}
		dc.ID = placements[dc.ID]
	}

	slices.SortFunc(d.Cards, func(a, b domain.DashboardCard) int { return a.ID.Compare(b.ID) })
	d.ID = newID
	d.CollectionID = col
	d.Description = normalize(d.Description)
	return nil
}

func normalize(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
