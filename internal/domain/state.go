package domain

import (
	"slices"

	"github.com/elevate/elevate.metabase.tools/internal/id"
)

// State is the snapshot document: everything mbsnap exports and imports.
type State struct {
	Collections []Collection `json:"collections"`
	Dashboards  []Dashboard  `json:"dashboards"`
	Cards       []Card       `json:"cards"`
}

// Counts summarizes the size of a state.
type Counts struct {
	Collections int `json:"collections"`
	Cards       int `json:"cards"`
	Dashboards  int `json:"dashboards"`
	Placements  int `json:"placements"`
}

// Counts returns the number of entities of each kind.
func (s *State) Counts() Counts {
	c := Counts{
		Collections: len(s.Collections),
		Cards:       len(s.Cards),
		Dashboards:  len(s.Dashboards),
	}
	for i := range s.Dashboards {
		c.Placements += len(s.Dashboards[i].Cards)
	}
	return c
}

// Equivalent reports whether two documents hold the same number of
// collections, cards and dashboards, and every dashboard name of s appears
// exactly once in other with the same number of placements.
func (s *State) Equivalent(other *State) bool {
	if len(s.Collections) != len(other.Collections) ||
		len(s.Cards) != len(other.Cards) ||
		len(s.Dashboards) != len(other.Dashboards) {
		return false
	}

	byName := make(map[string][]*Dashboard, len(other.Dashboards))
	for i := range other.Dashboards {
		d := &other.Dashboards[i]
		byName[d.Name] = append(byName[d.Name], d)
	}
	for i := range s.Dashboards {
		d := &s.Dashboards[i]
		matches := byName[d.Name]
		if len(matches) != 1 || len(matches[0].Cards) != len(d.Cards) {
			return false
		}
	}
	return true
}

// CardDatabaseIDs returns every database referenced by a card, either
// directly or through its dataset query, in ascending order.
func (s *State) CardDatabaseIDs() []id.DatabaseID {
	seen := make(map[id.DatabaseID]bool)
	var out []id.DatabaseID
	add := func(db id.DatabaseID) {
		if !seen[db] {
			seen[db] = true
			out = append(out, db)
		}
	}
	for i := range s.Cards {
		add(s.Cards[i].DatabaseID)
		add(s.Cards[i].DatasetQuery.DatabaseID)
	}
	slices.Sort(out)
	return out
}

