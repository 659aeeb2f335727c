package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/export"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
	"github.com/elevate/elevate.metabase.tools/internal/store"
	"github.com/elevate/elevate.metabase.tools/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapping struct {
	kind           string
	source, target int
}

type recordingJournal struct {
	entries []mapping
}

func (j *recordingJournal) RecordMapping(_ context.Context, kind string, source, target int) error {
	j.entries = append(j.entries, mapping{kind, source, target})
	return nil
}

func (j *recordingJournal) count(kind string) int {
	n := 0
	for _, e := range j.entries {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func newAPI(fake *testutil.FakeMetabase) metabase.API {
	return metabase.NewClient(metabase.NewSession(metabase.SessionConfig{
		BaseURL:  fake.URL(),
		Username: testutil.FakeUsername,
		Password: testutil.FakePassword,
	}))
}

func sqlCard(cardID id.CardID, name string, col *id.CollectionID, db id.DatabaseID) domain.Card {
	return domain.Card{
		ID:           cardID,
		Name:         name,
		CollectionID: col,
		DatabaseID:   db,
		Display:      "table",
		DatasetQuery: domain.DatasetQuery{
			DatabaseID: db,
			Type:       domain.QueryTypeNative,
			Native:     &domain.NativeQuery{Query: "select '" + name + "'"},
		},
	}
}

// fixture returns a small renumbered document: one collection, two cards and
// a dashboard with three placements, one of them a text tile.
func fixture() *domain.State {
	finance := id.CollectionID(1)
	return &domain.State{
		Collections: []domain.Collection{{ID: 1, Name: "Finance"}},
		Cards: []domain.Card{
			sqlCard(1, "Revenue", finance.Ptr(), 2),
			sqlCard(2, "Costs", nil, 2),
		},
		Dashboards: []domain.Dashboard{{
			ID:           1,
			Name:         "Overview",
			CollectionID: finance.Ptr(),
			Cards: []domain.DashboardCard{
				{
					ID:                1,
					CardID:            id.CardID(1).Ptr(),
					SizeX:             6,
					SizeY:             4,
					ParameterMappings: []domain.DashboardCardParameterMapping{{ParameterID: "p1", CardID: 1}},
					Series:            []domain.DashboardSeriesCard{{ID: 2}},
				},
				{ID: 2, Col: 6, SizeX: 6, SizeY: 2},
				{ID: 3, Row: 4, CardID: id.CardID(2).Ptr(), SizeX: 12, SizeY: 4},
			},
		}},
	}
}

func defaultOptions() Options {
	return Options{DatabaseMapping: map[id.DatabaseID]id.DatabaseID{2: 7}}
}

func TestReplaceRoundTrip(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")
	fake.AddCollection(domain.Collection{Name: "Finance"})
	fake.AddCard(sqlCard(0, "Stale", nil, 7))
	fake.AddDashboard(domain.Dashboard{Name: "Old"})
	api := newAPI(fake)
	ctx := context.Background()

	journal := &recordingJournal{}
	opts := defaultOptions()
	opts.Journal = journal

	state := fixture()
	res, err := Replace(ctx, api, state, opts)
	require.NoError(t, err)

	assert.Equal(t, ModeReplace, res.Mode)
	assert.Equal(t, 0, res.CollectionsCreated)
	assert.Equal(t, 1, res.CollectionsReused)
	assert.Equal(t, 1, res.DashboardsDeleted)
	assert.Equal(t, 1, res.CardsDeleted)
	assert.Equal(t, 2, res.CardsCreated)
	assert.Equal(t, 1, res.DashboardsCreated)
	assert.Equal(t, 0, res.PlacementsDropped)

	assert.Len(t, fake.Collections(), 1, "existing collections are reused by name")
	for _, c := range fake.Cards() {
		assert.NotEqual(t, "Stale", c.Name)
		assert.Equal(t, id.DatabaseID(7), c.DatabaseID)
		assert.Equal(t, id.DatabaseID(7), c.DatasetQuery.DatabaseID)
	}

	exported, err := export.Export(ctx, api, export.Options{})
	require.NoError(t, err)
	assert.True(t, state.Equivalent(exported.State))

	d := exported.State.Dashboards[0]
	require.Len(t, d.Cards, 3)
	assert.Equal(t, *d.Cards[0].CardID, d.Cards[0].ParameterMappings[0].CardID)

	assert.Equal(t, 1, journal.count("collection"))
	assert.Equal(t, 2, journal.count("card"))
	assert.Equal(t, 1, journal.count("dashboard"))
}

func TestReplaceCreatesMissingCollections(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")
	fake.AddCollection(domain.Collection{Name: "Finance", Archived: true})

	res, err := Replace(context.Background(), newAPI(fake), fixture(), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.CollectionsCreated)
	cols := fake.Collections()
	require.Len(t, cols, 2)
	created := cols[1]
	assert.False(t, created.Archived)

	for _, c := range fake.Cards() {
		if c.Name == "Revenue" {
			require.NotNil(t, c.CollectionID)
			assert.Equal(t, created.ID, *c.CollectionID)
		}
	}
}

func TestReplaceValidatesMappingBeforeWriting(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		missing []id.DatabaseID
		both    []id.DatabaseID
		invalid map[id.DatabaseID]id.DatabaseID
	}{
		{
			name:    "unmapped database",
			opts:    Options{},
			missing: []id.DatabaseID{2},
		},
		{
			name: "mapped and ignored",
			opts: Options{
				DatabaseMapping:  map[id.DatabaseID]id.DatabaseID{2: 7},
				IgnoredDatabases: []id.DatabaseID{2},
			},
			both: []id.DatabaseID{2},
		},
		{
			name:    "unknown destination",
			opts:    Options{DatabaseMapping: map[id.DatabaseID]id.DatabaseID{2: 99}},
			invalid: map[id.DatabaseID]id.DatabaseID{2: 99},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeMetabase(t)
			fake.AddDatabase(7, "warehouse")

			_, err := Replace(context.Background(), newAPI(fake), fixture(), tt.opts)
			require.Error(t, err)

			var mErr *MappingError
			require.ErrorAs(t, err, &mErr)
			assert.Equal(t, tt.missing, mErr.Missing)
			assert.Equal(t, tt.both, mErr.Conflicting)
			assert.Equal(t, tt.invalid, mErr.InvalidTargets)
			assert.Empty(t, fake.Mutations(), "nothing is written when the mapping is invalid")
		})
	}
}

func TestMappingErrorReportsEverything(t *testing.T) {
	state := fixture()
	state.Cards = append(state.Cards, sqlCard(3, "Events", nil, 4))

	fake := testutil.NewFakeMetabase(t)
	err := ValidateDatabaseMapping(context.Background(), newAPI(fake), state,
		map[id.DatabaseID]id.DatabaseID{5: 8}, []id.DatabaseID{5})
	require.Error(t, err)

	var mErr *MappingError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, []id.DatabaseID{2, 4}, mErr.Missing)
	assert.Equal(t, []id.DatabaseID{5}, mErr.Conflicting)
	assert.Equal(t, map[id.DatabaseID]id.DatabaseID{5: 8}, mErr.InvalidTargets)
	assert.Contains(t, err.Error(), "missing databases in mapping: 2,4")
	assert.Contains(t, err.Error(), "5 -> 8")
}

func TestReplaceSkipsIgnoredDatabaseAndDropsPlacements(t *testing.T) {
	state := fixture()
	state.Cards[1] = sqlCard(2, "Costs", nil, 3)
	state.Dashboards[0].Cards[0].Series = nil

	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")

	opts := defaultOptions()
	opts.IgnoredDatabases = []id.DatabaseID{3}
	res, err := Replace(context.Background(), newAPI(fake), state, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CardsCreated)
	assert.Equal(t, 1, res.CardsSkipped)
	assert.Equal(t, 1, res.PlacementsDropped)

	dashboards := fake.Dashboards()
	require.Len(t, dashboards, 1)
	assert.Len(t, dashboards[0].Cards, 2, "the text tile survives, the skipped card's placement does not")
}

func TestReplaceSkipsNonNativeCards(t *testing.T) {
	state := fixture()
	state.Cards[1].DatasetQuery = domain.DatasetQuery{DatabaseID: 2, Type: "query"}
	state.Dashboards[0].Cards[0].Series = nil

	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")

	res, err := Replace(context.Background(), newAPI(fake), state, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CardsSkipped)
	assert.Len(t, fake.Cards(), 1)
}

func TestReplaceFailsOnUnresolvedSeries(t *testing.T) {
	state := fixture()
	state.Cards[1] = sqlCard(2, "Costs", nil, 3)

	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")

	opts := defaultOptions()
	opts.IgnoredDatabases = []id.DatabaseID{3}
	_, err := Replace(context.Background(), newAPI(fake), state, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, id.ErrRefNotFound))
	assert.Contains(t, err.Error(), "series")
}

func TestMergeIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")
	keep := fake.AddCard(sqlCard(0, "Keep me", nil, 7))
	api := newAPI(fake)
	ctx := context.Background()

	first, err := Merge(ctx, api, fixture(), defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, first.Mode)
	assert.Equal(t, 1, first.CollectionsCreated)
	assert.Equal(t, 2, first.CardsCreated)
	assert.Equal(t, 0, first.CardsUpdated)
	assert.Equal(t, 1, first.DashboardsCreated)
	cardsAfterFirst := fake.Cards()

	second, err := Merge(ctx, api, fixture(), defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, second.CollectionsCreated)
	assert.Equal(t, 1, second.CollectionsReused)
	assert.Equal(t, 0, second.CardsCreated)
	assert.Equal(t, 2, second.CardsUpdated)
	assert.Equal(t, 1, second.DashboardsReplaced)

	cardsAfterSecond := fake.Cards()
	require.Len(t, cardsAfterSecond, 3)
	assert.Equal(t, cardsAfterFirst, cardsAfterSecond, "cards are updated in place")
	assert.Equal(t, keep, cardsAfterSecond[0].ID, "unrelated cards are left alone")

	dashboards := fake.Dashboards()
	require.Len(t, dashboards, 1)
	assert.Len(t, dashboards[0].Cards, 3)
	assert.Len(t, fake.Collections(), 1)
}

func TestMergeRejectsAmbiguousNames(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")
	fake.AddCollection(domain.Collection{Name: "Finance"})
	a := fake.AddCard(sqlCard(0, "Revenue", nil, 7))
	b := fake.AddCard(sqlCard(0, "Revenue", nil, 7))

	_, err := Merge(context.Background(), newAPI(fake), fixture(), defaultOptions())
	require.Error(t, err)

	var ambiguous *AmbiguousNameError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "card", ambiguous.Kind)
	assert.Equal(t, "Revenue", ambiguous.Name)
	assert.Equal(t, []int{a.Int(), b.Int()}, ambiguous.IDs)
	assert.Empty(t, fake.Mutations())
}

func TestMergeRejectsAmbiguousDashboards(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")
	fake.AddDashboard(domain.Dashboard{Name: "Overview"})
	fake.AddDashboard(domain.Dashboard{Name: "Overview"})

	_, err := Merge(context.Background(), newAPI(fake), fixture(), defaultOptions())
	var ambiguous *AmbiguousNameError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "dashboard", ambiguous.Kind)
	assert.Len(t, ambiguous.IDs, 2)
}

func TestMergeIgnoresDuplicateNamesOfSkippedCards(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.State)
		ignored []id.DatabaseID
	}{
		{
			name: "non-native card",
			mutate: func(s *domain.State) {
				s.Cards[1].DatasetQuery = domain.DatasetQuery{DatabaseID: 2, Type: "query"}
			},
		},
		{
			name: "card on an ignored database",
			mutate: func(s *domain.State) {
				s.Cards[1] = sqlCard(2, "Costs", nil, 3)
			},
			ignored: []id.DatabaseID{3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := fixture()
			tt.mutate(state)
			state.Dashboards[0].Cards[0].Series = nil

			fake := testutil.NewFakeMetabase(t)
			fake.AddDatabase(7, "warehouse")
			first := fake.AddCard(sqlCard(0, "Costs", nil, 7))
			second := fake.AddCard(sqlCard(0, "Costs", nil, 7))
			before := fake.Cards()

			opts := defaultOptions()
			opts.IgnoredDatabases = tt.ignored
			res, err := Merge(context.Background(), newAPI(fake), state, opts)
			require.NoError(t, err)
			assert.Equal(t, 1, res.CardsSkipped)
			assert.Equal(t, 1, res.CardsCreated)
			assert.Equal(t, 0, res.CardsUpdated)
			assert.Equal(t, 1, res.DashboardsCreated)

			after := fake.Cards()
			require.Len(t, after, 3)
			assert.Equal(t, before[0], after[0])
			assert.Equal(t, before[1], after[1])
			assert.Equal(t, []id.CardID{first, second}, []id.CardID{after[0].ID, after[1].ID})
			assert.Equal(t, "Revenue", after[2].Name)
		})
	}
}

func TestReplaceJournalsToStateDatabase(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(7, "warehouse")
	st, _ := testutil.TempStore(t)
	ctx := context.Background()

	journal, err := st.Runs.Begin(ctx, store.BeginParams{Instance: fake.URL(), Mode: ModeReplace})
	require.NoError(t, err)

	opts := defaultOptions()
	opts.Journal = journal
	_, err = Replace(ctx, newAPI(fake), fixture(), opts)
	require.NoError(t, journal.Finish(ctx, err))
	require.NoError(t, err)

	run, err := st.Runs.Get(ctx, journal.UUID())
	require.NoError(t, err)
	assert.Equal(t, store.RunSucceeded, run.Status)
	assert.Equal(t, 4, run.Mappings)

	mappings, err := st.Runs.Mappings(ctx, journal.UUID())
	require.NoError(t, err)
	created := map[int]bool{}
	for _, c := range fake.Cards() {
		created[c.ID.Int()] = true
	}
	for _, m := range mappings {
		if m.Kind == "card" {
			assert.True(t, created[m.TargetID], "card %d should map to a created card", m.SourceID)
		}
	}
}
