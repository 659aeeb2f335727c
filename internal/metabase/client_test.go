package metabase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/elevate/elevate.metabase.tools/internal/metabase"
	"github.com/elevate/elevate.metabase.tools/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(fake *testutil.FakeMetabase) *metabase.Client {
	return metabase.NewClient(newSession(fake, nil))
}

func nativeCard(name string, db id.DatabaseID) domain.Card {
	return domain.Card{
		Name:       name,
		DatabaseID: db,
		Display:    "table",
		DatasetQuery: domain.DatasetQuery{
			DatabaseID: db,
			Type:       domain.QueryTypeNative,
			Native:     &domain.NativeQuery{Query: "select 1"},
		},
	}
}

func TestGetAllCollectionsNormalizesRoot(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	finance := fake.AddCollection(domain.Collection{Name: "Finance"})

	cols, err := newClient(fake).GetAllCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, id.CollectionID(0), cols[0].ID)
	assert.True(t, cols[0].IsRoot())
	assert.Equal(t, finance, cols[1].ID)
	assert.Equal(t, "Finance", cols[1].Name)
}

func TestCreateCardPostsThenPuts(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := newClient(fake)

	card := nativeCard("Revenue", 2)
	card.ID = 7
	require.NoError(t, client.CreateCard(context.Background(), &card))

	assert.NotEqual(t, id.CardID(7), card.ID)
	assert.Equal(t, 1, fake.CountRequests(http.MethodPost, "/api/card"))
	assert.Equal(t, 1, fake.CountRequests(http.MethodPut, "/api/card/"+card.ID.String()))

	stored := fake.Cards()
	require.Len(t, stored, 1)
	assert.Equal(t, card.ID, stored[0].ID)
	assert.Equal(t, "select 1", stored[0].DatasetQuery.Native.Query)
}

func TestGetAllCardsComputesChecksum(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	card := nativeCard("Revenue", 2)
	card.ResultMetadata = json.RawMessage(`[{"name":"total"}]`)
	fake.AddCard(card)

	cards, err := newClient(fake).GetAllCards(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, cards[0].ComputeMetadataChecksum(), cards[0].MetadataChecksum)
	assert.NotEmpty(t, cards[0].MetadataChecksum)
}

func TestGetAllDashboardsRefetchesEach(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	cardID := fake.AddCard(nativeCard("Revenue", 2))
	d1 := fake.AddDashboard(domain.Dashboard{Name: "One", Cards: []domain.DashboardCard{{CardID: cardID.Ptr()}, {}}})
	d2 := fake.AddDashboard(domain.Dashboard{Name: "Two"})

	dashboards, err := newClient(fake).GetAllDashboards(context.Background())
	require.NoError(t, err)
	require.Len(t, dashboards, 2)
	assert.Equal(t, d1, dashboards[0].ID)
	assert.Len(t, dashboards[0].Cards, 2)
	assert.Equal(t, d2, dashboards[1].ID)
	assert.Empty(t, dashboards[1].Cards)

	assert.Equal(t, 1, fake.CountRequests(http.MethodGet, "/api/dashboard/"+d1.String()))
	assert.Equal(t, 1, fake.CountRequests(http.MethodGet, "/api/dashboard/"+d2.String()))
}

func TestAddCardsToDashboard(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := newClient(fake)
	ctx := context.Background()

	cardID := fake.AddCard(nativeCard("Revenue", 2))
	d := domain.Dashboard{Name: "Overview"}
	require.NoError(t, client.CreateDashboard(ctx, &d))

	placements := []domain.DashboardCard{
		{ID: 1, CardID: cardID.Ptr(), Col: 0, Row: 0, SizeX: 6, SizeY: 4},
		{ID: 2, Col: 6, Row: 0, SizeX: 6, SizeY: 2},
	}
	require.NoError(t, client.AddCardsToDashboard(ctx, d.ID, placements))

	assert.NotEqual(t, id.DashboardCardID(1), placements[0].ID, "placement id comes from the server")
	assert.Equal(t, id.DashboardCardID(2), placements[1].ID, "virtual tiles keep their id")
	assert.Equal(t, 1, fake.CountRequests(http.MethodPost, "/api/dashboard/"+d.ID.String()+"/cards"))
	assert.Equal(t, 1, fake.CountRequests(http.MethodPut, "/api/dashboard/"+d.ID.String()+"/cards"))

	got, err := client.GetDashboard(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Cards, 2)
	assert.Equal(t, 6, got.Cards[0].SizeX)
	assert.Equal(t, cardID, *got.Cards[0].CardID)
}

func TestGetAllDatabases(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	fake.AddDatabase(2, "warehouse")
	fake.AddDatabase(5, "events")

	dbs, err := newClient(fake).GetAllDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, dbs, 2)
	assert.Equal(t, id.DatabaseID(2), dbs[0].ID)
	assert.Equal(t, "events", dbs[1].Name)
}

func TestGetAllDatabasesBareList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/session" {
			_, _ = w.Write([]byte(`{"id":"t"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id": 3, "name": "legacy"}]`))
	}))
	defer srv.Close()

	client := metabase.NewClient(metabase.NewSession(metabase.SessionConfig{BaseURL: srv.URL}))
	dbs, err := client.GetAllDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, id.DatabaseID(3), dbs[0].ID)
}

func TestShapeErrorKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/session" {
			_, _ = w.Write([]byte(`{"id":"t"}`))
			return
		}
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	client := metabase.NewClient(metabase.NewSession(metabase.SessionConfig{BaseURL: srv.URL}))
	_, err := client.GetAllCards(context.Background())
	require.Error(t, err)

	var shapeErr *metabase.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "card list", shapeErr.Kind)
	assert.Equal(t, "<html>maintenance</html>", shapeErr.Body)
}

func TestRunCard(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	client := newClient(fake)
	ok := fake.AddCard(nativeCard("ok", 2))
	bad := fake.AddCard(nativeCard("bad", 2))
	fake.SetRunResult(bad, "failed", "relation does not exist")

	res, err := client.RunCard(context.Background(), ok)
	require.NoError(t, err)
	assert.True(t, res.Completed())

	res, err = client.RunCard(context.Background(), bad)
	require.NoError(t, err)
	assert.False(t, res.Completed())
	assert.Equal(t, "relation does not exist", res.Error)
}

func TestPing(t *testing.T) {
	fake := testutil.NewFakeMetabase(t)
	require.NoError(t, newClient(fake).Ping(context.Background()))
}
