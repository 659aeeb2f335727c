package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
)

const (
	FakeUsername = "admin@example.com"
	FakePassword = "secret"
)

// RecordedRequest is one request received by FakeMetabase.
type RecordedRequest struct {
	Method string
	Path   string
	Token  string
	Body   []byte
}

// FakeMetabase is an in-memory Metabase API served over httptest. Ids are
// assigned from counters that start well above 1 so renumbering is visible.
type FakeMetabase struct {
	Server *httptest.Server

	mu          sync.Mutex
	requests    []RecordedRequest
	tokens      map[string]bool
	logins      int
	rejectNext  int
	nextID      int
	databases   []domain.Database
	collections map[id.CollectionID]*domain.Collection
	cards       map[id.CardID]*domain.Card
	dashboards  map[id.DashboardID]*domain.Dashboard
	runResults  map[id.CardID]*domain.RunCardResult
	runCrashes  map[id.CardID]bool
}

// NewFakeMetabase starts a fake server that is closed when the test ends.
func NewFakeMetabase(t *testing.T) *FakeMetabase {
	t.Helper()

	f := &FakeMetabase{
		tokens:      make(map[string]bool),
		nextID:      100,
		collections: make(map[id.CollectionID]*domain.Collection),
		cards:       make(map[id.CardID]*domain.Card),
		dashboards:  make(map[id.DashboardID]*domain.Dashboard),
		runResults:  make(map[id.CardID]*domain.RunCardResult),
		runCrashes:  make(map[id.CardID]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", f.handleLogin)
	mux.HandleFunc("GET /api/user/current", f.authed(f.handleCurrentUser))
	mux.HandleFunc("GET /api/database", f.authed(f.handleListDatabases))
	mux.HandleFunc("GET /api/collection", f.authed(f.handleListCollections))
	mux.HandleFunc("POST /api/collection", f.authed(f.handleCreateCollection))
	mux.HandleFunc("GET /api/card", f.authed(f.handleListCards))
	mux.HandleFunc("POST /api/card", f.authed(f.handleCreateCard))
	mux.HandleFunc("PUT /api/card/{id}", f.authed(f.handleUpdateCard))
	mux.HandleFunc("DELETE /api/card/{id}", f.authed(f.handleDeleteCard))
	mux.HandleFunc("POST /api/card/{id}/query", f.authed(f.handleRunCard))
	mux.HandleFunc("GET /api/dashboard", f.authed(f.handleListDashboards))
	mux.HandleFunc("POST /api/dashboard", f.authed(f.handleCreateDashboard))
	mux.HandleFunc("GET /api/dashboard/{id}", f.authed(f.handleGetDashboard))
	mux.HandleFunc("PUT /api/dashboard/{id}", f.authed(f.handleUpdateDashboard))
	mux.HandleFunc("DELETE /api/dashboard/{id}", f.authed(f.handleDeleteDashboard))
	mux.HandleFunc("POST /api/dashboard/{id}/cards", f.authed(f.handleAddDashboardCard))
	mux.HandleFunc("PUT /api/dashboard/{id}/cards", f.authed(f.handlePutDashboardCards))

	f.Server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server base URL.
func (f *FakeMetabase) URL() string {
	return f.Server.URL
}

// IssueToken registers a valid token, as if obtained by an earlier run.
func (f *FakeMetabase) IssueToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = true
}

// ExpireTokens invalidates every issued token.
func (f *FakeMetabase) ExpireTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]bool)
}

// RejectNext answers the next n authenticated requests with 401 regardless
// of the token presented.
func (f *FakeMetabase) RejectNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNext = n
}

// Logins returns the number of successful logins.
func (f *FakeMetabase) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// Requests returns every recorded request in arrival order.
func (f *FakeMetabase) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Mutations returns the recorded requests that change server state.
func (f *FakeMetabase) Mutations() []RecordedRequest {
	var out []RecordedRequest
	for _, r := range f.Requests() {
		if r.Method == http.MethodGet || r.Path == "/api/session" || strings.HasSuffix(r.Path, "/query") {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CountRequests counts recorded requests with the given method and path.
func (f *FakeMetabase) CountRequests(method, path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeMetabase) allocID() int {
	f.nextID++
	return f.nextID
}

// AddDatabase seeds a database.
func (f *FakeMetabase) AddDatabase(dbID id.DatabaseID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.databases = append(f.databases, domain.Database{ID: dbID, Name: name, Engine: "postgres"})
}

// AddCollection seeds a collection and returns its assigned id.
func (f *FakeMetabase) AddCollection(c domain.Collection) id.CollectionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = id.CollectionID(f.allocID())
	f.collections[c.ID] = &c
	return c.ID
}

// AddCard seeds a card and returns its assigned id.
func (f *FakeMetabase) AddCard(c domain.Card) id.CardID {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = id.CardID(f.allocID())
	f.cards[c.ID] = &c
	return c.ID
}

// AddDashboard seeds a dashboard, assigning ids to it and its placements.
func (f *FakeMetabase) AddDashboard(d domain.Dashboard) id.DashboardID {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = id.DashboardID(f.allocID())
	d.Cards = slices.Clone(d.Cards)
	for i := range d.Cards {
		d.Cards[i].ID = id.DashboardCardID(f.allocID())
	}
	f.dashboards[d.ID] = &d
	return d.ID
}

// SetRunResult fixes the query result returned for a card.
func (f *FakeMetabase) SetRunResult(cardID id.CardID, status, errText string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runResults[cardID] = &domain.RunCardResult{Status: status, Error: errText}
}

// SetRunCrash makes running the card fail with a server error.
func (f *FakeMetabase) SetRunCrash(cardID id.CardID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCrashes[cardID] = true
}

// Collections returns the stored collections ordered by id.
func (f *FakeMetabase) Collections() []domain.Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedValues(f.collections)
}

// Cards returns the stored cards ordered by id.
func (f *FakeMetabase) Cards() []domain.Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedValues(f.cards)
}

// Dashboards returns the stored dashboards, with placements, ordered by id.
func (f *FakeMetabase) Dashboards() []domain.Dashboard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedValues(f.dashboards)
}

func sortedValues[K ~int, V any](m map[K]*V) []V {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, *m[k])
	}
	return out
}

func (f *FakeMetabase) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Token:  r.Header.Get("X-Metabase-Session"),
			Body:   body,
		})
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (f *FakeMetabase) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		reject := f.rejectNext > 0
		if reject {
			f.rejectNext--
		}
		valid := f.tokens[r.Header.Get("X-Metabase-Session")]
		f.mu.Unlock()

		if reject || !valid {
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	v, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func (f *FakeMetabase) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &creds) {
		return
	}
	if creds.Username != FakeUsername || creds.Password != FakePassword {
		http.Error(w, `{"errors":{"password":"did not match stored password"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.logins++
	token := fmt.Sprintf("token-%d", f.logins)
	f.tokens[token] = true
	f.mu.Unlock()

	writeJSON(w, map[string]string{"id": token})
}

func (f *FakeMetabase) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"id": 1, "email": FakeUsername})
}

func (f *FakeMetabase) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	dbs := slices.Clone(f.databases)
	f.mu.Unlock()
	if dbs == nil {
		dbs = []domain.Database{}
	}
	writeJSON(w, map[string]any{"data": dbs, "total": len(dbs)})
}

func (f *FakeMetabase) handleListCollections(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	cols := sortedValues(f.collections)
	f.mu.Unlock()

	out := []any{map[string]any{"id": "root", "name": "Our analytics", "archived": false}}
	for _, c := range cols {
		out = append(out, c)
	}
	writeJSON(w, out)
}

func (f *FakeMetabase) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var c domain.Collection
	if !decodeBody(w, r, &c) {
		return
	}
	f.mu.Lock()
	c.ID = id.CollectionID(f.allocID())
	f.collections[c.ID] = &c
	f.mu.Unlock()
	writeJSON(w, c)
}

func (f *FakeMetabase) handleListCards(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	cards := sortedValues(f.cards)
	f.mu.Unlock()
	if cards == nil {
		cards = []domain.Card{}
	}
	writeJSON(w, cards)
}

func (f *FakeMetabase) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var c domain.Card
	if !decodeBody(w, r, &c) {
		return
	}
	f.mu.Lock()
	c.ID = id.CardID(f.allocID())
	f.cards[c.ID] = &c
	f.mu.Unlock()
	writeJSON(w, c)
}

func (f *FakeMetabase) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r)
	if !ok {
		return
	}
	var c domain.Card
	if !decodeBody(w, r, &c) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.cards[id.CardID(cardID)]; !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	c.ID = id.CardID(cardID)
	f.cards[c.ID] = &c
	writeJSON(w, c)
}

func (f *FakeMetabase) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.cards[id.CardID(cardID)]; !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	delete(f.cards, id.CardID(cardID))
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeMetabase) handleRunCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.cards[id.CardID(cardID)]; !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	if f.runCrashes[id.CardID(cardID)] {
		http.Error(w, "query processor crashed", http.StatusInternalServerError)
		return
	}
	res, ok := f.runResults[id.CardID(cardID)]
	if !ok {
		res = &domain.RunCardResult{Status: "completed"}
	}
	writeJSON(w, res)
}

func (f *FakeMetabase) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	dashboards := sortedValues(f.dashboards)
	f.mu.Unlock()

	// The list endpoint leaves out placements.
	for i := range dashboards {
		dashboards[i].Cards = nil
	}
	if dashboards == nil {
		dashboards = []domain.Dashboard{}
	}
	writeJSON(w, dashboards)
}

func (f *FakeMetabase) handleCreateDashboard(w http.ResponseWriter, r *http.Request) {
	var d domain.Dashboard
	if !decodeBody(w, r, &d) {
		return
	}
	f.mu.Lock()
	d.ID = id.DashboardID(f.allocID())
	d.Cards = nil
	f.dashboards[d.ID] = &d
	f.mu.Unlock()
	writeJSON(w, d)
}

func (f *FakeMetabase) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	dashID, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	d, exists := f.dashboards[id.DashboardID(dashID)]
	var out domain.Dashboard
	if exists {
		out = *d
		out.Cards = slices.Clone(d.Cards)
	}
	f.mu.Unlock()
	if !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	if out.Cards == nil {
		out.Cards = []domain.DashboardCard{}
	}
	writeJSON(w, out)
}

func (f *FakeMetabase) handleUpdateDashboard(w http.ResponseWriter, r *http.Request) {
	dashID, ok := pathID(w, r)
	if !ok {
		return
	}
	var d domain.Dashboard
	if !decodeBody(w, r, &d) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, exists := f.dashboards[id.DashboardID(dashID)]
	if !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	// Placements are only changed through the cards endpoint.
	d.ID = existing.ID
	d.Cards = existing.Cards
	f.dashboards[d.ID] = &d
	writeJSON(w, d)
}

func (f *FakeMetabase) handleDeleteDashboard(w http.ResponseWriter, r *http.Request) {
	dashID, ok := pathID(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.dashboards[id.DashboardID(dashID)]; !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	delete(f.dashboards, id.DashboardID(dashID))
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeMetabase) handleAddDashboardCard(w http.ResponseWriter, r *http.Request) {
	dashID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		CardID id.CardID `json:"cardId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d, exists := f.dashboards[id.DashboardID(dashID)]
	if !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	if _, exists := f.cards[req.CardID]; !exists {
		http.Error(w, fmt.Sprintf("card %d does not exist", req.CardID), http.StatusBadRequest)
		return
	}
	placement := domain.DashboardCard{
		ID:     id.DashboardCardID(f.allocID()),
		CardID: req.CardID.Ptr(),
		SizeX:  4,
		SizeY:  4,
	}
	d.Cards = append(d.Cards, placement)
	writeJSON(w, placement)
}

func (f *FakeMetabase) handlePutDashboardCards(w http.ResponseWriter, r *http.Request) {
	dashID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Cards []domain.DashboardCard `json:"cards"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d, exists := f.dashboards[id.DashboardID(dashID)]
	if !exists {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	for _, p := range req.Cards {
		if p.CardID != nil {
			if _, exists := f.cards[*p.CardID]; !exists {
				http.Error(w, fmt.Sprintf("card %d does not exist", *p.CardID), http.StatusBadRequest)
				return
			}
		}
	}
	d.Cards = req.Cards
	writeJSON(w, map[string]string{"status": "ok"})
}
