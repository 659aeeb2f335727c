// Package metabase talks to the Metabase HTTP API.
//
// Session owns authentication; Client maps entity operations onto endpoints.
// Every call is issued and awaited in turn.
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
)

// API is the set of Metabase operations used by the export, import, delete
// and card check pipelines.
type API interface {
	GetAllCollections(ctx context.Context) ([]domain.Collection, error)
	CreateCollection(ctx context.Context, c *domain.Collection) error

	GetAllCards(ctx context.Context) ([]domain.Card, error)
	CreateCard(ctx context.Context, c *domain.Card) error
	UpdateCard(ctx context.Context, c *domain.Card) error
	DeleteCard(ctx context.Context, cardID id.CardID) error
	RunCard(ctx context.Context, cardID id.CardID) (*domain.RunCardResult, error)

	GetAllDashboards(ctx context.Context) ([]domain.Dashboard, error)
	GetDashboard(ctx context.Context, dashboardID id.DashboardID) (*domain.Dashboard, error)
	CreateDashboard(ctx context.Context, d *domain.Dashboard) error
	DeleteDashboard(ctx context.Context, dashboardID id.DashboardID) error
	AddCardsToDashboard(ctx context.Context, dashboardID id.DashboardID, placements []domain.DashboardCard) error

	GetAllDatabases(ctx context.Context) ([]domain.Database, error)
}

// Client implements API on top of a Session.
type Client struct {
	session *Session
}

var _ API = (*Client)(nil)

// NewClient returns a client sending requests through session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// Session returns the underlying session.
func (c *Client) Session() *Session {
	return c.session
}

// Ping checks that the current (possibly stored) token is usable, renewing
// it when the server rejects it.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.session.Do(ctx, http.MethodGet, "/api/user/current", nil); err != nil {
		return fmt.Errorf("failed to reach metabase: %w", err)
	}
	return nil
}

func decode[T any](kind string, body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, &ShapeError{Kind: kind, Body: string(body), Err: err}
	}
	return v, nil
}

type collectionWire struct {
	domain.Collection
	ID json.RawMessage `json:"id"`
}

func (c *Client) GetAllCollections(ctx context.Context) ([]domain.Collection, error) {
	body, err := c.session.Do(ctx, http.MethodGet, "/api/collection", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	wire, err := decode[[]collectionWire]("collection list", body)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Collection, 0, len(wire))
	for _, w := range wire {
		col := w.Collection
		// The root pseudo-collection is reported with the id "root".
		if !bytes.Equal(bytes.TrimSpace(w.ID), []byte(`"root"`)) {
			if err := json.Unmarshal(w.ID, &col.ID); err != nil {
				return nil, &ShapeError{Kind: "collection list", Body: string(body), Err: err}
			}
		} else {
			col.ID = 0
		}
		out = append(out, col)
	}
	return out, nil
}

func (c *Client) CreateCollection(ctx context.Context, col *domain.Collection) error {
	body, err := c.session.Do(ctx, http.MethodPost, "/api/collection", col)
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", col.Name, err)
	}
	created, err := decode[domain.Collection]("collection", body)
	if err != nil {
		return err
	}
	col.ID = created.ID
	return nil
}

func (c *Client) GetAllCards(ctx context.Context) ([]domain.Card, error) {
	body, err := c.session.Do(ctx, http.MethodGet, "/api/card", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	cards, err := decode[[]domain.Card]("card list", body)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if cards[i].MetadataChecksum == "" {
			cards[i].MetadataChecksum = cards[i].ComputeMetadataChecksum()
		}
	}
	return cards, nil
}

// CreateCard creates the card and then writes the full entity, since the
// create endpoint ignores some fields. The assigned id is stored in card.
func (c *Client) CreateCard(ctx context.Context, card *domain.Card) error {
	body, err := c.session.Do(ctx, http.MethodPost, "/api/card", card)
	if err != nil {
		return fmt.Errorf("failed to create card %q: %w", card.Name, err)
	}
	created, err := decode[domain.Card]("card", body)
	if err != nil {
		return err
	}
	card.ID = created.ID
	return c.UpdateCard(ctx, card)
}

func (c *Client) UpdateCard(ctx context.Context, card *domain.Card) error {
	path := fmt.Sprintf("/api/card/%d", card.ID)
	if _, err := c.session.Do(ctx, http.MethodPut, path, card); err != nil {
		return fmt.Errorf("failed to update card %d (%s): %w", card.ID, card.Name, err)
	}
	return nil
}

func (c *Client) DeleteCard(ctx context.Context, cardID id.CardID) error {
	if _, err := c.session.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/card/%d", cardID), nil); err != nil {
		return fmt.Errorf("failed to delete card %d: %w", cardID, err)
	}
	return nil
}

func (c *Client) RunCard(ctx context.Context, cardID id.CardID) (*domain.RunCardResult, error) {
	body, err := c.session.Do(ctx, http.MethodPost, fmt.Sprintf("/api/card/%d/query", cardID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to run card %d: %w", cardID, err)
	}
	res, err := decode[domain.RunCardResult]("card query result", body)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetAllDashboards lists dashboards and fetches each one again, since the
// list endpoint leaves out card placements.
func (c *Client) GetAllDashboards(ctx context.Context) ([]domain.Dashboard, error) {
	body, err := c.session.Do(ctx, http.MethodGet, "/api/dashboard", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	summaries, err := decode[[]domain.Dashboard]("dashboard list", body)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Dashboard, 0, len(summaries))
	for _, summary := range summaries {
		d, err := c.GetDashboard(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (c *Client) GetDashboard(ctx context.Context, dashboardID id.DashboardID) (*domain.Dashboard, error) {
	body, err := c.session.Do(ctx, http.MethodGet, fmt.Sprintf("/api/dashboard/%d", dashboardID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard %d: %w", dashboardID, err)
	}
	d, err := decode[domain.Dashboard]("dashboard", body)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDashboard creates the dashboard and then writes the full entity.
// Placements are attached separately with AddCardsToDashboard.
func (c *Client) CreateDashboard(ctx context.Context, d *domain.Dashboard) error {
	body, err := c.session.Do(ctx, http.MethodPost, "/api/dashboard", d)
	if err != nil {
		return fmt.Errorf("failed to create dashboard %q: %w", d.Name, err)
	}
	created, err := decode[domain.Dashboard]("dashboard", body)
	if err != nil {
		return err
	}
	d.ID = created.ID

	path := fmt.Sprintf("/api/dashboard/%d", d.ID)
	if _, err := c.session.Do(ctx, http.MethodPut, path, d); err != nil {
		return fmt.Errorf("failed to update dashboard %d (%s): %w", d.ID, d.Name, err)
	}
	return nil
}

func (c *Client) DeleteDashboard(ctx context.Context, dashboardID id.DashboardID) error {
	if _, err := c.session.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/dashboard/%d", dashboardID), nil); err != nil {
		return fmt.Errorf("failed to delete dashboard %d: %w", dashboardID, err)
	}
	return nil
}

// AddCardsToDashboard creates a placement for every card-backed entry, stores
// the assigned placement ids in placements, and then submits the whole layout
// in one batch.
func (c *Client) AddCardsToDashboard(ctx context.Context, dashboardID id.DashboardID, placements []domain.DashboardCard) error {
	path := fmt.Sprintf("/api/dashboard/%d/cards", dashboardID)

	for i := range placements {
		p := &placements[i]
		if p.IsVirtual() {
			continue
		}
		body, err := c.session.Do(ctx, http.MethodPost, path, map[string]any{"cardId": *p.CardID})
		if err != nil {
			return fmt.Errorf("failed to add card %d to dashboard %d: %w", *p.CardID, dashboardID, err)
		}
		created, err := decode[domain.DashboardCard]("dashboard card", body)
		if err != nil {
			return err
		}
		p.ID = created.ID
	}

	if placements == nil {
		placements = []domain.DashboardCard{}
	}
	if _, err := c.session.Do(ctx, http.MethodPut, path, map[string]any{"cards": placements}); err != nil {
		return fmt.Errorf("failed to put cards to dashboard %d: %w", dashboardID, err)
	}
	return nil
}

// GetAllDatabases accepts both the {"data": [...]} envelope and a bare list.
func (c *Client) GetAllDatabases(ctx context.Context) ([]domain.Database, error) {
	body, err := c.session.Do(ctx, http.MethodGet, "/api/database", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decode[[]domain.Database]("database list", body)
	}
	env, err := decode[struct {
		Data []domain.Database `json:"data"`
	}]("database list", body)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}
