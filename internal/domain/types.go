// Package domain holds the Metabase entities handled by mbsnap and the
// snapshot document that aggregates them.
package domain

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/google/uuid"
)

// QueryTypeNative is the dataset query type of SQL cards.
const QueryTypeNative = "native"

// DefaultPersonalMarker identifies personal collections by name.
const DefaultPersonalMarker = "personal collection"

// Database is a data source owned by the destination server. It is only
// referenced and mapped, never created or deleted.
type Database struct {
	ID     id.DatabaseID `json:"id"`
	Name   string        `json:"name"`
	Engine string        `json:"engine,omitempty"`
}

// Collection is a named folder of cards and dashboards.
type Collection struct {
	ID          id.CollectionID `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug,omitempty"`
	Description *string         `json:"description"`
	Color       string          `json:"color,omitempty"`
	Archived    bool            `json:"archived"`
}

// IsPersonal reports whether the collection belongs to a single user. The
// name is matched case-insensitively against marker.
func (c *Collection) IsPersonal(marker string) bool {
	if marker == "" {
		marker = DefaultPersonalMarker
	}
	return strings.Contains(strings.ToLower(c.Name), strings.ToLower(marker))
}

// IsRoot reports whether this is the root pseudo-collection.
func (c *Collection) IsRoot() bool {
	return c.ID == 0
}

// Card is a saved question. Only native SQL cards can be recreated on import.
type Card struct {
	ID                    id.CardID        `json:"id"`
	Name                  string           `json:"name"`
	Description           *string          `json:"description"`
	Archived              bool             `json:"archived"`
	CollectionID          *id.CollectionID `json:"collection_id"`
	DatabaseID            id.DatabaseID    `json:"database_id"`
	Display               string           `json:"display"`
	EnableEmbedding       bool             `json:"enable_embedding"`
	EmbeddingParams       map[string]any   `json:"embedding_params"`
	DatasetQuery          DatasetQuery     `json:"dataset_query"`
	VisualizationSettings json.RawMessage  `json:"visualization_settings,omitempty"`
	ResultMetadata        json.RawMessage  `json:"result_metadata,omitempty"`
	MetadataChecksum      string           `json:"metadata_checksum,omitempty"`
}

// IsNative reports whether the card carries a native SQL definition.
func (c *Card) IsNative() bool {
	return c.DatasetQuery.Type == QueryTypeNative && c.DatasetQuery.Native != nil
}

// NormalizeDescription replaces an empty description with nil.
func (c *Card) NormalizeDescription() {
	c.Description = normalizeText(c.Description)
}

// ComputeMetadataChecksum hashes the result metadata column descriptors.
// An absent metadata list hashes like JSON null.
func (c *Card) ComputeMetadataChecksum() string {
	payload := []byte("null")
	if len(c.ResultMetadata) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, c.ResultMetadata); err == nil {
			payload = buf.Bytes()
		} else {
			payload = c.ResultMetadata
		}
	}
	sum := md5.Sum(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// DatasetQuery is the query definition embedded in a card. Its database may
// differ from the card's own DatabaseID.
type DatasetQuery struct {
	DatabaseID id.DatabaseID   `json:"database"`
	Type       string          `json:"type"`
	Native     *NativeQuery    `json:"native,omitempty"`
	Query      json.RawMessage `json:"query,omitempty"`
}

// NativeQuery is a SQL query with named template tag parameters.
type NativeQuery struct {
	Query        string                 `json:"query"`
	Collection   *string                `json:"collection,omitempty"`
	TemplateTags map[string]TemplateTag `json:"template-tags,omitempty"`
}

// TemplateTag is a named parameter of a native query.
type TemplateTag struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	DisplayName string          `json:"display-name"`
	Type        string          `json:"type"`
	Required    bool            `json:"required,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
	Dimension   json.RawMessage `json:"dimension,omitempty"`
	WidgetType  string          `json:"widget-type,omitempty"`
}

// Dashboard is a named arrangement of card placements.
type Dashboard struct {
	ID              id.DashboardID       `json:"id"`
	Name            string               `json:"name"`
	Description     *string              `json:"description"`
	Archived        bool                 `json:"archived"`
	CollectionID    *id.CollectionID     `json:"collection_id"`
	EnableEmbedding bool                 `json:"enable_embedding"`
	EmbeddingParams map[string]any       `json:"embedding_params"`
	Parameters      []DashboardParameter `json:"parameters"`
	Cards           []DashboardCard      `json:"ordered_cards"`
}

// UnmarshalJSON also accepts "dashcards", the placement field name used by
// newer servers.
func (d *Dashboard) UnmarshalJSON(data []byte) error {
	type plain Dashboard
	aux := struct {
		*plain
		DashCards []DashboardCard `json:"dashcards"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if d.Cards == nil && aux.DashCards != nil {
		d.Cards = aux.DashCards
	}
	return nil
}

// DashboardParameter is a dashboard level filter.
type DashboardParameter struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Slug    string          `json:"slug"`
	Type    string          `json:"type"`
	Default json.RawMessage `json:"default,omitempty"`
}

// DashboardCard is the placement of a card (or a text-only virtual tile) on
// a dashboard. Its ID identifies the placement, not the card.
type DashboardCard struct {
	ID                    id.DashboardCardID              `json:"id"`
	Col                   int                             `json:"col"`
	Row                   int                             `json:"row"`
	SizeX                 int                             `json:"sizeX"`
	SizeY                 int                             `json:"sizeY"`
	CardID                *id.CardID                      `json:"card_id"`
	ParameterMappings     []DashboardCardParameterMapping `json:"parameter_mappings"`
	VisualizationSettings json.RawMessage                 `json:"visualization_settings,omitempty"`
	Series                []DashboardSeriesCard           `json:"series"`
}

// UnmarshalJSON also accepts the snake case size fields of newer servers.
func (dc *DashboardCard) UnmarshalJSON(data []byte) error {
	type plain DashboardCard
	aux := struct {
		*plain
		SizeXAlt *int `json:"size_x"`
		SizeYAlt *int `json:"size_y"`
	}{plain: (*plain)(dc)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if dc.SizeX == 0 && aux.SizeXAlt != nil {
		dc.SizeX = *aux.SizeXAlt
	}
	if dc.SizeY == 0 && aux.SizeYAlt != nil {
		dc.SizeY = *aux.SizeYAlt
	}
	return nil
}

// IsVirtual reports whether the placement shows no card (e.g. a text tile).
func (dc *DashboardCard) IsVirtual() bool {
	return dc.CardID == nil
}

// DashboardCardParameterMapping binds a dashboard parameter to a card parameter.
type DashboardCardParameterMapping struct {
	ParameterID string          `json:"parameter_id"`
	CardID      id.CardID       `json:"card_id"`
	Target      json.RawMessage `json:"target,omitempty"`
}

// DashboardSeriesCard is an extra card overlaid on a placement's visualization.
type DashboardSeriesCard struct {
	ID                    id.CardID       `json:"id"`
	Name                  string          `json:"name,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Display               string          `json:"display,omitempty"`
	CollectionID          *int            `json:"collection_id,omitempty"`
	DatasetQuery          *DatasetQuery   `json:"dataset_query,omitempty"`
	VisualizationSettings json.RawMessage `json:"visualization_settings,omitempty"`
}

// RunCardResult is the outcome of executing a card's query.
type RunCardResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Completed reports whether the query ran successfully.
func (r *RunCardResult) Completed() bool {
	return r.Status == "completed"
}

func normalizeText(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
