// Package id provides typed integer identifiers for Metabase entities.
//
// Each entity kind gets its own instantiation of ID so that a CardID can never
// be passed where a DashboardID is expected.
package id

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind names the entity kind an ID belongs to.
type Kind interface {
	Name() string
}

type (
	DatabaseKind      struct{}
	CollectionKind    struct{}
	CardKind          struct{}
	DashboardKind     struct{}
	DashboardCardKind struct{}
)

func (DatabaseKind) Name() string      { return "database" }
func (CollectionKind) Name() string    { return "collection" }
func (CardKind) Name() string          { return "card" }
func (DashboardKind) Name() string     { return "dashboard" }
func (DashboardCardKind) Name() string { return "dashboard card" }

// ID is an opaque server-assigned identifier of kind K.
type ID[K Kind] int

type (
	DatabaseID      = ID[DatabaseKind]
	CollectionID    = ID[CollectionKind]
	CardID          = ID[CardKind]
	DashboardID     = ID[DashboardKind]
	DashboardCardID = ID[DashboardCardKind]
)

// KindName returns the entity kind name of K.
func KindName[K Kind]() string {
	var k K
	return k.Name()
}

// Int returns the underlying integer value.
func (i ID[K]) Int() int {
	return int(i)
}

func (i ID[K]) String() string {
	return strconv.Itoa(int(i))
}

// Compare returns -1, 0 or +1 depending on the order of i and other.
func (i ID[K]) Compare(other ID[K]) int {
	switch {
	case i < other:
		return -1
	case i > other:
		return 1
	default:
		return 0
	}
}

// Ptr returns a pointer to a copy of i, for optional reference fields.
func (i ID[K]) Ptr() *ID[K] {
	return &i
}

// MarshalJSON writes the identifier as a bare JSON number.
func (i ID[K]) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(i))), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (i *ID[K]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid %s id %s: %w", KindName[K](), raw, err)
		}
		raw = s
	}

	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s id %s", KindName[K](), string(data))
	}
	*i = ID[K](v)
	return nil
}

// Parse parses a single decimal identifier.
func Parse[K Kind](s string) (ID[K], error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q", KindName[K](), s)
	}
	return ID[K](v), nil
}

// ParseList parses a comma separated list of identifiers ("1,2, 3").
// An empty or blank string yields an empty list.
func ParseList[K Kind](s string) ([]ID[K], error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]ID[K], 0, len(parts))
	for _, part := range parts {
		v, err := Parse[K](part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, nil
}

// Join formats identifiers as a comma separated list.
func Join[K Kind](ids []ID[K]) string {
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}
