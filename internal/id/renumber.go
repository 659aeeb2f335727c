package id

import (
	"errors"
	"fmt"
	"slices"
)

// ErrRefNotFound is matched by every RefNotFoundError.
var ErrRefNotFound = errors.New("reference not found")

// RefNotFoundError reports a lookup of an identifier that is absent from a
// mapping. Where describes the entity and field holding the reference.
type RefNotFoundError struct {
	Kind  string
	ID    int
	Where string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found in mapping (%s)", e.Kind, e.ID, e.Where)
}

func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrRefNotFound
}

// Mapping maps identifiers of one kind from a source space to a target space.
type Mapping[K Kind] map[ID[K]]ID[K]

// NewMapping returns an empty mapping.
func NewMapping[K Kind]() Mapping[K] {
	return make(Mapping[K])
}

// Renumber assigns 1..N to the given identifiers in ascending order of their
// original value. Duplicates are collapsed; an empty input yields an empty mapping.
func Renumber[K Kind](ids []ID[K]) Mapping[K] {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	m := make(Mapping[K], len(sorted))
	for i, v := range sorted {
		m[v] = ID[K](i + 1)
	}
	return m
}

// Set records source -> target.
func (m Mapping[K]) Set(source, target ID[K]) {
	m[source] = target
}

// Has reports whether source is mapped.
func (m Mapping[K]) Has(source ID[K]) bool {
	_, ok := m[source]
	return ok
}

// Len returns the number of mapped identifiers.
func (m Mapping[K]) Len() int {
	return len(m)
}

// Lookup resolves source. A missing entry is a RefNotFoundError.
func (m Mapping[K]) Lookup(source ID[K], where string) (ID[K], error) {
	target, ok := m[source]
	if !ok {
		return 0, &RefNotFoundError{Kind: KindName[K](), ID: source.Int(), Where: where}
	}
	return target, nil
}

// LookupPtr resolves an optional reference; nil stays nil.
func (m Mapping[K]) LookupPtr(source *ID[K], where string) (*ID[K], error) {
	if source == nil {
		return nil, nil
	}
	target, err := m.Lookup(*source, where)
	if err != nil {
		return nil, err
	}
	return &target, nil
}

