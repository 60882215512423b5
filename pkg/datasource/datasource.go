// Package datasource defines the storage capability behind generated endpoints.
package datasource

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Record is the neutral entity payload used by the API layer.
type Record map[string]any

// DataSource provides CRUD operations over entities of type T.
//
// The entity argument names the logical entity the payload belongs to. When
// empty, implementations fall back to DefaultEntityName.
type DataSource[T any] interface {
	// GetAll returns every stored entity.
	GetAll(ctx context.Context, entity string) ([]T, error)

	// GetByID returns the entity with the given id and whether it exists.
	GetByID(ctx context.Context, id, entity string) (T, bool, error)

	// Create stores item and returns the created entity. Backends that do
	// not echo generated fields return item unchanged.
	Create(ctx context.Context, item T, entity string) (T, error)

	// Update replaces the entity with the given id. Callers check existence first.
	Update(ctx context.Context, id string, item T, entity string) (T, error)

	// Delete removes the entity with the given id and reports whether anything was removed.
	Delete(ctx context.Context, id, entity string) (bool, error)

	// Duplicate returns an independent handle sharing the same underlying
	// connection pool or store.
	Duplicate() DataSource[T]
}

// Pinger is implemented by datasources that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by datasources holding backend resources.
type Closer interface {
	Close() error
}

// EntityNamer lets a payload type report the entity it represents.
type EntityNamer interface {
	EntityName() string
}

// DefaultEntityName returns the type-level entity name of T: the result of
// EntityName when T implements EntityNamer, else its lowercased type name.
func DefaultEntityName[T any]() string {
	var zero T
	if n, ok := any(zero).(EntityNamer); ok {
		return n.EntityName()
	}
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

// ResolveEntity returns entity, or DefaultEntityName when it is empty.
func ResolveEntity[T any](entity string) string {
	if strings.TrimSpace(entity) != "" {
		return entity
	}
	return DefaultEntityName[T]()
}

// KeyValue returns the payload value for a path id. When numeric is set and
// id is a base-10 integer the key is a JSON number, otherwise the id string.
func KeyValue(id string, numeric bool) any {
	if numeric {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return json.Number(strconv.FormatInt(n, 10))
		}
	}
	return id
}
