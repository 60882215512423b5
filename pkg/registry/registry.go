// Package registry provides a thread-safe registry of entity table mappings.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// NotFoundError is returned when no mapping matches an entity name.
type NotFoundError struct {
	Entity string
	Known  []string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no mapping found for entity '%s' (known: %s)", e.Entity, strings.Join(e.Known, ", "))
}

// Registry holds table mappings under several lookup keys.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]*TableMapping
	tables []*TableMapping
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[string]*TableMapping),
	}
}

// Register derives the mapping of an entity and stores it under the
// normalized name, the original name and the table name.
func (r *Registry) Register(e *schema.Entity) *TableMapping {
	m := NewTableMapping(e)

	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := schema.NormalizeName(e.Name)
	if prev, ok := r.byKey[normalized]; ok {
		r.tables = slices.DeleteFunc(r.tables, func(t *TableMapping) bool { return t == prev })
		maps.DeleteFunc(r.byKey, func(_ string, t *TableMapping) bool { return t == prev })
	}

	r.byKey[normalized] = m
	if e.Name != normalized {
		r.byKey[e.Name] = m
	}
	if m.TableName != e.Name {
		r.byKey[m.TableName] = m
	}
	r.tables = append(r.tables, m)

	return m
}

// RegisterAll registers every entity.
func (r *Registry) RegisterAll(entities []schema.Entity) {
	for i := range entities {
		r.Register(&entities[i])
	}
}

// Lookup resolves an entity name to its mapping. It tries the normalized
// name, then the exact name, then scans table names.
func (r *Registry) Lookup(name string) (*TableMapping, error) {
	normalized := schema.NormalizeName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.byKey[normalized]; ok {
		return m, nil
	}
	if m, ok := r.byKey[name]; ok {
		return m, nil
	}
	for _, m := range r.tables {
		if schema.NormalizeName(m.TableName) == normalized {
			return m, nil
		}
	}

	return nil, &NotFoundError{Entity: name, Known: r.keysLocked()}
}

// Has reports whether a name resolves to a mapping.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Keys returns every lookup key in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

func (r *Registry) keysLocked() []string {
	return slices.Sorted(maps.Keys(r.byKey))
}

// All returns the registered mappings in registration order.
func (r *Registry) All() []*TableMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tables)
}

// Len returns the number of registered mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// Clear removes all registered mappings.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKey = make(map[string]*TableMapping)
	r.tables = nil
}
