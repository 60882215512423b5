package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// memoryTable keeps records in insertion order.
type memoryTable struct {
	order []string
	items map[string]map[string]any
}

type memoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
}

// Memory is an in-process datasource. Duplicates share the same store.
type Memory[T any] struct {
	store    *memoryStore
	mappings *registry.Registry
}

// NewMemory creates an in-memory datasource for the given entities. With no
// entities, any entity name is accepted and keyed by "id".
func NewMemory[T any](entities []schema.Entity) *Memory[T] {
	mappings := registry.NewRegistry()
	mappings.RegisterAll(entities)

	return &Memory[T]{
		store:    &memoryStore{tables: make(map[string]*memoryTable)},
		mappings: mappings,
	}
}

// Duplicate returns a handle sharing the same store.
func (m *Memory[T]) Duplicate() DataSource[T] {
	return &Memory[T]{store: m.store, mappings: m.mappings}
}

// Ping always succeeds.
func (m *Memory[T]) Ping(context.Context) error {
	return nil
}

func (m *Memory[T]) resolve(entity string) (table, pk string, err error) {
	entity = ResolveEntity[T](entity)
	if m.mappings.Len() == 0 {
		return schema.NormalizeName(entity), registry.DefaultPrimaryKey, nil
	}
	mapping, err := m.mappings.Lookup(entity)
	if err != nil {
		return "", "", &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	}
	return mapping.TableName, mapping.PrimaryKey, nil
}

// table returns the named table, creating it when create is set. Callers hold the lock.
func (s *memoryStore) table(name string, create bool) *memoryTable {
	t, ok := s.tables[name]
	if !ok && create {
		t = &memoryTable{items: make(map[string]map[string]any)}
		s.tables[name] = t
	}
	return t
}

// GetAll returns every record of the entity in insertion order.
func (m *Memory[T]) GetAll(ctx context.Context, entity string) ([]T, error) {
	name, _, err := m.resolve(entity)
	if err != nil {
		return nil, err
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	t := m.store.table(name, false)
	if t == nil {
		return []T{}, nil
	}
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		item, err := builder.Decode[T](name, t.items[id])
		if err != nil {
			return nil, Wrap(KindMapping, err, "failed to decode %s record %s", name, id)
		}
		out = append(out, item)
	}
	return out, nil
}

// GetByID returns the record with the given id.
func (m *Memory[T]) GetByID(ctx context.Context, id, entity string) (T, bool, error) {
	var zero T
	name, _, err := m.resolve(entity)
	if err != nil {
		return zero, false, err
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	t := m.store.table(name, false)
	if t == nil {
		return zero, false, nil
	}
	rec, ok := t.items[id]
	if !ok {
		return zero, false, nil
	}
	item, err := builder.Decode[T](name, rec)
	if err != nil {
		return zero, false, Wrap(KindMapping, err, "failed to decode %s record %s", name, id)
	}
	return item, true, nil
}

// Create stores item. A missing primary key is filled with a random UUID.
func (m *Memory[T]) Create(ctx context.Context, item T, entity string) (T, error) {
	var zero T
	name, pk, err := m.resolve(entity)
	if err != nil {
		return zero, err
	}

	rec, err := builder.ToRecord(item)
	if err != nil {
		return zero, Wrap(KindSerialization, err, "failed to encode %s", name)
	}

	generated := false
	if v, ok := rec[pk]; !ok || v == nil {
		rec[pk] = uuid.NewString()
		generated = true
	}
	id := fmt.Sprint(rec[pk])

	m.store.mu.Lock()
	t := m.store.table(name, true)
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	t.items[id] = rec
	m.store.mu.Unlock()

	if !generated {
		return item, nil
	}
	created, err := builder.Decode[T](name, rec)
	if err != nil {
		return zero, Wrap(KindMapping, err, "failed to decode created %s", name)
	}
	return created, nil
}

// Update replaces the record with the given id.
func (m *Memory[T]) Update(ctx context.Context, id string, item T, entity string) (T, error) {
	var zero T
	name, pk, err := m.resolve(entity)
	if err != nil {
		return zero, err
	}

	rec, err := builder.ToRecord(item)
	if err != nil {
		return zero, Wrap(KindSerialization, err, "failed to encode %s", name)
	}
	// The path id is authoritative for the stored key.
	_, numeric := rec[pk].(json.Number)
	rec[pk] = KeyValue(id, numeric)

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	t := m.store.table(name, true)
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	t.items[id] = rec

	updated, err := builder.Decode[T](name, rec)
	if err != nil {
		return zero, Wrap(KindMapping, err, "failed to decode updated %s", name)
	}
	return updated, nil
}

// Delete removes the record with the given id.
func (m *Memory[T]) Delete(ctx context.Context, id, entity string) (bool, error) {
	name, _, err := m.resolve(entity)
	if err != nil {
		return false, err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	t := m.store.table(name, false)
	if t == nil {
		return false, nil
	}
	if _, ok := t.items[id]; !ok {
		return false, nil
	}
	delete(t.items, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
	return true, nil
}
