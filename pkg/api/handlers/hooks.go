package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// HookContext is what a custom route hook operates on.
type HookContext struct {
	Entity     *schema.Entity
	DataSource DataSource
}

// CustomHandler implements the business logic of a custom route.
type CustomHandler func(ctx context.Context, hc *HookContext, req *api.Request) (*api.Response, error)

// Hooks maps custom route handler names to implementations.
type Hooks struct {
	mu sync.RWMutex
	m  map[string]CustomHandler
}

// NewHooks creates an empty hook table.
func NewHooks() *Hooks {
	return &Hooks{m: make(map[string]CustomHandler)}
}

// DefaultHooks returns a hook table holding the built-in "count" and "search" hooks.
func DefaultHooks() *Hooks {
	h := NewHooks()
	h.Register("count", Count)
	h.Register("search", Search)
	return h
}

// Register adds or replaces a hook.
func (h *Hooks) Register(name string, fn CustomHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m[name] = fn
}

// Lookup returns the hook with the given name.
func (h *Hooks) Lookup(name string) (CustomHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.m[name]
	return fn, ok
}

// RegisterCustom registers a custom route. The hook is resolved per request;
// a route whose hook is unknown answers 200 with no body.
func (r *Registry) RegisterCustom(route schema.CustomRoute) {
	hc := &HookContext{Entity: r.entity, DataSource: r.ds.Duplicate()}
	hooks := r.hooks
	name := route.Handler

	key := api.Key(route.Method, r.entity.Name+route.Path)
	r.Register(key, func(ctx context.Context, req *api.Request) (*api.Response, error) {
		if fn, ok := hooks.Lookup(name); ok {
			return fn(ctx, hc, req)
		}
		return api.NewResponse(http.StatusOK, nil), nil
	})
}

// Count answers {"count": n} with the number of stored records.
func Count(ctx context.Context, hc *HookContext, _ *api.Request) (*api.Response, error) {
	items, err := hc.DataSource.GetAll(ctx, hc.Entity.Name)
	if err != nil {
		return nil, datasourceError(err)
	}
	return api.NewResponse(http.StatusOK, api.JSON(map[string]int{"count": len(items)})), nil
}

// Search filters records on the entity's searchable fields. Query parameter
// "q" matches any searchable field; a parameter named after a searchable
// field matches that field. Matching is case-insensitive substring.
func Search(ctx context.Context, hc *HookContext, req *api.Request) (*api.Response, error) {
	fields := hc.Entity.SearchableFields()
	if len(fields) == 0 {
		return nil, api.Validation("entity %s has no searchable fields", hc.Entity.Name)
	}

	items, err := hc.DataSource.GetAll(ctx, hc.Entity.Name)
	if err != nil {
		return nil, datasourceError(err)
	}

	out := make([]datasource.Record, 0, len(items))
	for _, item := range items {
		if matches(item, fields, req.Query) {
			out = append(out, item)
		}
	}
	return api.NewResponse(http.StatusOK, api.List(out)), nil
}

func matches(item datasource.Record, fields []string, query map[string]string) bool {
	if q := query["q"]; q != "" {
		found := false
		for _, f := range fields {
			if contains(item[f], q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range fields {
		if want, ok := query[f]; ok && want != "" && !contains(item[f], want) {
			return false
		}
	}
	return true
}

func contains(v any, needle string) bool {
	if v == nil {
		return false
	}
	return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(needle))
}
