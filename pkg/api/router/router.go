// Package router resolves inbound requests to entity endpoint handlers.
package router

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/api/handlers"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// Router owns the endpoint handlers of every entity. It is read-only after
// construction and safe for concurrent use.
type Router struct {
	cfg      *config.Config
	prefix   string
	entities map[string]*api.EntityAPI
	log      logrus.FieldLogger
}

// Options configures a router.
type Options struct {
	Hooks  *handlers.Hooks
	Logger logrus.FieldLogger
}

// New builds the handlers of every configured entity that has a datasource.
// Entities without one are skipped with a warning.
func New(cfg *config.Config, sources map[string]handlers.DataSource, opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = handlers.DefaultHooks()
	}

	r := &Router{
		cfg:      cfg,
		prefix:   strings.Trim(cfg.APIPrefix, "/"),
		entities: make(map[string]*api.EntityAPI),
		log:      log,
	}

	for i := range cfg.Entities {
		e := &cfg.Entities[i]
		ds, ok := sources[e.Name]
		if !ok {
			log.WithField("entity", e.Name).Warn("no datasource configured for entity, skipping")
			continue
		}
		key := e.RouteKey()
		if _, exists := r.entities[key]; exists {
			log.WithField("entity", e.Name).Warnf("entity name collides with an existing entity, replacing %s", key)
		}
		r.entities[key] = handlers.Build(e, ds, handlers.Options{Hooks: hooks, Logger: log})
	}
	return r
}

// Clone returns a router sharing the entity table and datasources.
func (r *Router) Clone() *Router {
	c := *r
	return &c
}

// Config returns the configuration the router was built from.
func (r *Router) Config() *config.Config {
	return r.cfg
}

// Entities returns the routed entity keys, sorted.
func (r *Router) Entities() []string {
	return slices.Sorted(maps.Keys(r.entities))
}

// Endpoints returns the endpoint keys registered for an entity, sorted.
func (r *Router) Endpoints(entity string) []string {
	ea, ok := r.lookup(entity)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(ea.Endpoints))
}

func (r *Router) lookup(name string) (*api.EntityAPI, bool) {
	if ea, ok := r.entities[strings.ToLower(name)]; ok {
		return ea, true
	}
	for key, ea := range r.entities {
		if strings.EqualFold(key, name) {
			return ea, true
		}
	}
	return nil, false
}

// EntityOf returns the configured name of the entity a request addresses.
func (r *Router) EntityOf(req *api.Request) (string, bool) {
	name, _, err := r.resolveEntity(req)
	if err != nil {
		return "", false
	}
	ea, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return ea.Entity.Name, true
}

// resolveEntity splits the path and returns the entity segment and the
// segments following it.
func (r *Router) resolveEntity(req *api.Request) (string, []string, error) {
	segments := req.Segments()
	if len(segments) > 0 && r.prefix != "" && segments[0] == r.prefix {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "", nil, api.Validation("Invalid path: %q does not name an entity", req.Path)
	}
	return segments[0], segments[1:], nil
}

// candidates returns the endpoint keys tried, in order, for a request.
func candidates(method schema.HTTPMethod, entity string, rest []string) []string {
	if len(rest) == 0 {
		return []string{
			api.Key(method, entity),
			api.Key(method, entity+"/:id"),
			api.Key(method, "api/"+entity),
			api.Key(method, "api/"+entity+"/:id"),
		}
	}
	return []string{
		api.Key(method, entity+"/"+strings.Join(rest, "/")),
		api.Key(method, entity+"/:id"),
		api.Key(method, "api/"+entity+"/:id"),
	}
}

// match finds the handler of a request: the candidate keys first, then any
// key for the method that mentions the entity.
func match(ea *api.EntityAPI, method schema.HTTPMethod, name string, rest []string) (string, api.EndpointHandler, bool) {
	for _, key := range candidates(method, name, rest) {
		if h, ok := ea.Endpoints[key]; ok {
			return key, h, true
		}
	}

	tag := strings.ToUpper(string(method)) + ":"
	for _, key := range slices.Sorted(maps.Keys(ea.Endpoints)) {
		if strings.HasPrefix(key, tag) && strings.Contains(strings.ToLower(key), strings.ToLower(name)) {
			return key, ea.Endpoints[key], true
		}
	}
	return "", nil, false
}

// Dispatch resolves and invokes the handler of a request. Handler errors are
// returned as *api.Error, except EndpointGeneration errors which become a
// 500 response.
func (r *Router) Dispatch(ctx context.Context, req *api.Request) (*api.Response, error) {
	entity, rest, err := r.resolveEntity(req)
	if err != nil {
		return nil, err
	}

	ea, ok := r.lookup(entity)
	if !ok {
		return nil, api.EntityNotFound("Entity '%s' not found. Known entities: %s",
			entity, strings.Join(r.Entities(), ", "))
	}

	key, h, ok := match(ea, req.Method, ea.Entity.Name, rest)
	if !ok {
		return nil, api.EntityNotFound("Endpoint not found: %s %s. Registered endpoints for %s: %s",
			req.Method, req.Path, ea.Entity.Name, strings.Join(r.Endpoints(entity), ", "))
	}

	if len(rest) > 0 && strings.HasSuffix(key, "/:id") {
		if req.Params == nil {
			req.Params = make(map[string]string)
		}
		if _, set := req.Params["id"]; !set {
			req.Params["id"] = rest[0]
		}
	}

	r.log.WithFields(logrus.Fields{
		"entity":   ea.Entity.Name,
		"endpoint": key,
	}).Debug("dispatching request")

	resp, err := h(ctx, req)
	if err != nil {
		if api.KindOf(err) == api.KindEndpointGeneration {
			r.log.WithField("endpoint", key).WithError(err).Error("endpoint failed")
			return api.ErrorResponse(err), nil
		}
		return nil, err
	}
	return resp, nil
}

// Handle dispatches a request and always returns a response.
func (r *Router) Handle(ctx context.Context, req *api.Request) *api.Response {
	resp, err := r.Dispatch(ctx, req)
	if err != nil {
		return api.ErrorResponse(err)
	}
	return resp
}
