// Package handlers builds the endpoint handlers of one entity.
//
// Every enabled CRUD endpoint is registered under "<METHOD>:<entity>" or
// "<METHOD>:<entity>/:id" and again under the same key with an "api/" path
// prefix. Custom routes are registered under "<METHOD>:<entity><path>" and
// dispatch to a named hook.
package handlers

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// DataSource is the record datasource the handlers call.
type DataSource = datasource.DataSource[datasource.Record]

// Options configures handler construction.
type Options struct {
	// Hooks resolves custom route handler names. Nil uses DefaultHooks.
	Hooks  *Hooks
	Logger logrus.FieldLogger
}

// Registry accumulates the endpoint handlers of one entity.
type Registry struct {
	entity    *schema.Entity
	ds        DataSource
	hooks     *Hooks
	log       logrus.FieldLogger
	endpoints map[string]api.EndpointHandler
}

// NewRegistry creates an empty registry for the entity.
func NewRegistry(entity *schema.Entity, ds DataSource, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = DefaultHooks()
	}
	return &Registry{
		entity:    entity,
		ds:        ds,
		hooks:     hooks,
		log:       log.WithField("entity", entity.Name),
		endpoints: make(map[string]api.EndpointHandler),
	}
}

// Build registers every endpoint enabled on the entity and returns its API.
func Build(entity *schema.Entity, ds DataSource, opts Options) *api.EntityAPI {
	r := NewRegistry(entity, ds, opts)
	r.RegisterAll()
	return r.EntityAPI()
}

// RegisterAll registers the enabled CRUD endpoints and the custom routes.
func (r *Registry) RegisterAll() {
	ep := r.entity.Endpoints
	if ep.GenerateCreate {
		r.RegisterCreate()
	}
	if ep.GenerateRead {
		r.RegisterRead()
	}
	if ep.GenerateUpdate {
		r.RegisterUpdate()
	}
	if ep.GenerateDelete {
		r.RegisterDelete()
	}
	if ep.GenerateList {
		r.RegisterList()
	}
	for _, route := range ep.CustomRoutes {
		r.RegisterCustom(route)
	}
}

// EntityAPI returns the entity's datasource paired with its handlers.
func (r *Registry) EntityAPI() *api.EntityAPI {
	return &api.EntityAPI{
		Entity:     r.entity,
		DataSource: r.ds,
		Endpoints:  r.endpoints,
	}
}

// Register stores a handler. An existing handler under the same key is
// replaced with a warning.
func (r *Registry) Register(key string, h api.EndpointHandler) {
	if _, exists := r.endpoints[key]; exists {
		r.log.WithField("endpoint", key).Warnf("Overwriting existing handler for endpoint key: %s", key)
	}
	r.endpoints[key] = h
}

// registerCRUD stores h under the canonical key and its "api/" variant.
func (r *Registry) registerCRUD(method schema.HTTPMethod, withID bool, h api.EndpointHandler) {
	path := r.entity.Name
	if withID {
		path += "/:id"
	}
	r.Register(api.Key(method, path), h)
	r.Register(api.Key(method, "api/"+path), h)
}

// decodeBody parses a JSON object body into a record.
func decodeBody(body string) (datasource.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var rec datasource.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, api.BadRequest("Invalid request format: %v", err)
	}
	if rec == nil {
		return nil, api.BadRequest("Invalid request format: expected a JSON object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, api.BadRequest("Invalid request format: unexpected data after JSON object")
	}
	return rec, nil
}

func (r *Registry) validate(rec datasource.Record) error {
	if err := r.entity.ValidateRecord(rec); err != nil {
		return &api.Error{Kind: api.KindValidation, Message: err.Error(), Err: err}
	}
	return nil
}

// datasourceError translates a failed read into an API error.
func datasourceError(err error) error {
	switch datasource.KindOf(err) {
	case datasource.KindValidation:
		return &api.Error{Kind: api.KindValidation, Message: err.Error(), Err: err}
	case datasource.KindConnection, datasource.KindQuery:
		return api.Wrap(api.KindDatabase, err, "Error retrieving items")
	}
	return api.Wrap(api.KindEndpointGeneration, err, "Error retrieving items")
}

// writeError translates a failed write into an API error. Validation-kind
// failures such as duplicate keys or unbindable values become 400s; the rest
// are server or database errors.
func writeError(err error, action string) error {
	switch datasource.KindOf(err) {
	case datasource.KindValidation:
		return &api.Error{Kind: api.KindValidation, Message: err.Error(), Err: err}
	case datasource.KindConnection, datasource.KindQuery:
		return api.Wrap(api.KindDatabase, err, "Failed to %s item", action)
	}
	return api.Wrap(api.KindServer, err, "Failed to %s item", action)
}

func idParam(req *api.Request) (string, error) {
	id, ok := req.Param("id")
	if !ok || id == "" {
		return "", api.Validation("ID parameter missing")
	}
	return id, nil
}

func notFound(id string) error {
	return api.EntityNotFound("Item with ID %s not found", id)
}
