package handlers

import (
	"context"
	"net/http"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// RegisterCreate registers POST:<entity>.
func (r *Registry) RegisterCreate() {
	ds := r.ds.Duplicate()
	name := r.entity.Name

	r.registerCRUD(schema.POST, false, func(ctx context.Context, req *api.Request) (*api.Response, error) {
		body := req.BodyText()
		if body == "" {
			return nil, api.BadRequest("Request body is required")
		}
		rec, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		if err := r.validate(rec); err != nil {
			return nil, err
		}

		created, err := ds.Create(ctx, rec, name)
		if err != nil {
			return nil, writeError(err, "create")
		}
		return api.NewResponse(http.StatusCreated, api.Single(created)), nil
	})
}

// RegisterRead registers GET:<entity>/:id.
func (r *Registry) RegisterRead() {
	ds := r.ds.Duplicate()
	name := r.entity.Name

	r.registerCRUD(schema.GET, true, func(ctx context.Context, req *api.Request) (*api.Response, error) {
		id, err := idParam(req)
		if err != nil {
			return nil, err
		}

		item, found, err := ds.GetByID(ctx, id, name)
		if err != nil {
			return nil, datasourceError(err)
		}
		if !found {
			return nil, notFound(id)
		}
		return api.NewResponse(http.StatusOK, api.Single(item)), nil
	})
}

// RegisterUpdate registers PUT:<entity>/:id. Existence is checked before the
// write so a missing id yields 404; the check and the write are not atomic.
func (r *Registry) RegisterUpdate() {
	ds := r.ds.Duplicate()
	name := r.entity.Name

	r.registerCRUD(schema.PUT, true, func(ctx context.Context, req *api.Request) (*api.Response, error) {
		id, err := idParam(req)
		if err != nil {
			return nil, err
		}
		body := req.BodyText()
		if body == "" {
			return nil, api.BadRequest("Request body is required")
		}

		_, found, err := ds.GetByID(ctx, id, name)
		if err != nil {
			return nil, datasourceError(err)
		}
		if !found {
			return nil, notFound(id)
		}

		rec, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		if err := r.validate(rec); err != nil {
			return nil, err
		}

		updated, err := ds.Update(ctx, id, rec, name)
		if err != nil {
			return nil, writeError(err, "update")
		}
		return api.NewResponse(http.StatusOK, api.Single(updated)), nil
	})
}

// RegisterDelete registers DELETE:<entity>/:id.
func (r *Registry) RegisterDelete() {
	ds := r.ds.Duplicate()
	name := r.entity.Name

	r.registerCRUD(schema.DELETE, true, func(ctx context.Context, req *api.Request) (*api.Response, error) {
		id, err := idParam(req)
		if err != nil {
			return nil, err
		}

		deleted, err := ds.Delete(ctx, id, name)
		if err != nil {
			return nil, datasourceError(err)
		}
		if !deleted {
			return nil, notFound(id)
		}
		return api.NewResponse(http.StatusNoContent, nil), nil
	})
}

// RegisterList registers GET:<entity>.
func (r *Registry) RegisterList() {
	ds := r.ds.Duplicate()
	name := r.entity.Name

	r.registerCRUD(schema.GET, false, func(ctx context.Context, req *api.Request) (*api.Response, error) {
		items, err := ds.GetAll(ctx, name)
		if err != nil {
			return nil, datasourceError(err)
		}
		return api.NewResponse(http.StatusOK, api.List(items)), nil
	})
}
