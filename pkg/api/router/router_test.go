package router

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/api/handlers"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

func testConfig(prefix string) *config.Config {
	cfg := config.Default()
	cfg.APIPrefix = prefix
	cfg.Entities = []schema.Entity{
		{
			Name:      "users",
			Fields:    []schema.Field{{Name: "id", DataType: schema.String}, {Name: "name", DataType: schema.String, Searchable: true}},
			Endpoints: schema.AllEndpoints(),
		},
		{
			Name:   "Orders",
			Fields: []schema.Field{{Name: "id", DataType: schema.String}},
			Endpoints: schema.EndpointConfig{
				GenerateList: true,
				CustomRoutes: []schema.CustomRoute{{Path: "/count", Method: schema.GET, Handler: "count"}},
			},
		},
		{
			Name:      "orphans",
			Fields:    []schema.Field{{Name: "id", DataType: schema.String}},
			Endpoints: schema.AllEndpoints(),
		},
	}
	return cfg
}

func newRouter(t *testing.T, prefix string) *Router {
	t.Helper()
	cfg := testConfig(prefix)
	mem := datasource.NewMemory[datasource.Record](cfg.Entities[:2])
	sources := map[string]handlers.DataSource{
		"users":  mem,
		"Orders": mem.Duplicate(),
	}
	return New(cfg, sources, Options{})
}

func request(method schema.HTTPMethod, path, body string) *api.Request {
	return api.NewRequest(method, path, body)
}

func TestRouter_SkipsEntitiesWithoutDatasource(t *testing.T) {
	r := newRouter(t, "")
	assert.Equal(t, []string{"orders", "users"}, r.Entities())
	assert.Nil(t, r.Endpoints("orphans"))
}

func TestRouter_CRUDHappyPath(t *testing.T) {
	r := newRouter(t, "")
	ctx := context.Background()

	resp := r.Handle(ctx, request(schema.GET, "/users", ""))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body.List)

	resp = r.Handle(ctx, request(schema.POST, "/users", `{"id":"1","name":"Ann"}`))
	require.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, datasource.Record{"id": "1", "name": "Ann"}, resp.Body.Single)

	resp = r.Handle(ctx, request(schema.GET, "/users/1", ""))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, datasource.Record{"id": "1", "name": "Ann"}, resp.Body.Single)

	resp = r.Handle(ctx, request(schema.GET, "/users", ""))
	assert.Len(t, resp.Body.List, 1)

	resp = r.Handle(ctx, request(schema.PUT, "/users/1", `{"id":"1","name":"Ann2"}`))
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Ann2", resp.Body.Single["name"])

	resp = r.Handle(ctx, request(schema.DELETE, "/users/1", ""))
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Nil(t, resp.Body)

	_, err := r.Dispatch(ctx, request(schema.GET, "/users/1", ""))
	require.Error(t, err)
	assert.Equal(t, api.KindEntityNotFound, api.KindOf(err))
}

func TestRouter_Deterministic(t *testing.T) {
	r := newRouter(t, "")
	ctx := context.Background()
	require.Equal(t, http.StatusCreated, r.Handle(ctx, request(schema.POST, "users", `{"id":"7","name":"Q"}`)).Status)

	for _, req := range []*api.Request{
		request(schema.GET, "users/7", ""),
		request(schema.GET, "nosuchentity", ""),
		request(schema.PATCH, "users/7", ""),
	} {
		first, err1 := r.Dispatch(ctx, req)
		second, err2 := r.Dispatch(ctx, req)
		assert.Equal(t, first, second)
		assert.Equal(t, err1, err2)
	}
}

func TestRouter_CaseInsensitiveEntity(t *testing.T) {
	r := newRouter(t, "")
	ctx := context.Background()

	for _, path := range []string{"/users", "/Users", "/USERS"} {
		resp, err := r.Dispatch(ctx, request(schema.GET, path, ""))
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.Status, path)
	}

	resp, err := r.Dispatch(ctx, request(schema.GET, "/orders", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp, err = r.Dispatch(ctx, request(schema.GET, "/ORDERS/count", ""))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"count": 0}, resp.Body.JSON)
}

func TestRouter_PrefixHandling(t *testing.T) {
	r := newRouter(t, "/api")
	ctx := context.Background()

	for _, path := range []string{"/api/users", "/users", "api/users/"} {
		resp, err := r.Dispatch(ctx, request(schema.GET, path, ""))
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.Status, path)
	}

	_, err := r.Dispatch(ctx, request(schema.GET, "/otherprefix/users", ""))
	require.Error(t, err)
	assert.Equal(t, api.KindEntityNotFound, api.KindOf(err))
	assert.Contains(t, err.Error(), "otherprefix")
}

func TestRouter_InvalidPath(t *testing.T) {
	r := newRouter(t, "api")

	for _, path := range []string{"", "/", "/api", "/api/"} {
		_, err := r.Dispatch(context.Background(), request(schema.GET, path, ""))
		require.Error(t, err, path)
		assert.Equal(t, api.KindValidation, api.KindOf(err), path)
	}
}

func TestRouter_UnknownEntity(t *testing.T) {
	r := newRouter(t, "")

	resp := r.Handle(context.Background(), request(schema.GET, "/nosuchentity", ""))
	assert.Equal(t, http.StatusNotFound, resp.Status)
	msg := resp.Body.JSON.(map[string]string)["error"]
	assert.Contains(t, msg, "nosuchentity")
	assert.Contains(t, msg, "orders, users")
}

func TestRouter_UnknownEndpoint(t *testing.T) {
	r := newRouter(t, "")

	_, err := r.Dispatch(context.Background(), request(schema.DELETE, "/orders/1", ""))
	require.Error(t, err)
	assert.Equal(t, api.KindEntityNotFound, api.KindOf(err))
	assert.Contains(t, err.Error(), "DELETE /orders/1")
	assert.Contains(t, err.Error(), "GET:Orders/count")
}

func TestRouter_MissingBody(t *testing.T) {
	r := newRouter(t, "")

	resp := r.Handle(context.Background(), request(schema.POST, "/users", ""))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestRouter_EndpointGenerationErrorBecomesResponse(t *testing.T) {
	cfg := testConfig("")
	sources := map[string]handlers.DataSource{"users": failing{datasource.NewMemory[datasource.Record](nil)}}
	r := New(cfg, sources, Options{})

	resp, err := r.Dispatch(context.Background(), request(schema.GET, "/users", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body.JSON.(map[string]string)["error"], "Error retrieving items")
}

func TestRouter_Endpoints(t *testing.T) {
	r := newRouter(t, "")
	assert.Equal(t, []string{
		"DELETE:api/users/:id", "DELETE:users/:id",
		"GET:api/users", "GET:api/users/:id", "GET:users", "GET:users/:id",
		"POST:api/users", "POST:users",
		"PUT:api/users/:id", "PUT:users/:id",
	}, r.Endpoints("USERS"))
}

func TestRouter_CloneSharesState(t *testing.T) {
	r := newRouter(t, "")
	c := r.Clone()
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, r.Handle(ctx, request(schema.POST, "/users", `{"id":"1"}`)).Status)
	assert.Equal(t, http.StatusOK, c.Handle(ctx, request(schema.GET, "/users/1", "")).Status)
	assert.Same(t, r.Config(), c.Config())
}

func TestRouter_ConcurrentDispatch(t *testing.T) {
	r := newRouter(t, "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := r.Clone()
			body := `{"id":"` + string(rune('a'+i)) + `"}`
			assert.Equal(t, http.StatusCreated, c.Handle(ctx, request(schema.POST, "/users", body)).Status)
		}()
	}
	wg.Wait()

	resp := r.Handle(ctx, request(schema.GET, "/users", ""))
	assert.Len(t, resp.Body.List, 20)
}

// failing reports a mapping failure on every read.
type failing struct {
	handlers.DataSource
}

func (f failing) Duplicate() handlers.DataSource { return f }

func (f failing) GetAll(context.Context, string) ([]datasource.Record, error) {
	return nil, datasource.Errorf(datasource.KindMapping, "cannot decode row")
}

func TestRouter_EntityOf(t *testing.T) {
	r := newRouter(t, "api")

	name, ok := r.EntityOf(request(schema.GET, "/api/ORDERS/count", ""))
	require.True(t, ok)
	assert.Equal(t, "Orders", name)

	_, ok = r.EntityOf(request(schema.GET, "/nosuchentity", ""))
	assert.False(t, ok)
	_, ok = r.EntityOf(request(schema.GET, "/", ""))
	assert.False(t, ok)
}
