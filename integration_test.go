//go:build integration
// +build integration

package pebbleapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/api/router"
	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/datasource/factory"
	"github.com/marshallshelly/pebble-api/pkg/datasource/relational"
	"github.com/marshallshelly/pebble-api/pkg/logging"
	"github.com/marshallshelly/pebble-api/pkg/schema"
	"github.com/marshallshelly/pebble-api/pkg/server"
)

// setupTestDB creates a PostgreSQL container and returns its connection string
func setupTestDB(t *testing.T) (string, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return connStr, cleanup
}

func testEntities() []schema.Entity {
	minLen, maxLen := 1.0, 100.0
	return []schema.Entity{
		{
			Name: "users",
			Fields: []schema.Field{
				{Name: "id", DataType: schema.String, Required: true},
				{Name: "name", DataType: schema.String, Required: true, Searchable: true},
				{Name: "age", DataType: schema.Integer},
				{Name: "active", DataType: schema.Boolean},
				{Name: "profile", DataType: schema.JSON},
			},
			Endpoints: schema.EndpointConfig{
				GenerateCreate: true, GenerateRead: true, GenerateUpdate: true,
				GenerateDelete: true, GenerateList: true,
				CustomRoutes: []schema.CustomRoute{{Path: "/count", Method: schema.GET, Handler: "count"}},
			},
			Validations: []schema.Validation{
				{Field: "name", ValidationType: schema.ValidationType{Type: schema.RuleLength, Min: &minLen, Max: &maxLen}},
			},
		},
		{
			Name:      "orders",
			TableName: "customer_orders",
			Fields: []schema.Field{
				{Name: "id", DataType: schema.String},
				{Name: "userId", ColumnName: "user_id", DataType: schema.String},
				{Name: "total", DataType: schema.Float},
			},
			Endpoints: schema.AllEndpoints(),
		},
	}
}

// createTestSchema creates the entity tables through the DDL generator
func createTestSchema(t *testing.T, connStr string, entities []schema.Entity) {
	ctx := context.Background()

	exec, err := relational.Open(ctx, builder.Postgres, connStr, 1)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer exec.Close()

	for i := range entities {
		if _, err := exec.Exec(ctx, builder.CreateTable(builder.Postgres, &entities[i])); err != nil {
			t.Fatalf("Failed to create table for %s: %v", entities[i].Name, err)
		}
	}
}

func TestIntegration_PostgresDatasource(t *testing.T) {
	connStr, cleanup := setupTestDB(t)
	defer cleanup()

	entities := testEntities()
	createTestSchema(t, connStr, entities)

	ctx := context.Background()
	ds := relational.New[datasource.Record](relational.Options{
		Dialect:  builder.Postgres,
		DSN:      connStr,
		MaxConns: 4,
		Logger:   logging.Discard(),
	})
	if err := ds.Configure(ctx, entities); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer ds.Close()

	t.Run("CreateAndGet", func(t *testing.T) {
		created, err := ds.Create(ctx, datasource.Record{
			"id": "u1", "name": "Ada", "age": 36, "active": true,
			"profile": map[string]any{"lang": "en"},
		}, "users")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created["name"] != "Ada" {
			t.Errorf("Expected name Ada, got %v", created["name"])
		}

		got, ok, err := ds.GetByID(ctx, "u1", "users")
		if err != nil || !ok {
			t.Fatalf("GetByID failed: ok=%v err=%v", ok, err)
		}
		if got["age"] != json.Number("36") {
			t.Errorf("Expected age 36, got %v (%T)", got["age"], got["age"])
		}
		if got["active"] != true {
			t.Errorf("Expected active true, got %v", got["active"])
		}
	})

	t.Run("ColumnMapping", func(t *testing.T) {
		if _, err := ds.Create(ctx, datasource.Record{"id": "o1", "userId": "u1", "total": 9.5}, "orders"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, ok, err := ds.GetByID(ctx, "o1", "customer_orders")
		if err != nil || !ok {
			t.Fatalf("GetByID by table name failed: ok=%v err=%v", ok, err)
		}
		if got["userId"] != "u1" {
			t.Errorf("Expected userId u1, got %v", got["userId"])
		}
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		if _, err := ds.Update(ctx, "u1", datasource.Record{"id": "u1", "name": "Ada L."}, "users"); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		got, _, _ := ds.GetByID(ctx, "u1", "users")
		if got["name"] != "Ada L." {
			t.Errorf("Expected updated name, got %v", got["name"])
		}

		deleted, err := ds.Delete(ctx, "u1", "users")
		if err != nil || !deleted {
			t.Fatalf("Delete failed: deleted=%v err=%v", deleted, err)
		}
		deleted, err = ds.Delete(ctx, "u1", "users")
		if err != nil || deleted {
			t.Errorf("Second delete should report false, got %v err=%v", deleted, err)
		}
	})

	t.Run("UnknownEntity", func(t *testing.T) {
		_, err := ds.GetAll(ctx, "nosuchentity")
		if datasource.KindOf(err) != datasource.KindNotFound {
			t.Errorf("Expected NotFound, got %v", err)
		}
	})
}

func TestIntegration_HTTP(t *testing.T) {
	connStr, cleanup := setupTestDB(t)
	defer cleanup()

	entities := testEntities()
	createTestSchema(t, connStr, entities)

	cfg := config.Default()
	cfg.APIPrefix = "api"
	cfg.DatabaseConfig = config.DatabaseConfig{DBType: config.PostgreSQL, ConnectionString: connStr}
	cfg.Entities = entities

	ctx := context.Background()
	log := logging.Discard()
	set, err := factory.Build(ctx, cfg, log)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer set.Close()

	rt := router.New(cfg, set.DataSources(), router.Options{Logger: log})
	ts := httptest.NewServer(server.New(cfg, rt, server.Options{Logger: log}))
	defer ts.Close()

	send := func(method, path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := send(http.MethodPost, "/api/users", `{"id":"u2","name":"Grace","age":45}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if resp := send(http.MethodPost, "/api/users", `{"id":"u3","name":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a failed length rule, got %d", resp.StatusCode)
	}
	if resp := send(http.MethodGet, "/api/users/u2", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp := send(http.MethodGet, "/api/users/missing", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	if resp := send(http.MethodGet, "/api/users/count", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from count hook, got %d", resp.StatusCode)
	}

	res := rt.Handle(ctx, api.NewRequest(schema.GET, "/users", ""))
	if res.Status != http.StatusOK || len(res.Body.List) != 1 {
		t.Errorf("Expected one user, got status %d with %d items", res.Status, len(res.Body.List))
	}
}
