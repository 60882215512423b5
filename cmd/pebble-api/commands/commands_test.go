package commands

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

func migrateConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatabaseConfig = config.DatabaseConfig{DBType: config.PostgreSQL, Host: "db", DatabaseName: "app"}
	cfg.Datasources = map[string]config.DatabaseConfig{
		"local": {DBType: config.SQLite, ConnectionString: filepath.Join(t.TempDir(), "local.db")},
		"docs":  {DBType: config.MongoDB, Host: "mongo", DatabaseName: "docs"},
	}
	cfg.Entities = []schema.Entity{
		{Name: "users", Fields: []schema.Field{{Name: "id", DataType: schema.String}, {Name: "email", DataType: schema.String, Unique: true, Required: true}}, Endpoints: schema.AllEndpoints()},
		{Name: "notes", Datasource: "local", Fields: []schema.Field{{Name: "id", DataType: schema.Integer}}, Endpoints: schema.AllEndpoints()},
		{Name: "pages", Datasource: "docs", Fields: []schema.Field{{Name: "id", DataType: schema.String}}},
	}
	return cfg
}

func TestPlanMigrations(t *testing.T) {
	onlyBackends = nil
	plans, err := planMigrations(migrateConfig(t))
	require.NoError(t, err)
	require.Len(t, plans, 2)

	assert.Equal(t, "default", plans[0].Datasource)
	assert.Equal(t, "PostgreSQL", plans[0].Backend)
	require.Len(t, plans[0].Statements, 1)
	assert.True(t, strings.HasPrefix(plans[0].Statements[0], `CREATE TABLE IF NOT EXISTS "users"`))
	assert.Contains(t, plans[0].Statements[0], "UNIQUE NOT NULL")

	assert.Equal(t, "local", plans[1].Datasource)
	assert.Contains(t, plans[1].Statements[0], `"notes"`)
}

func TestPlanMigrations_Filter(t *testing.T) {
	onlyBackends = []string{"local"}
	defer func() { onlyBackends = nil }()

	plans, err := planMigrations(migrateConfig(t))
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "local", plans[0].Datasource)
}

func TestApplyPlan_SQLite(t *testing.T) {
	onlyBackends = []string{"local"}
	defer func() { onlyBackends = nil }()

	plans, err := planMigrations(migrateConfig(t))
	require.NoError(t, err)
	require.Len(t, plans, 1)

	require.NoError(t, applyPlan(t.Context(), plans[0], false))
	assert.False(t, plans[0].Applied)
	require.Len(t, plans[0].Statements, 1)

	require.NoError(t, applyPlan(t.Context(), plans[0], true))
	assert.True(t, plans[0].Applied)

	plans[0].Applied = false
	require.NoError(t, applyPlan(t.Context(), plans[0], true))
	assert.Empty(t, plans[0].Statements)
	assert.False(t, plans[0].Applied)
}

func TestEndpointFlags(t *testing.T) {
	assert.Equal(t, "CRUDL", endpointFlags(true, true, true, true, true, 0))
	assert.Equal(t, "-R--L +2", endpointFlags(false, true, false, false, true, 2))
}

func TestOfflineRouter(t *testing.T) {
	rt := offlineRouter(migrateConfig(t))
	assert.Equal(t, []string{"notes", "pages", "users"}, rt.Entities())
	assert.Contains(t, rt.Endpoints("users"), "GET:users/:id")
	assert.Empty(t, rt.Endpoints("pages"))
}
