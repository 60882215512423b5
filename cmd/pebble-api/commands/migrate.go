package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-api/cmd/pebble-api/output"
	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource/factory"
	"github.com/marshallshelly/pebble-api/pkg/datasource/relational"
	"github.com/marshallshelly/pebble-api/pkg/migration"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

var (
	// Migrate flags
	dryRun       bool
	offline      bool
	onlyBackends []string
)

// migrateCmd creates the tables of the configured entities
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and columns for the configured entities",
	Long: `Compare the entity schemas with every relational datasource and
create the tables and columns that are missing. Existing columns are never
altered or dropped; columns no entity maps are reported as warnings.

Examples:
  pebble-api migrate -c api.json                  # Apply missing tables and columns
  pebble-api migrate --dry-run                    # Print the SQL that would run
  pebble-api migrate --offline                    # Print full DDL without connecting
  pebble-api migrate --datasource analytics       # Only one named datasource`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the SQL without executing it")
	migrateCmd.Flags().BoolVar(&offline, "offline", false, "Print CREATE TABLE statements for every entity without connecting")
	migrateCmd.Flags().StringSliceVar(&onlyBackends, "datasource", nil, "Restrict to these datasources (\"default\" for database_config)")
}

type migrationPlan struct {
	Datasource string   `json:"datasource"`
	Backend    string   `json:"backend"`
	Statements []string `json:"statements"`
	Warnings   []string `json:"warnings,omitempty"`
	Applied    bool     `json:"applied"`

	db       config.DatabaseConfig
	entities []schema.Entity
}

// planMigrations groups entities by relational datasource. Statements holds
// the full CREATE TABLE DDL until the plan is resolved against a database.
func planMigrations(cfg *config.Config) ([]*migrationPlan, error) {
	plans := make(map[string]*migrationPlan)
	var order []string

	for i := range cfg.Entities {
		e := &cfg.Entities[i]
		name, db, err := cfg.DatasourceFor(e)
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = "default"
		}
		if len(onlyBackends) > 0 && !slices.Contains(onlyBackends, name) {
			continue
		}
		if !db.DBType.Relational() {
			continue
		}
		dialect, err := factory.DialectOf(db.DBType)
		if err != nil {
			return nil, err
		}

		p, ok := plans[name]
		if !ok {
			p = &migrationPlan{Datasource: name, Backend: string(db.DBType), db: db}
			plans[name] = p
			order = append(order, name)
		}
		p.entities = append(p.entities, *e)
		p.Statements = append(p.Statements, builder.CreateTable(dialect, e))
	}

	slices.Sort(order)
	out := make([]*migrationPlan, 0, len(order))
	for _, name := range order {
		out = append(out, plans[name])
	}
	return out, nil
}

func runMigrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	plans, err := planMigrations(cfg)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		if !jsonOutput {
			output.Warning("No relational datasource to migrate")
		}
		return nil
	}

	for _, p := range plans {
		if !jsonOutput {
			output.Section(fmt.Sprintf("Datasource %s (%s)", p.Datasource, p.Backend))
		}
		if offline {
			printStatements(p.Statements)
			continue
		}
		if err := applyPlan(ctx, p, !dryRun); err != nil {
			return fmt.Errorf("datasource %s: %w", p.Datasource, err)
		}
		if jsonOutput {
			continue
		}
		for _, w := range p.Warnings {
			output.Warning("%s", w)
		}
		switch {
		case len(p.Statements) == 0:
			output.Success("Schema is up to date")
		case dryRun:
			printStatements(p.Statements)
		default:
			output.Success("Applied %d statement(s)", len(p.Statements))
		}
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(plans)
	}
	return nil
}

func printStatements(statements []string) {
	if jsonOutput {
		return
	}
	for _, stmt := range statements {
		fmt.Println(stmt + ";")
		fmt.Println()
	}
}

// applyPlan introspects the datasource, replaces the plan's statements with
// the ones still needed and runs them when apply is set.
func applyPlan(ctx context.Context, p *migrationPlan, apply bool) error {
	dialect, err := factory.DialectOf(p.db.DBType)
	if err != nil {
		return err
	}
	dsn, err := p.db.DSN()
	if err != nil {
		return err
	}
	exec, err := relational.Open(ctx, dialect, dsn, 1)
	if err != nil {
		return fmt.Errorf("failed to connect: %s", config.RedactSecret(err.Error(), dsn))
	}
	defer exec.Close()

	planner := migration.NewPlanner(exec, dialect)
	diff, err := planner.Diff(ctx, p.entities)
	if err != nil {
		return err
	}
	p.Statements = migration.Statements(dialect, p.entities, diff)
	p.Warnings = diff.Warnings()
	if !apply || len(p.Statements) == 0 {
		return nil
	}

	if verbose && !jsonOutput {
		for _, stmt := range p.Statements {
			output.Muted("%s", stmt)
		}
	}
	if err := planner.Apply(ctx, p.Statements); err != nil {
		return err
	}
	p.Applied = true
	return nil
}
