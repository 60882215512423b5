package migration

import (
	"context"
	"fmt"

	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/datasource/relational"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// Planner computes and applies the statements that bring one database in
// line with its entities.
type Planner struct {
	exec    relational.Executor
	dialect builder.Dialect
}

// NewPlanner creates a planner for a connected database.
func NewPlanner(exec relational.Executor, dialect builder.Dialect) *Planner {
	return &Planner{exec: exec, dialect: dialect}
}

// Diff introspects every entity table and compares it with the entity.
func (p *Planner) Diff(ctx context.Context, entities []schema.Entity) (*SchemaDiff, error) {
	in := NewIntrospector(p.exec, p.dialect)
	existing := make(map[string][]string, len(entities))
	for i := range entities {
		table := entities[i].StorageName()
		if _, done := existing[table]; done {
			continue
		}
		columns, err := in.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		existing[table] = columns
	}
	return Compare(entities, existing), nil
}

// Apply runs statements in order and stops at the first failure.
func (p *Planner) Apply(ctx context.Context, statements []string) error {
	for i, stmt := range statements {
		if _, err := p.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %d failed: %w", i+1, len(statements), err)
		}
	}
	return nil
}

// Statements generates the DDL for a diff. Added columns are nullable and
// carry no UNIQUE constraint, since the table may already hold rows.
func Statements(d builder.Dialect, entities []schema.Entity, diff *SchemaDiff) []string {
	byName := make(map[string]*schema.Entity, len(entities))
	for i := range entities {
		byName[entities[i].Name] = &entities[i]
	}

	var out []string
	for _, t := range diff.Tables {
		e, ok := byName[t.Entity]
		if !ok || !t.HasChanges() {
			continue
		}
		if t.Create {
			out = append(out, builder.CreateTable(d, e))
			continue
		}
		for _, name := range t.ColumnsAdded {
			f, ok := e.Field(name)
			if !ok {
				continue
			}
			out = append(out, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				d.Quote(t.Table), d.Quote(f.Column()), builder.ColumnType(d, f.DataType, false)))
		}
	}
	return out
}
