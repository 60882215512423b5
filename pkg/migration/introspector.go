package migration

import (
	"context"
	"fmt"

	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/datasource/relational"
)

// Introspector reads table layouts from a live database.
type Introspector struct {
	exec    relational.Executor
	dialect builder.Dialect
}

// NewIntrospector creates a new database introspector.
func NewIntrospector(exec relational.Executor, dialect builder.Dialect) *Introspector {
	return &Introspector{exec: exec, dialect: dialect}
}

// Columns returns the column names of a table in ordinal order. A table
// that does not exist has no columns.
func (i *Introspector) Columns(ctx context.Context, table string) ([]string, error) {
	var query string
	switch i.dialect {
	case builder.Postgres:
		query = `SELECT column_name AS name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
	case builder.MySQL:
		query = `SELECT column_name AS name FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`
	case builder.SQLite:
		query = `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	default:
		return nil, fmt.Errorf("unsupported dialect %s", i.dialect)
	}

	rows, err := i.exec.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", table, err)
	}

	columns := make([]string, 0, len(rows))
	for _, row := range rows {
		switch name := row["name"].(type) {
		case string:
			columns = append(columns, name)
		case []byte:
			columns = append(columns, string(name))
		default:
			return nil, fmt.Errorf("unexpected column name %v (%T) in %s", name, name, table)
		}
	}
	return columns, nil
}
