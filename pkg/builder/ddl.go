package builder

import (
	"strings"

	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// ColumnType maps a field data type to a column type for the dialect.
// Keyed string columns use varchar on MySQL, which cannot index TEXT.
func ColumnType(d Dialect, dt schema.DataType, keyed bool) string {
	switch d {
	case MySQL:
		switch dt {
		case schema.String:
			if keyed {
				return "VARCHAR(255)"
			}
			return "TEXT"
		case schema.Integer:
			return "BIGINT"
		case schema.Float:
			return "DOUBLE"
		case schema.Boolean:
			return "BOOLEAN"
		case schema.Date:
			return "DATE"
		case schema.DateTime:
			return "DATETIME"
		case schema.Binary:
			return "BLOB"
		case schema.JSON:
			return "JSON"
		}
	case SQLite:
		switch dt {
		case schema.Integer, schema.Boolean:
			return "INTEGER"
		case schema.Float:
			return "REAL"
		case schema.Binary:
			return "BLOB"
		}
		return "TEXT"
	default:
		switch dt {
		case schema.String:
			return "TEXT"
		case schema.Integer:
			return "BIGINT"
		case schema.Float:
			return "DOUBLE PRECISION"
		case schema.Boolean:
			return "BOOLEAN"
		case schema.Date:
			return "DATE"
		case schema.DateTime:
			return "TIMESTAMPTZ"
		case schema.Binary:
			return "BYTEA"
		case schema.JSON:
			return "JSONB"
		}
	}
	return "TEXT"
}

// CreateTable returns a CREATE TABLE IF NOT EXISTS statement for the entity.
func CreateTable(d Dialect, e *schema.Entity) string {
	table := registry.NewTableMapping(e)

	var defs []string
	hasPK := false
	for _, f := range e.Fields {
		isPK := f.Name == table.PrimaryKey
		hasPK = hasPK || isPK

		def := d.Quote(f.Column()) + " " + ColumnType(d, f.DataType, isPK || f.Unique)
		switch {
		case isPK:
			def += " PRIMARY KEY"
		case f.Unique:
			def += " UNIQUE"
		}
		if f.Required && !isPK {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if !hasPK {
		defs = append([]string{d.Quote(table.PrimaryKey) + " " + ColumnType(d, schema.String, true) + " PRIMARY KEY"}, defs...)
	}

	var sql strings.Builder
	sql.WriteString("CREATE TABLE IF NOT EXISTS ")
	sql.WriteString(d.Quote(table.TableName))
	sql.WriteString(" (\n    ")
	sql.WriteString(strings.Join(defs, ",\n    "))
	sql.WriteString("\n)")
	return sql.String()
}
