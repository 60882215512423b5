package builder

import (
	"strings"

	"github.com/marshallshelly/pebble-api/pkg/registry"
)

// Builder generates the statements for one table mapping.
// Only identifiers from configuration are interpolated; values are always bound.
type Builder struct {
	dialect Dialect
	table   *registry.TableMapping
}

// New creates a Builder for the given dialect and mapping.
func New(dialect Dialect, table *registry.TableMapping) *Builder {
	return &Builder{dialect: dialect, table: table}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Table returns the builder's mapping.
func (b *Builder) Table() *registry.TableMapping {
	return b.table
}

func (b *Builder) columnList() string {
	cols := make([]string, len(b.table.Fields))
	for i, f := range b.table.Fields {
		cols[i] = b.dialect.Quote(f.Column)
	}
	return strings.Join(cols, ", ")
}

// SelectAll returns SELECT <cols> FROM <table>.
func (b *Builder) SelectAll() string {
	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(b.columnList())
	sql.WriteString(" FROM ")
	sql.WriteString(b.dialect.Quote(b.table.TableName))
	return sql.String()
}

// SelectByID returns SELECT <cols> FROM <table> WHERE <pk> = ?.
func (b *Builder) SelectByID() string {
	return b.SelectAll() + b.wherePK(1)
}

// Insert returns INSERT INTO <table> (<cols>) VALUES (<placeholders>).
// Placeholders follow the mapping's field order.
func (b *Builder) Insert() string {
	placeholders := make([]string, len(b.table.Fields))
	for i := range b.table.Fields {
		placeholders[i] = b.dialect.Placeholder(i + 1)
	}

	var sql strings.Builder
	sql.WriteString("INSERT INTO ")
	sql.WriteString(b.dialect.Quote(b.table.TableName))
	sql.WriteString(" (")
	sql.WriteString(b.columnList())
	sql.WriteString(") VALUES (")
	sql.WriteString(strings.Join(placeholders, ", "))
	sql.WriteString(")")
	return sql.String()
}

// Update returns UPDATE <table> SET <col> = ?, ... WHERE <pk> = ?.
// The primary key is excluded from the SET list.
func (b *Builder) Update() string {
	var sets []string
	n := 1
	for _, f := range b.table.Fields {
		if f.FieldName == b.table.PrimaryKey {
			continue
		}
		sets = append(sets, b.dialect.Quote(f.Column)+" = "+b.dialect.Placeholder(n))
		n++
	}

	var sql strings.Builder
	sql.WriteString("UPDATE ")
	sql.WriteString(b.dialect.Quote(b.table.TableName))
	sql.WriteString(" SET ")
	sql.WriteString(strings.Join(sets, ", "))
	sql.WriteString(b.wherePK(n))
	return sql.String()
}

// Delete returns DELETE FROM <table> WHERE <pk> = ?.
func (b *Builder) Delete() string {
	return "DELETE FROM " + b.dialect.Quote(b.table.TableName) + b.wherePK(1)
}

func (b *Builder) wherePK(n int) string {
	return " WHERE " + b.dialect.Quote(b.table.PrimaryKeyColumn()) + " = " + b.dialect.Placeholder(n)
}
