package registry

import "github.com/marshallshelly/pebble-api/pkg/schema"

// DefaultPrimaryKey is used when no field qualifies as a primary key.
const DefaultPrimaryKey = "id"

// TableMapping is the storage layout derived from an entity.
// Field order determines positional parameter order in generated statements.
type TableMapping struct {
	EntityName string
	TableName  string
	PrimaryKey string
	Fields     []FieldMapping
}

// FieldMapping binds an entity field to a storage column.
type FieldMapping struct {
	FieldName string
	Column    string
	Type      schema.DataType
}

// NewTableMapping derives the table mapping of an entity.
func NewTableMapping(e *schema.Entity) *TableMapping {
	m := &TableMapping{
		EntityName: e.Name,
		TableName:  e.StorageName(),
		PrimaryKey: DetectPrimaryKey(e),
		Fields:     make([]FieldMapping, 0, len(e.Fields)),
	}
	for i := range e.Fields {
		f := &e.Fields[i]
		m.Fields = append(m.Fields, FieldMapping{
			FieldName: f.Name,
			Column:    f.Column(),
			Type:      f.DataType,
		})
	}
	return m
}

// DetectPrimaryKey returns the first field named "id", else the first
// unique and required field, else "id".
func DetectPrimaryKey(e *schema.Entity) string {
	for _, f := range e.Fields {
		if f.Name == "id" {
			return f.Name
		}
	}
	for _, f := range e.Fields {
		if f.Unique && f.Required {
			return f.Name
		}
	}
	return DefaultPrimaryKey
}

// PrimaryKeyColumn returns the column backing the primary key field.
func (m *TableMapping) PrimaryKeyColumn() string {
	if f, ok := m.Field(m.PrimaryKey); ok {
		return f.Column
	}
	return m.PrimaryKey
}

// Field returns the mapping of the named field.
func (m *TableMapping) Field(name string) (FieldMapping, bool) {
	for _, f := range m.Fields {
		if f.FieldName == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// Columns returns every mapped column in field order.
func (m *TableMapping) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}
