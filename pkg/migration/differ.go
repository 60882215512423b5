package migration

import (
	"strings"

	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// Compare diffs entities against the columns found in the database, keyed
// by table name. A table absent from existing is created.
func Compare(entities []schema.Entity, existing map[string][]string) *SchemaDiff {
	diff := &SchemaDiff{Tables: make([]TableDiff, 0, len(entities))}

	for i := range entities {
		e := &entities[i]
		mapping := registry.NewTableMapping(e)
		t := TableDiff{Entity: e.Name, Table: mapping.TableName}

		columns := existing[mapping.TableName]
		if len(columns) == 0 {
			t.Create = true
			diff.Tables = append(diff.Tables, t)
			continue
		}

		// MySQL and SQLite fold identifier case
		found := make(map[string]bool, len(columns))
		for _, c := range columns {
			found[strings.ToLower(c)] = true
		}
		mapped := map[string]bool{strings.ToLower(mapping.PrimaryKeyColumn()): true}
		for _, f := range mapping.Fields {
			mapped[strings.ToLower(f.Column)] = true
			if !found[strings.ToLower(f.Column)] {
				t.ColumnsAdded = append(t.ColumnsAdded, f.FieldName)
			}
		}
		for _, c := range columns {
			if !mapped[strings.ToLower(c)] {
				t.Unmapped = append(t.Unmapped, c)
			}
		}
		diff.Tables = append(diff.Tables, t)
	}
	return diff
}
