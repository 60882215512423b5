// Package migration brings relational tables in line with entity schemas.
//
// Migrations are additive only: missing tables are created and missing
// columns are added. Columns that no entity field maps are reported but
// never dropped.
package migration

// SchemaDiff represents differences between the entities and a database.
type SchemaDiff struct {
	Tables []TableDiff
}

// TableDiff represents changes to a single table.
type TableDiff struct {
	Entity       string   // Entity name
	Table        string   // Storage table name
	Create       bool     // Table does not exist yet
	ColumnsAdded []string // Entity fields with no backing column
	Unmapped     []string // Existing columns no field maps to
}

// HasChanges returns true if any statement needs to run.
func (d *SchemaDiff) HasChanges() bool {
	for i := range d.Tables {
		if d.Tables[i].HasChanges() {
			return true
		}
	}
	return false
}

// HasChanges returns true if the table needs to be created or altered.
func (t *TableDiff) HasChanges() bool {
	return t.Create || len(t.ColumnsAdded) > 0
}

// Warnings describes the columns the database has but no entity maps.
func (d *SchemaDiff) Warnings() []string {
	var out []string
	for _, t := range d.Tables {
		for _, c := range t.Unmapped {
			out = append(out, "column "+c+" of table "+t.Table+" is not mapped by entity "+t.Entity)
		}
	}
	return out
}
