// Package builder generates SQL statements for entity table mappings and
// converts between rows and entity records.
package builder

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects placeholder and identifier quoting rules.
type Dialect int

const (
	// Postgres uses $n placeholders and double-quoted identifiers.
	Postgres Dialect = iota
	// MySQL uses ? placeholders and backtick-quoted identifiers. MariaDB shares it.
	MySQL
	// SQLite uses ? placeholders and double-quoted identifiers.
	SQLite
)

// ParseDialect parses a dialect or database type name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unsupported SQL dialect %q", s)
}

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	}
	return "unknown"
}

// Placeholder returns the positional parameter marker for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier, escaping embedded quote characters.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
