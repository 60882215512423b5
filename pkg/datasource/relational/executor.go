package relational

import (
	"context"
	"fmt"

	"github.com/marshallshelly/pebble-api/pkg/builder"
)

// Executor runs statements against one database connection pool.
// Implementations must be safe for concurrent use.
type Executor interface {
	// Query runs a statement and returns its rows keyed by column name.
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)

	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close releases the pool.
	Close() error
}

// QueryError wraps a failed statement.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Open connects an Executor for the dialect.
func Open(ctx context.Context, dialect builder.Dialect, dsn string, maxConns int) (Executor, error) {
	switch dialect {
	case builder.Postgres:
		return ConnectPostgres(ctx, dsn, maxConns)
	case builder.MySQL:
		return OpenSQL(ctx, "mysql", dsn, maxConns)
	case builder.SQLite:
		return OpenSQL(ctx, "sqlite3", dsn, maxConns)
	}
	return nil, fmt.Errorf("unsupported dialect %s", dialect)
}
