package source

import "context"

// TableRef identifies one base table in a source database.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// ColumnInfo describes one column of a source table.
type ColumnInfo struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// ColumnFacts holds counting statistics for one column.
type ColumnFacts struct {
	RowCount      int64
	NullCount     int64
	DistinctCount int64
}

// Connector is read-only access to one registered source database.
// Implementations own their connection and must be closed when done.
// Connectors never mutate the source.
type Connector interface {
	// Ping verifies the source is reachable with the configured credentials.
	Ping(ctx context.Context) error

	// EnumerateTables returns all base tables, excluding system schemas.
	// Ordered by (schema, name) so a scan visits tables deterministically.
	EnumerateTables(ctx context.Context) ([]TableRef, error)

	// Columns returns the columns of one table in ordinal order.
	Columns(ctx context.Context, schema, table string) ([]ColumnInfo, error)

	// CountRows returns the exact row count of one table.
	CountRows(ctx context.Context, schema, table string) (int64, error)

	// ColumnFacts returns row, null, and distinct counts for one column.
	ColumnFacts(ctx context.Context, schema, table, column string) (ColumnFacts, error)

	// SampleValues returns up to limit distinct non-null values from a
	// column, as text, sorted ascending. The deterministic order is what
	// makes the profiler's sample hash stable across runs.
	SampleValues(ctx context.Context, schema, table, column string, limit int) ([]string, error)

	// PrimaryKeyColumn returns the name of the table's single-column
	// primary key, or "" when the table has no primary key or a composite
	// one. Tables without a usable key are skipped by identity resolution.
	PrimaryKeyColumn(ctx context.Context, schema, table string) (string, error)

	// FetchRows reads up to limit rows from a table, ordered by the given
	// key column, each row as a column-name-to-value map.
	FetchRows(ctx context.Context, schema, table, keyColumn string, limit int) ([]map[string]any, error)

	// Close releases the source connection.
	Close() error
}
