package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	enginesql "github.com/goldfuse-inc/goldfuse-engine/pkg/sql"
)

// Connector provides read-only PostgreSQL source access for profiling.
type Connector struct {
	pool *pgxpool.Pool
}

func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// NewConnector connects to a PostgreSQL source.
func NewConnector(ctx context.Context, cfg *Config) (*Connector, error) {
	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres source: %w", err)
	}
	return &Connector{pool: pool}, nil
}

// Close releases the source connection pool.
func (c *Connector) Close() error {
	c.pool.Close()
	return nil
}

// Ping verifies the source is reachable.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres source: %w", err)
	}
	return nil
}

// qualifiedTableName returns a properly quoted table reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	quotedSchema := pgx.Identifier{schemaName}.Sanitize()
	return quotedSchema + "." + quotedTable
}

// checkIdentifiers guards every catalog-supplied name before it is
// interpolated into profiling SQL.
func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := enginesql.CheckIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// EnumerateTables returns all base tables, excluding system schemas.
func (c *Connector) EnumerateTables(ctx context.Context) ([]source.TableRef, error) {
	const query = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_schema, table_name
	`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []source.TableRef
	for rows.Next() {
		var t source.TableRef
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// Columns returns the columns of one table in ordinal order.
func (c *Connector) Columns(ctx context.Context, schema, table string) ([]source.ColumnInfo, error) {
	const query = `
		SELECT column_name, data_type, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []source.ColumnInfo
	for rows.Next() {
		var col source.ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// CountRows returns the exact row count of one table.
func (c *Connector) CountRows(ctx context.Context, schema, table string) (int64, error) {
	if err := checkIdentifiers(schema, table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, qualifiedTableName(schema, table))

	var count int64
	if err := c.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}

// ColumnFacts returns row, null, and distinct counts for one column.
func (c *Connector) ColumnFacts(ctx context.Context, schema, table, column string) (source.ColumnFacts, error) {
	var facts source.ColumnFacts

	if err := checkIdentifiers(schema, table, column); err != nil {
		return facts, err
	}

	tableRef := qualifiedTableName(schema, table)
	quotedCol := pgx.Identifier{column}.Sanitize()

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) as row_count,
			COUNT(*) - COUNT(%s) as null_count,
			COUNT(DISTINCT %s) as distinct_count
		FROM %s
	`, quotedCol, quotedCol, tableRef)

	if err := c.pool.QueryRow(ctx, query).Scan(&facts.RowCount, &facts.NullCount, &facts.DistinctCount); err != nil {
		return facts, fmt.Errorf("column facts for %s.%s.%s: %w", schema, table, column, err)
	}
	return facts, nil
}

// SampleValues returns up to limit distinct non-null values, sorted ascending.
func (c *Connector) SampleValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	if err := checkIdentifiers(schema, table, column); err != nil {
		return nil, err
	}

	tableRef := qualifiedTableName(schema, table)
	quotedCol := pgx.Identifier{column}.Sanitize()

	query := fmt.Sprintf(`
		SELECT DISTINCT %s::text
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY 1
		LIMIT $1
	`, quotedCol, tableRef, quotedCol)

	rows, err := c.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sample values for %s.%s.%s: %w", schema, table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var val string
		if err := rows.Scan(&val); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, val)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample values: %w", err)
	}

	return values, nil
}

// PrimaryKeyColumn returns the single-column primary key of a table, or ""
// when none exists or the key is composite.
func (c *Connector) PrimaryKeyColumn(ctx context.Context, schema, table string) (string, error) {
	const query = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY kcu.ordinal_position
	`

	rows, err := c.pool.Query(ctx, query, schema, table)
	if err != nil {
		return "", fmt.Errorf("query primary key for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return "", fmt.Errorf("scan primary key column: %w", err)
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate primary key columns: %w", err)
	}

	if len(columns) != 1 {
		return "", nil
	}
	return columns[0], nil
}

// FetchRows reads up to limit rows ordered by the key column.
func (c *Connector) FetchRows(ctx context.Context, schema, table, keyColumn string, limit int) ([]map[string]any, error) {
	if err := checkIdentifiers(schema, table, keyColumn); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s LIMIT $1`,
		qualifiedTableName(schema, table),
		pgx.Identifier{keyColumn}.Sanitize())

	rows, err := c.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch rows from %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row from %s.%s: %w", schema, table, err)
		}

		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows from %s.%s: %w", schema, table, err)
	}

	return result, nil
}

// Ensure Connector implements source.Connector at compile time.
var _ source.Connector = (*Connector)(nil)
