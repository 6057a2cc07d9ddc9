package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	enginesql "github.com/goldfuse-inc/goldfuse-engine/pkg/sql"
)

// Connector provides read-only SQL Server source access for profiling.
type Connector struct {
	db *sql.DB
}

func buildConnectionString(cfg *Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)
}

// NewConnector connects to a SQL Server source.
func NewConnector(ctx context.Context, cfg *Config) (*Connector, error) {
	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver source: %w", err)
	}
	return &Connector{db: db}, nil
}

// Close releases the source connection.
func (c *Connector) Close() error {
	return c.db.Close()
}

// Ping verifies the source is reachable.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlserver source: %w", err)
	}
	return nil
}

// quoteName escapes an identifier with square brackets, SQL Server style.
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// qualifiedTableName builds a fully qualified table name: [schema].[table].
func qualifiedTableName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

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
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		  AND TABLE_SCHEMA NOT IN ('sys', 'INFORMATION_SCHEMA')
		ORDER BY TABLE_SCHEMA, TABLE_NAME
	`

	rows, err := c.db.QueryContext(ctx, query)
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
		SELECT COLUMN_NAME, DATA_TYPE, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION
	`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
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

	query := fmt.Sprintf(`SELECT COUNT_BIG(*) FROM %s`, qualifiedTableName(schema, table))

	var count int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
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
	quotedCol := quoteName(column)

	query := fmt.Sprintf(`
		SELECT
			COUNT_BIG(*) as row_count,
			COUNT_BIG(*) - COUNT_BIG(%s) as null_count,
			COUNT_BIG(DISTINCT %s) as distinct_count
		FROM %s
	`, quotedCol, quotedCol, tableRef)

	if err := c.db.QueryRowContext(ctx, query).Scan(&facts.RowCount, &facts.NullCount, &facts.DistinctCount); err != nil {
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
	quotedCol := quoteName(column)

	query := fmt.Sprintf(`
		SELECT DISTINCT TOP (@p1) CAST(%s AS NVARCHAR(MAX)) AS val
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY val
	`, quotedCol, tableRef, quotedCol)

	rows, err := c.db.QueryContext(ctx, query, limit)
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
		SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		 AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		  AND tc.TABLE_SCHEMA = @p1
		  AND tc.TABLE_NAME = @p2
		ORDER BY kcu.ORDINAL_POSITION
	`

	rows, err := c.db.QueryContext(ctx, query, schema, table)
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

	query := fmt.Sprintf(`SELECT TOP (@p1) * FROM %s ORDER BY %s`,
		qualifiedTableName(schema, table), quoteName(keyColumn))

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch rows from %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("row columns for %s.%s: %w", schema, table, err)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row from %s.%s: %w", schema, table, err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
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
