package models

import (
	"time"

	"github.com/google/uuid"
)

// TableProfile holds per-table statistics gathered during one scan run.
// Unique per (scan run, schema, table); immutable once written — a re-scan
// produces new rows under the new run id.
type TableProfile struct {
	ID          uuid.UUID `json:"id"`
	ScanRunID   uuid.UUID `json:"scan_run_id"`
	SourceID    string    `json:"source_id"`
	SchemaName  string    `json:"schema_name"`
	TableName   string    `json:"table_name"`
	RowCount    int64     `json:"row_count"`
	ColumnCount int       `json:"column_count"`
	ProfiledAt  time.Time `json:"profiled_at"`
}

// ColumnProfile holds per-column statistics for one table in one scan run.
// Unique per (scan run, schema, table, column); immutable once written.
// SampleHash is a stable digest over a bounded, deterministically-ordered
// sample of values, used to detect unchanged data across runs without
// re-reading full content.
type ColumnProfile struct {
	ID              uuid.UUID `json:"id"`
	ScanRunID       uuid.UUID `json:"scan_run_id"`
	SourceID        string    `json:"source_id"`
	SchemaName      string    `json:"schema_name"`
	TableName       string    `json:"table_name"`
	ColumnName      string    `json:"column_name"`
	DataType        string    `json:"data_type"`
	OrdinalPosition int       `json:"ordinal_position"`
	RowCount        int64     `json:"row_count"`
	NullCount       int64     `json:"null_count"`
	NullRate        float64   `json:"null_rate"` // null_count / row_count, 0 when row_count is 0
	DistinctCount   int64     `json:"distinct_count"`
	SampleHash      string    `json:"sample_hash"`
}
