package models

import (
	"time"

	"github.com/google/uuid"
)

// ObjectTypeUnknown is the classifier's fallback when no vocabulary entry
// matches a table name.
const ObjectTypeUnknown = "unknown"

// ObjectCandidate is a (schema, table) pair inferred - not confirmed - to
// represent a given object type. Unique per (source, schema, table) across
// all runs: re-scanning updates guess_type and row_count in place.
type ObjectCandidate struct {
	ID          uuid.UUID `json:"id"`
	SourceID    string    `json:"source_id"`
	SchemaName  string    `json:"schema_name"`
	TableName   string    `json:"table_name"`
	GuessType   string    `json:"guess_type"`
	RowCount    int64     `json:"row_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}
