package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceLink is the traceability edge from one source row to the golden
// object it was matched into. Unique per (source system, source table,
// source pk): a source row links to exactly one golden object at a time and
// re-resolution replaces the prior link.
type SourceLink struct {
	ID           uuid.UUID `json:"id"`
	GoldenID     string    `json:"golden_id"`
	SourceSystem string    `json:"source_system"`
	SourceTable  string    `json:"source_table"`
	SourcePK     string    `json:"source_pk"`
	MatchRule    string    `json:"match_rule"`
	Confidence   float64   `json:"confidence"` // [0,1]
	Explanation  string    `json:"explanation"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
