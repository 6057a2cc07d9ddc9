package models

import (
	"time"

	"github.com/google/uuid"
)

// KPI keys produced by the aggregator for every completed run.
const (
	KpiDuplicateRate    = "duplicate_rate"
	KpiMissingKeyRate   = "missing_key_rate"
	KpiSourcesPerObject = "sources_per_object"
	KpiRowsUnresolved   = "rows_unresolved"
)

// KpiFact is one scalar quality metric scoped to a scan run. Append-only.
type KpiFact struct {
	ID         uuid.UUID      `json:"id"`
	ScanRunID  uuid.UUID      `json:"scan_run_id"`
	Key        string         `json:"kpi_key"`
	Value      float64        `json:"value"`
	Details    map[string]any `json:"details,omitempty"`
	ComputedAt time.Time      `json:"computed_at"`
}
