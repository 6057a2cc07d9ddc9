package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanRunStatus is the lifecycle state of one scan run.
type ScanRunStatus string

const (
	ScanRunPending ScanRunStatus = "PENDING"
	ScanRunRunning ScanRunStatus = "RUNNING"
	ScanRunSuccess ScanRunStatus = "SUCCESS"
	ScanRunFailed  ScanRunStatus = "FAILED"
)

// IsTerminal reports whether the status is final. A terminal run is never
// reopened; a retry is always a new ScanRun.
func (s ScanRunStatus) IsTerminal() bool {
	return s == ScanRunSuccess || s == ScanRunFailed
}

// ScanRun is one bounded execution of the profiling + resolution pipeline.
// Owned exclusively by the coordinator: status moves PENDING -> RUNNING at
// start and reaches exactly one terminal state at the end.
type ScanRun struct {
	ID           uuid.UUID      `json:"id"`
	SourceFilter string         `json:"source_filter"` // empty = all active sources
	Status       ScanRunStatus  `json:"status"`
	Metrics      map[string]any `json:"metrics"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	Error        *string        `json:"error,omitempty"`
}
