package models

import (
	"strings"
	"time"
)

// Source types supported by the profiler.
const (
	SourceTypePostgres = "postgres"
	SourceTypeMSSQL    = "mssql"
)

// Last-scan status values recorded on a source after each attempt.
const (
	SourceScanStatusOK     = "ok"
	SourceScanStatusFailed = "failed"
)

// SourceDescriptor describes one registered external database.
// Descriptors are created by the admin surface and are read-only to the
// pipeline; ID is globally unique and immutable once created.
// The Connection map holds driver-specific parameters (host, port, user,
// password, database) and varies by SourceType.
type SourceDescriptor struct {
	ID                string         `json:"id"`
	DisplayName       string         `json:"display_name"`
	SourceType        string         `json:"source_type"` // "postgres", "mssql"
	Connection        map[string]any `json:"connection"`
	SchemaAllowList   []string       `json:"schema_allow_list"`   // empty = all schemas
	TableDenyPatterns []string       `json:"table_deny_patterns"` // '%' as multi-character wildcard
	Active            bool           `json:"active"`
	LastScanStatus    *string        `json:"last_scan_status,omitempty"`
	LastScanAt        *time.Time     `json:"last_scan_at,omitempty"`
	LastScanError     *string        `json:"last_scan_error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// SchemaAllowed reports whether a schema is in the allow-list.
// An empty allow-list admits every schema.
func (s *SourceDescriptor) SchemaAllowed(schema string) bool {
	if len(s.SchemaAllowList) == 0 {
		return true
	}
	for _, allowed := range s.SchemaAllowList {
		if allowed == schema {
			return true
		}
	}
	return false
}

// TableDenied reports whether a table name matches any deny pattern.
// Patterns use '%' as a multi-character wildcard; everything else is a
// case-sensitive literal match.
func (s *SourceDescriptor) TableDenied(table string) bool {
	for _, pattern := range s.TableDenyPatterns {
		if matchDenyPattern(pattern, table) {
			return true
		}
	}
	return false
}

// matchDenyPattern matches name against pattern where '%' matches any run
// of characters (including none). Matching is greedy left to right.
func matchDenyPattern(pattern, name string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return pattern == name
	}

	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	rest := name[len(parts[0]):]

	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}

	return strings.HasSuffix(rest, parts[len(parts)-1])
}
