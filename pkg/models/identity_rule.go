package models

import (
	"time"
)

// NormalizeDirective names a pure string transform applied to a key field
// before it is used for matching. Trim always runs first; the directive's
// transform is applied to the trimmed value.
type NormalizeDirective string

const (
	NormalizeLowercase  NormalizeDirective = "lowercase"
	NormalizeUppercase  NormalizeDirective = "uppercase"
	NormalizeDigitsOnly NormalizeDirective = "digits_only"
	NormalizeAlnumOnly  NormalizeDirective = "alphanumeric_only"
	NormalizeTrim       NormalizeDirective = "trim"
)

// ValidNormalizeDirective reports whether d names a known transform.
func ValidNormalizeDirective(d NormalizeDirective) bool {
	switch d {
	case NormalizeLowercase, NormalizeUppercase, NormalizeDigitsOnly, NormalizeAlnumOnly, NormalizeTrim:
		return true
	}
	return false
}

// IdentityRule is one deterministic matching rule for a (object type,
// source system) pair. Rules are evaluated in a fixed total order: more key
// fields first, then Priority ascending, then ID ascending. The first rule
// whose key fields all normalize to non-empty values wins.
type IdentityRule struct {
	ID            string                        `json:"id"`
	Name          string                        `json:"name"`
	ObjectType    string                        `json:"object_type"`
	SourceSystem  string                        `json:"source_system"`
	KeyFields     []string                      `json:"key_fields"`
	Normalization map[string]NormalizeDirective `json:"normalization"` // field -> directive; absent field defaults to trim
	Priority      int                           `json:"priority"`
	Active        bool                          `json:"active"`
	CreatedAt     time.Time                     `json:"created_at"`
	UpdatedAt     time.Time                     `json:"updated_at"`
}
