package models

import (
	"time"
)

// GoldenObject is the single consolidated representation of a real-world
// entity. GoldenID is derived (a digest of normalized match keys), never
// author-assigned. Mutated only by upsert; the pipeline never deletes one.
type GoldenObject struct {
	GoldenID   string         `json:"golden_id"`
	ObjectType string         `json:"object_type"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
