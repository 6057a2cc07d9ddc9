package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// keySeparator joins key tuple parts before hashing. The unit separator
// never appears in normalized values, so ("ab","c") and ("a","bc") hash
// differently.
const keySeparator = "\x1f"

// Derivation is the outcome of deriving a golden identifier for one row.
type Derivation struct {
	GoldenID    string
	Confidence  float64
	Explanation string
	// MatchRule identifies how the row was matched: the rule id for the
	// rule engine (ids are immutable where names are display text), or the
	// fixed strategy label for the legacy scheme.
	MatchRule string
}

// IdentifierStrategy derives a golden identifier for a single source row.
// sourceID is the row's primary key rendered as a string; row holds the
// column values keyed by column name. Implementations must be pure: the
// same inputs always produce the same Derivation.
type IdentifierStrategy interface {
	Derive(sourceID string, row map[string]any) (Derivation, error)
	// MissingKeys reports which of the strategy's required fields are
	// absent or normalize to empty in the given row.
	MissingKeys(row map[string]any) []string
}

// GoldenID hashes an ordered key tuple into a golden identifier.
func GoldenID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, keySeparator)))
	return hex.EncodeToString(sum[:])
}

// ExactKeyStrategy is the legacy derivation scheme: the golden identifier
// is a digest of (source system, source id, object type). Rows from
// different systems never collapse under this scheme, so its confidence
// is fixed low.
type ExactKeyStrategy struct {
	SourceSystem string
	ObjectType   string
}

const (
	exactKeyConfidence = 0.5
	exactKeyLabel      = "exact_source_key"
)

var _ IdentifierStrategy = (*ExactKeyStrategy)(nil)

func (s *ExactKeyStrategy) Derive(sourceID string, _ map[string]any) (Derivation, error) {
	return Derivation{
		GoldenID:    GoldenID(s.SourceSystem, sourceID, s.ObjectType),
		Confidence:  exactKeyConfidence,
		Explanation: "exact source key",
		MatchRule:   exactKeyLabel,
	}, nil
}

// MissingKeys always returns nil: the scheme keys on the source primary
// key, which every fetched row carries.
func (s *ExactKeyStrategy) MissingKeys(_ map[string]any) []string {
	return nil
}
