package identity

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// Normalize applies a directive to a raw key value. Whitespace is always
// trimmed first; the directive's transform runs on the trimmed value. This
// order is fixed: trim-then-lowercase and lowercase-then-trim give the same
// result for case folding, but the order matters once rules combine trim
// with the character-class filters, so it is pinned here and by tests.
//
// An unknown or empty directive behaves like trim.
func Normalize(value string, directive models.NormalizeDirective) string {
	v := strings.TrimSpace(value)

	switch directive {
	case models.NormalizeLowercase:
		return strings.ToLower(v)
	case models.NormalizeUppercase:
		return strings.ToUpper(v)
	case models.NormalizeDigitsOnly:
		return keepRunes(v, func(r rune) bool {
			return r >= '0' && r <= '9'
		})
	case models.NormalizeAlnumOnly:
		return keepRunes(v, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		})
	default:
		return v
	}
}

// NormalizeField extracts a field from a source row and normalizes it.
// A missing field or nil value normalizes to the empty string, which
// disqualifies the rule holding it.
func NormalizeField(row map[string]any, field string, directive models.NormalizeDirective) string {
	raw, ok := row[field]
	if !ok || raw == nil {
		return ""
	}
	return Normalize(stringify(raw), directive)
}

func keepRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stringify renders a raw row value as a string for normalization.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
