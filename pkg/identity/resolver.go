package identity

import (
	"sort"
	"strings"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// RuleSet holds the active identity rules for one (object type, source
// system) pair, in evaluation order. Rules with more key fields are tried
// first; ties break on ascending priority, then rule id, so evaluation
// order is total and resolution is deterministic regardless of the order
// rules were loaded in.
type RuleSet struct {
	ObjectType   string
	SourceSystem string
	rules        []models.IdentityRule
}

// NewRuleSet filters the given rules down to active ones matching the
// object type and source system, and orders them for evaluation.
func NewRuleSet(objectType, sourceSystem string, rules []models.IdentityRule) *RuleSet {
	ordered := make([]models.IdentityRule, 0, len(rules))
	for _, r := range rules {
		if !r.Active || r.ObjectType != objectType || r.SourceSystem != sourceSystem {
			continue
		}
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if len(a.KeyFields) != len(b.KeyFields) {
			return len(a.KeyFields) > len(b.KeyFields)
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	return &RuleSet{ObjectType: objectType, SourceSystem: sourceSystem, rules: ordered}
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []models.IdentityRule {
	return rs.rules
}

// RequiredFields returns the sorted union of key fields across all rules
// in the set. Used for missing-key accounting.
func (rs *RuleSet) RequiredFields() []string {
	seen := make(map[string]struct{})
	for _, r := range rs.rules {
		for _, f := range r.KeyFields {
			seen[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// RuleEngineStrategy derives golden identifiers by scanning a rule set in
// order and hashing the first fully-populated normalized key tuple. A rule
// matches only if every one of its key fields normalizes to a non-empty
// value; otherwise the scan moves to the next rule. If no rule matches,
// Derive returns apperrors.ErrNoRuleMatched.
type RuleEngineStrategy struct {
	ruleSet *RuleSet
}

var _ IdentifierStrategy = (*RuleEngineStrategy)(nil)

func NewRuleEngineStrategy(ruleSet *RuleSet) *RuleEngineStrategy {
	return &RuleEngineStrategy{ruleSet: ruleSet}
}

func (s *RuleEngineStrategy) Derive(_ string, row map[string]any) (Derivation, error) {
	for _, rule := range s.ruleSet.rules {
		keys, ok := normalizedKeys(rule, row)
		if !ok {
			continue
		}
		return Derivation{
			GoldenID:    GoldenID(keys...),
			Confidence:  ruleConfidence(rule),
			Explanation: ruleExplanation(rule),
			MatchRule:   rule.ID,
		}, nil
	}
	return Derivation{}, apperrors.ErrNoRuleMatched
}

// MissingKeys reports which of the rule set's required fields are absent
// or normalize to empty in the given row.
func (s *RuleEngineStrategy) MissingKeys(row map[string]any) []string {
	var missing []string
	for _, field := range s.ruleSet.RequiredFields() {
		if NormalizeField(row, field, directiveFor(s.ruleSet, field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// normalizedKeys evaluates a rule against a row, returning the key tuple
// in the rule's declared field order. ok is false when any field is empty
// after normalization.
func normalizedKeys(rule models.IdentityRule, row map[string]any) ([]string, bool) {
	keys := make([]string, 0, len(rule.KeyFields))
	for _, field := range rule.KeyFields {
		v := NormalizeField(row, field, rule.Normalization[field])
		if v == "" {
			return nil, false
		}
		keys = append(keys, v)
	}
	return keys, true
}

// Single-field rules are exact matches; composite rules are fallbacks and
// carry less confidence.
func ruleConfidence(rule models.IdentityRule) float64 {
	if len(rule.KeyFields) == 1 {
		return 1.0
	}
	return 0.6
}

func ruleExplanation(rule models.IdentityRule) string {
	if len(rule.KeyFields) == 1 {
		return rule.KeyFields[0] + " exact"
	}
	return strings.Join(rule.KeyFields, "+") + " composite"
}

// directiveFor finds the normalization directive the highest-priority rule
// declares for a field, defaulting to trim.
func directiveFor(rs *RuleSet, field string) models.NormalizeDirective {
	for _, r := range rs.rules {
		if d, ok := r.Normalization[field]; ok {
			return d
		}
	}
	return models.NormalizeTrim
}
