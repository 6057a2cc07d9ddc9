package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/config"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/identity"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

func emailRule(sourceSystem string) *models.IdentityRule {
	return &models.IdentityRule{
		ID:           "rule-email",
		Name:         "customer by email",
		ObjectType:   "customer",
		SourceSystem: sourceSystem,
		KeyFields:    []string{"email"},
		Normalization: map[string]models.NormalizeDirective{
			"email": models.NormalizeLowercase,
		},
		Priority: 10,
		Active:   true,
	}
}

func customerCandidate(sourceID string) *models.ObjectCandidate {
	return &models.ObjectCandidate{
		SourceID:   sourceID,
		SchemaName: "public",
		TableName:  "customers",
		GuessType:  "customer",
		RowCount:   3,
	}
}

func resolutionConnector(rows []map[string]any) *fakeConnector {
	return &fakeConnector{tables: []fakeTable{{
		ref:      source.TableRef{Schema: "public", Name: "customers"},
		pkColumn: "id",
		rows:     rows,
	}}}
}

func newTestResolver(ruleRepo *mockRuleRepo, goldenRepo *mockGoldenRepo, conn source.Connector, openErr error) *resolverService {
	store := NewStoreService(goldenRepo, zap.NewNop())
	r := NewResolverService(ruleRepo, store, config.ResolverConfig{Workers: 4, RowLimit: 10000}, zap.NewNop()).(*resolverService)
	r.openConnector = staticConnector(conn, openErr)
	r.connectRetry = fastRetry()
	return r
}

func TestResolveSourceResolvesRows(t *testing.T) {
	ctx := context.Background()
	ruleRepo := &mockRuleRepo{rules: []*models.IdentityRule{emailRule("crm")}}
	goldenRepo := newMockGoldenRepo()

	conn := resolutionConnector([]map[string]any{
		{"id": 1, "email": "Alice@X.com", "name": "Alice"},
		{"id": 2, "email": "alice@x.com", "name": "A. Smith"},
		{"id": 3, "email": "bob@x.com", "name": "Bob"},
	})
	r := newTestResolver(ruleRepo, goldenRepo, conn, nil)

	stats := NewResolutionStats()
	require.NoError(t, r.ResolveSource(ctx, testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats))

	assert.Equal(t, 3, stats.RowsResolved())
	assert.Equal(t, 0, stats.RowsUnresolved())
	// Rows 1 and 2 normalize to the same email, so they collapse.
	assert.Equal(t, 2, stats.DistinctGoldenIDs())

	aliceID := identity.GoldenID("alice@x.com")
	object, err := goldenRepo.GetObject(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "customer", object.ObjectType)

	links, err := goldenRepo.ListLinks(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, link := range links {
		assert.Equal(t, "crm", link.SourceSystem)
		assert.Equal(t, "public.customers", link.SourceTable)
		assert.Equal(t, "rule-email", link.MatchRule)
		assert.Equal(t, 1.0, link.Confidence)
	}
}

func TestResolveSourceCountsUnresolvedRows(t *testing.T) {
	ruleRepo := &mockRuleRepo{rules: []*models.IdentityRule{emailRule("crm")}}
	goldenRepo := newMockGoldenRepo()

	conn := resolutionConnector([]map[string]any{
		{"id": 1, "email": "alice@x.com"},
		{"id": 2, "email": nil},
		{"id": 3, "email": "   "},
	})
	r := newTestResolver(ruleRepo, goldenRepo, conn, nil)

	stats := NewResolutionStats()
	require.NoError(t, r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats))

	assert.Equal(t, 1, stats.RowsResolved())
	assert.Equal(t, 2, stats.RowsUnresolved())
	assert.InDelta(t, 2.0/3.0, stats.MissingKeyRates()["email"], 1e-9)
}

func TestResolveSourceSkipsUnknownCandidates(t *testing.T) {
	ruleRepo := &mockRuleRepo{rules: []*models.IdentityRule{emailRule("crm")}}
	r := newTestResolver(ruleRepo, newMockGoldenRepo(), nil, errors.New("should not connect"))

	candidate := customerCandidate("crm")
	candidate.GuessType = models.ObjectTypeUnknown

	stats := NewResolutionStats()
	err := r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{candidate}, stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RowsConsidered())
}

func TestResolveSourceSkipsTypesWithoutRules(t *testing.T) {
	// No rules at all: the source is never even opened.
	r := newTestResolver(&mockRuleRepo{}, newMockGoldenRepo(), nil, errors.New("should not connect"))

	stats := NewResolutionStats()
	err := r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RowsConsidered())
	// Silent drops would hide rule gaps, so the skip is counted.
	assert.Equal(t, 1, stats.TablesSkippedNoRules())
	assert.Equal(t, 1, stats.Metrics()["tables_skipped_no_rules"])
}

func TestResolveSourceSkipsTableWithoutPrimaryKey(t *testing.T) {
	ruleRepo := &mockRuleRepo{rules: []*models.IdentityRule{emailRule("crm")}}
	conn := resolutionConnector([]map[string]any{{"id": 1, "email": "alice@x.com"}})
	conn.tables[0].pkColumn = ""
	r := newTestResolver(ruleRepo, newMockGoldenRepo(), conn, nil)

	stats := NewResolutionStats()
	err := r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RowsConsidered())
}

func TestResolveSourceConnectionFailure(t *testing.T) {
	ruleRepo := &mockRuleRepo{rules: []*models.IdentityRule{emailRule("crm")}}
	r := newTestResolver(ruleRepo, newMockGoldenRepo(), nil, errors.New("connection refused"))

	stats := NewResolutionStats()
	err := r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnreachable)
}

func TestResolveSourceIgnoresRulesForOtherSources(t *testing.T) {
	// Active rule scoped to a different source system does not apply.
	ruleRepo := &mockRuleRepo{rules: []*models.IdentityRule{emailRule("billing")}}
	r := newTestResolver(ruleRepo, newMockGoldenRepo(), nil, errors.New("should not connect"))

	stats := NewResolutionStats()
	err := r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RowsConsidered())
}

func TestResolveSourceExactKeyFallback(t *testing.T) {
	conn := resolutionConnector([]map[string]any{
		{"id": 1, "email": "alice@x.com"},
		{"id": 2, "email": "bob@x.com"},
	})
	goldenRepo := newMockGoldenRepo()
	r := newTestResolver(&mockRuleRepo{}, goldenRepo, conn, nil)
	r.cfg.ExactKeyFallback = true

	stats := NewResolutionStats()
	err := r.ResolveSource(context.Background(), testDescriptor(), []*models.ObjectCandidate{customerCandidate("crm")}, stats)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RowsResolved())
	assert.Equal(t, 0, stats.RowsUnresolved())

	// Fallback ids key on (system, pk, type), so the two rows stay distinct.
	obj, err := goldenRepo.GetObject(context.Background(), identity.GoldenID("crm", "1", "customer"))
	require.NoError(t, err)
	assert.Equal(t, "customer", obj.ObjectType)

	links, err := goldenRepo.ListLinks(context.Background(), obj.GoldenID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "exact_source_key", links[0].MatchRule)
	assert.InDelta(t, 0.5, links[0].Confidence, 0.001)
	assert.Equal(t, "exact source key", links[0].Explanation)
}
