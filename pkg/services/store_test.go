package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
)

func resolvedRow(goldenID, system, pk string) *ResolvedRow {
	return &ResolvedRow{
		GoldenID:     goldenID,
		ObjectType:   "customer",
		Attributes:   map[string]any{"email": pk + "@x.com"},
		SourceSystem: system,
		SourceTable:  "public.customers",
		SourcePK:     pk,
		MatchRule:    "rule-email",
		Confidence:   1.0,
		Explanation:  "email exact",
	}
}

func TestStoreApplyCreatesObjectAndLink(t *testing.T) {
	ctx := context.Background()
	repo := newMockGoldenRepo()
	store := NewStoreService(repo, zap.NewNop())

	require.NoError(t, store.Apply(ctx, resolvedRow("g1", "crm", "1")))

	object, err := repo.GetObject(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "customer", object.ObjectType)
	assert.Equal(t, "1@x.com", object.Attributes["email"])

	links, err := repo.ListLinks(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "crm", links[0].SourceSystem)
	assert.Equal(t, "1", links[0].SourcePK)
}

func TestStoreApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMockGoldenRepo()
	store := NewStoreService(repo, zap.NewNop())

	require.NoError(t, store.Apply(ctx, resolvedRow("g1", "crm", "1")))

	object, err := repo.GetObject(ctx, "g1")
	require.NoError(t, err)
	created := object.CreatedAt

	require.NoError(t, store.Apply(ctx, resolvedRow("g1", "crm", "1")))

	object, err = repo.GetObject(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, created, object.CreatedAt)

	links, err := repo.ListLinks(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestStoreApplyMergesAttributes(t *testing.T) {
	ctx := context.Background()
	repo := newMockGoldenRepo()
	store := NewStoreService(repo, zap.NewNop())

	first := resolvedRow("g1", "crm", "1")
	first.Attributes = map[string]any{"email": "a@x.com", "name": "Alice"}
	require.NoError(t, store.Apply(ctx, first))

	second := resolvedRow("g1", "billing", "900")
	second.Attributes = map[string]any{"email": "a@x.com", "plan": "gold"}
	require.NoError(t, store.Apply(ctx, second))

	object, err := repo.GetObject(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", object.Attributes["name"])
	assert.Equal(t, "gold", object.Attributes["plan"])

	links, err := repo.ListLinks(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestStoreApplyConcurrentSameGoldenID(t *testing.T) {
	ctx := context.Background()
	repo := newMockGoldenRepo()
	store := NewStoreService(repo, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Apply(ctx, resolvedRow("g1", "crm", fmt.Sprintf("%d", i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	links, err := repo.ListLinks(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, links, 20)
}

func TestStoreApplyRetriesTransientConflict(t *testing.T) {
	ctx := context.Background()
	repo := newMockGoldenRepo()
	repo.objectErrs = []error{apperrors.ErrConflict}
	store := NewStoreService(repo, zap.NewNop())

	require.NoError(t, store.Apply(ctx, resolvedRow("g1", "crm", "1")))

	_, err := repo.GetObject(ctx, "g1")
	assert.NoError(t, err)
}

func TestStoreApplyExhaustedConflictSurfaces(t *testing.T) {
	repo := newMockGoldenRepo()
	repo.objectErrs = []error{
		apperrors.ErrConflict, apperrors.ErrConflict,
		apperrors.ErrConflict, apperrors.ErrConflict,
	}
	store := NewStoreService(repo, zap.NewNop())

	err := store.Apply(context.Background(), resolvedRow("g1", "crm", "1"))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
