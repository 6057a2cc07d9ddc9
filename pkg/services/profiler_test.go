package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/config"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
}

func newTestProfiler(repo *mockProfileRepo, conn source.Connector, openErr error) *profilerService {
	p := NewProfilerService(repo, config.ScannerConfig{SampleLimit: 50, MaxConcurrentSources: 4}, zap.NewNop()).(*profilerService)
	p.openConnector = staticConnector(conn, openErr)
	p.connectRetry = fastRetry()
	return p
}

func testRun() *models.ScanRun {
	return &models.ScanRun{ID: uuid.New(), Status: models.ScanRunRunning, StartedAt: time.Now()}
}

func testDescriptor() *models.SourceDescriptor {
	return &models.SourceDescriptor{
		ID:         "crm",
		SourceType: models.SourceTypePostgres,
		Connection: map[string]any{"host": "localhost"},
		Active:     true,
	}
}

func customersTable() fakeTable {
	return fakeTable{
		ref:      source.TableRef{Schema: "public", Name: "customers"},
		rowCount: 3,
		columns: []source.ColumnInfo{
			{Name: "id", DataType: "integer", OrdinalPosition: 1},
			{Name: "email", DataType: "text", OrdinalPosition: 2},
		},
		facts: map[string]source.ColumnFacts{
			"id":    {RowCount: 3, NullCount: 0, DistinctCount: 3},
			"email": {RowCount: 3, NullCount: 1, DistinctCount: 2},
		},
		samples: map[string][]string{
			"id":    {"1", "2", "3"},
			"email": {"a@x.com", "b@x.com"},
		},
	}
}

func TestProfileSourceWritesProfiles(t *testing.T) {
	repo := &mockProfileRepo{}
	conn := &fakeConnector{tables: []fakeTable{customersTable()}}
	p := newTestProfiler(repo, conn, nil)

	run := testRun()
	result, err := p.ProfileSource(context.Background(), run, testDescriptor())
	require.NoError(t, err)

	require.Len(t, result.Profiles, 1)
	assert.Equal(t, 0, result.TablesSkipped)
	assert.Empty(t, result.TableErrors)

	profile := result.Profiles[0]
	assert.Equal(t, int64(3), profile.RowCount)
	assert.Equal(t, 2, profile.ColumnCount)
	assert.Equal(t, run.ID, profile.ScanRunID)

	columns, err := repo.ListColumnProfiles(context.Background(), run.ID, "public", "customers")
	require.NoError(t, err)
	require.Len(t, columns, 2)

	byName := map[string]*models.ColumnProfile{}
	for _, c := range columns {
		byName[c.ColumnName] = c
	}
	assert.InDelta(t, 1.0/3.0, byName["email"].NullRate, 1e-9)
	assert.Equal(t, 0.0, byName["id"].NullRate)
	assert.NotEmpty(t, byName["email"].SampleHash)
	assert.NotEqual(t, byName["id"].SampleHash, byName["email"].SampleHash)
}

func TestProfileSourceHonorsAllowAndDenyLists(t *testing.T) {
	conn := &fakeConnector{tables: []fakeTable{
		customersTable(),
		{ref: source.TableRef{Schema: "audit", Name: "events"}},
		{ref: source.TableRef{Schema: "public", Name: "tmp_staging"}},
	}}
	p := newTestProfiler(&mockProfileRepo{}, conn, nil)

	descriptor := testDescriptor()
	descriptor.SchemaAllowList = []string{"public"}
	descriptor.TableDenyPatterns = []string{"tmp_%"}

	result, err := p.ProfileSource(context.Background(), testRun(), descriptor)
	require.NoError(t, err)
	assert.Len(t, result.Profiles, 1)
	assert.Equal(t, 2, result.TablesSkipped)
	assert.Empty(t, result.TableErrors)
}

func TestProfileSourceSkipsFailedTable(t *testing.T) {
	tables := make([]fakeTable, 0, 10)
	for i := 0; i < 10; i++ {
		table := customersTable()
		table.ref.Name = fmt.Sprintf("customers_%d", i)
		if i == 4 {
			table.failProfile = true
		}
		tables = append(tables, table)
	}
	conn := &fakeConnector{tables: tables}
	p := newTestProfiler(&mockProfileRepo{}, conn, nil)

	result, err := p.ProfileSource(context.Background(), testRun(), testDescriptor())
	require.NoError(t, err)

	assert.Len(t, result.Profiles, 9)
	require.Len(t, result.TableErrors, 1)
	assert.Contains(t, result.TableErrors, "public.customers_4")
}

func TestProfileSourceConnectionFailure(t *testing.T) {
	p := newTestProfiler(&mockProfileRepo{}, nil, errors.New("connection refused"))

	_, err := p.ProfileSource(context.Background(), testRun(), testDescriptor())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnreachable)
}

func TestProfileSourcePingFailure(t *testing.T) {
	conn := &fakeConnector{pingErr: errors.New("authentication failed")}
	p := newTestProfiler(&mockProfileRepo{}, conn, nil)

	_, err := p.ProfileSource(context.Background(), testRun(), testDescriptor())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnreachable)
}

func TestProfileSourceDoesNotLeakCredentials(t *testing.T) {
	p := newTestProfiler(&mockProfileRepo{}, nil, errors.New("connect failed: password=hunter2"))

	_, err := p.ProfileSource(context.Background(), testRun(), testDescriptor())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestNullRate(t *testing.T) {
	assert.Equal(t, 0.0, nullRate(0, 0))
	assert.Equal(t, 0.0, nullRate(5, 0))
	assert.Equal(t, 0.5, nullRate(1, 2))
	assert.Equal(t, 1.0, nullRate(4, 4))
}

func TestSampleHashOrderIndependent(t *testing.T) {
	a := SampleHash([]string{"x", "y", "z"})
	b := SampleHash([]string{"z", "x", "y"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestSampleHashDistinguishesSets(t *testing.T) {
	assert.NotEqual(t, SampleHash([]string{"a", "b"}), SampleHash([]string{"a", "c"}))
	// Joined with a separator, so value boundaries matter.
	assert.NotEqual(t, SampleHash([]string{"ab", "c"}), SampleHash([]string{"a", "bc"}))
}

func TestSampleHashEmpty(t *testing.T) {
	assert.Equal(t, "", SampleHash(nil))
	assert.Equal(t, "", SampleHash([]string{}))
}
