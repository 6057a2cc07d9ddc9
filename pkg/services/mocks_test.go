package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// ----- repositories -----

type mockSourceRepo struct {
	mu       sync.Mutex
	sources  []*models.SourceDescriptor
	outcomes map[string]string // source id -> last recorded status
	listErr  error
}

func newMockSourceRepo(sources ...*models.SourceDescriptor) *mockSourceRepo {
	return &mockSourceRepo{sources: sources, outcomes: make(map[string]string)}
}

func (m *mockSourceRepo) Create(_ context.Context, s *models.SourceDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, s)
	return nil
}

func (m *mockSourceRepo) GetByID(_ context.Context, id string) (*models.SourceDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockSourceRepo) List(_ context.Context) ([]*models.SourceDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SourceDescriptor(nil), m.sources...), nil
}

func (m *mockSourceRepo) ListActive(_ context.Context) ([]*models.SourceDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var active []*models.SourceDescriptor
	for _, s := range m.sources {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (m *mockSourceRepo) RecordScanOutcome(_ context.Context, id string, status string, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = status
	return nil
}

func (m *mockSourceRepo) outcome(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[id]
}

type mockScanRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.ScanRun
}

func newMockScanRunRepo() *mockScanRunRepo {
	return &mockScanRunRepo{runs: make(map[uuid.UUID]*models.ScanRun)}
}

func (m *mockScanRunRepo) Create(_ context.Context, sourceFilter string) (*models.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &models.ScanRun{
		ID:           uuid.New(),
		SourceFilter: sourceFilter,
		Status:       models.ScanRunPending,
		Metrics:      map[string]any{},
		StartedAt:    time.Now(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *mockScanRunRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *mockScanRunRepo) List(_ context.Context, limit, offset int) ([]*models.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []*models.ScanRun
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset > len(runs) {
		offset = len(runs)
	}
	runs = runs[offset:]
	if limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *mockScanRunRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.Status != models.ScanRunPending {
		return apperrors.ErrRunAlreadyDone
	}
	run.Status = models.ScanRunRunning
	return nil
}

func (m *mockScanRunRepo) Finalize(_ context.Context, id uuid.UUID, status models.ScanRunStatus, metrics map[string]any, runErr *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if run.Status.IsTerminal() {
		return apperrors.ErrRunAlreadyDone
	}
	now := time.Now()
	run.Status = status
	run.Metrics = metrics
	run.EndedAt = &now
	run.Error = runErr
	return nil
}

type mockProfileRepo struct {
	mu             sync.Mutex
	tableProfiles  []*models.TableProfile
	columnProfiles []*models.ColumnProfile
	tableErr       error
}

func (m *mockProfileRepo) CreateTableProfile(_ context.Context, p *models.TableProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tableErr != nil {
		return m.tableErr
	}
	for _, existing := range m.tableProfiles {
		if existing.ScanRunID == p.ScanRunID && existing.SourceID == p.SourceID &&
			existing.SchemaName == p.SchemaName && existing.TableName == p.TableName {
			return apperrors.ErrConflict
		}
	}
	p.ID = uuid.New()
	m.tableProfiles = append(m.tableProfiles, p)
	return nil
}

func (m *mockProfileRepo) CreateColumnProfiles(_ context.Context, profiles []*models.ColumnProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range profiles {
		p.ID = uuid.New()
	}
	m.columnProfiles = append(m.columnProfiles, profiles...)
	return nil
}

func (m *mockProfileRepo) ListTableProfiles(_ context.Context, scanRunID uuid.UUID) ([]*models.TableProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TableProfile
	for _, p := range m.tableProfiles {
		if p.ScanRunID == scanRunID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProfileRepo) ListColumnProfiles(_ context.Context, scanRunID uuid.UUID, schemaName, tableName string) ([]*models.ColumnProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ColumnProfile
	for _, p := range m.columnProfiles {
		if p.ScanRunID == scanRunID && p.SchemaName == schemaName && p.TableName == tableName {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCandidateRepo struct {
	mu         sync.Mutex
	candidates map[string]*models.ObjectCandidate
	upsertErr  error
}

func newMockCandidateRepo() *mockCandidateRepo {
	return &mockCandidateRepo{candidates: make(map[string]*models.ObjectCandidate)}
}

func candidateKey(sourceID, schema, table string) string {
	return sourceID + "|" + schema + "|" + table
}

func (m *mockCandidateRepo) Upsert(_ context.Context, c *models.ObjectCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	key := candidateKey(c.SourceID, c.SchemaName, c.TableName)
	now := time.Now()
	if existing, ok := m.candidates[key]; ok {
		existing.GuessType = c.GuessType
		existing.RowCount = c.RowCount
		existing.LastSeenAt = now
		*c = *existing
		return nil
	}
	c.ID = uuid.New()
	c.FirstSeenAt = now
	c.LastSeenAt = now
	stored := *c
	m.candidates[key] = &stored
	return nil
}

func (m *mockCandidateRepo) ListBySource(_ context.Context, sourceID string) ([]*models.ObjectCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ObjectCandidate
	for _, c := range m.candidates {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCandidateRepo) ListByType(_ context.Context, guessType string) ([]*models.ObjectCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ObjectCandidate
	for _, c := range m.candidates {
		if c.GuessType == guessType {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockRuleRepo struct {
	mu    sync.Mutex
	rules []*models.IdentityRule
}

func (m *mockRuleRepo) Create(_ context.Context, r *models.IdentityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
	return nil
}

func (m *mockRuleRepo) GetByID(_ context.Context, id string) (*models.IdentityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRuleRepo) List(_ context.Context) ([]*models.IdentityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.IdentityRule(nil), m.rules...), nil
}

func (m *mockRuleRepo) ListActive(_ context.Context, objectType, sourceSystem string) ([]*models.IdentityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IdentityRule
	for _, r := range m.rules {
		if r.Active && r.ObjectType == objectType && r.SourceSystem == sourceSystem {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			r.Active = active
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type mockGoldenRepo struct {
	mu      sync.Mutex
	objects map[string]*models.GoldenObject
	links   map[string]*models.SourceLink

	// objectErrs is consumed one error per UpsertObject call, letting a
	// test inject a transient conflict.
	objectErrs []error
}

func newMockGoldenRepo() *mockGoldenRepo {
	return &mockGoldenRepo{
		objects: make(map[string]*models.GoldenObject),
		links:   make(map[string]*models.SourceLink),
	}
}

func linkKey(system, table, pk string) string {
	return system + "|" + table + "|" + pk
}

func (m *mockGoldenRepo) UpsertObject(_ context.Context, o *models.GoldenObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.objectErrs) > 0 {
		err := m.objectErrs[0]
		m.objectErrs = m.objectErrs[1:]
		if err != nil {
			return err
		}
	}
	now := time.Now()
	if existing, ok := m.objects[o.GoldenID]; ok {
		for k, v := range o.Attributes {
			existing.Attributes[k] = v
		}
		existing.UpdatedAt = now
		o.CreatedAt = existing.CreatedAt
		o.UpdatedAt = now
		return nil
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	stored := *o
	stored.Attributes = make(map[string]any, len(o.Attributes))
	for k, v := range o.Attributes {
		stored.Attributes[k] = v
	}
	m.objects[o.GoldenID] = &stored
	return nil
}

func (m *mockGoldenRepo) GetObject(_ context.Context, goldenID string) (*models.GoldenObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[goldenID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return o, nil
}

func (m *mockGoldenRepo) ListObjects(_ context.Context, objectType string, limit, offset int) ([]*models.GoldenObject, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GoldenObject
	for _, o := range m.objects {
		if objectType == "" || o.ObjectType == objectType {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoldenID < out[j].GoldenID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockGoldenRepo) UpsertLink(_ context.Context, l *models.SourceLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey(l.SourceSystem, l.SourceTable, l.SourcePK)
	now := time.Now()
	if existing, ok := m.links[key]; ok {
		existing.GoldenID = l.GoldenID
		existing.MatchRule = l.MatchRule
		existing.Confidence = l.Confidence
		existing.Explanation = l.Explanation
		existing.UpdatedAt = now
		*l = *existing
		return nil
	}
	l.ID = uuid.New()
	l.CreatedAt = now
	l.UpdatedAt = now
	stored := *l
	m.links[key] = &stored
	return nil
}

func (m *mockGoldenRepo) ListLinks(_ context.Context, goldenID string) ([]*models.SourceLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SourceLink
	for _, l := range m.links {
		if l.GoldenID == goldenID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockGoldenRepo) AvgSourceSystemsPerObject(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	systems := make(map[string]map[string]struct{})
	for _, l := range m.links {
		if systems[l.GoldenID] == nil {
			systems[l.GoldenID] = make(map[string]struct{})
		}
		systems[l.GoldenID][l.SourceSystem] = struct{}{}
	}
	if len(systems) == 0 {
		return 0, nil
	}
	var total int
	for _, s := range systems {
		total += len(s)
	}
	return float64(total) / float64(len(systems)), nil
}

type mockKpiRepo struct {
	mu        sync.Mutex
	facts     []*models.KpiFact
	createErr error
}

func (m *mockKpiRepo) Create(_ context.Context, f *models.KpiFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	f.ID = uuid.New()
	if f.ComputedAt.IsZero() {
		f.ComputedAt = time.Now()
	}
	m.facts = append(m.facts, f)
	return nil
}

func (m *mockKpiRepo) ListByRun(_ context.Context, scanRunID uuid.UUID) ([]*models.KpiFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.KpiFact
	for _, f := range m.facts {
		if f.ScanRunID == scanRunID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockKpiRepo) List(_ context.Context, scanRunID *uuid.UUID, limit, offset int) ([]*models.KpiFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.KpiFact
	for _, f := range m.facts {
		if scanRunID == nil || f.ScanRunID == *scanRunID {
			out = append(out, f)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ----- source connector -----

// fakeTable scripts one table of a fake source.
type fakeTable struct {
	ref      source.TableRef
	rowCount int64
	columns  []source.ColumnInfo
	facts    map[string]source.ColumnFacts
	samples  map[string][]string
	pkColumn string
	rows     []map[string]any

	// failProfile makes every per-table stats query fail
	failProfile bool
}

type fakeConnector struct {
	tables  []fakeTable
	pingErr error
}

var _ source.Connector = (*fakeConnector)(nil)

func (c *fakeConnector) table(schema, table string) (*fakeTable, error) {
	for i := range c.tables {
		if c.tables[i].ref.Schema == schema && c.tables[i].ref.Name == table {
			return &c.tables[i], nil
		}
	}
	return nil, fmt.Errorf("unknown table %s.%s", schema, table)
}

func (c *fakeConnector) Ping(context.Context) error { return c.pingErr }

func (c *fakeConnector) EnumerateTables(context.Context) ([]source.TableRef, error) {
	refs := make([]source.TableRef, 0, len(c.tables))
	for _, t := range c.tables {
		refs = append(refs, t.ref)
	}
	return refs, nil
}

func (c *fakeConnector) Columns(_ context.Context, schema, table string) ([]source.ColumnInfo, error) {
	t, err := c.table(schema, table)
	if err != nil {
		return nil, err
	}
	if t.failProfile {
		return nil, fmt.Errorf("permission denied for %s.%s", schema, table)
	}
	return t.columns, nil
}

func (c *fakeConnector) CountRows(_ context.Context, schema, table string) (int64, error) {
	t, err := c.table(schema, table)
	if err != nil {
		return 0, err
	}
	if t.failProfile {
		return 0, fmt.Errorf("permission denied for %s.%s", schema, table)
	}
	return t.rowCount, nil
}

func (c *fakeConnector) ColumnFacts(_ context.Context, schema, table, column string) (source.ColumnFacts, error) {
	t, err := c.table(schema, table)
	if err != nil {
		return source.ColumnFacts{}, err
	}
	return t.facts[column], nil
}

func (c *fakeConnector) SampleValues(_ context.Context, schema, table, column string, limit int) ([]string, error) {
	t, err := c.table(schema, table)
	if err != nil {
		return nil, err
	}
	samples := t.samples[column]
	if len(samples) > limit {
		samples = samples[:limit]
	}
	return samples, nil
}

func (c *fakeConnector) PrimaryKeyColumn(_ context.Context, schema, table string) (string, error) {
	t, err := c.table(schema, table)
	if err != nil {
		return "", err
	}
	return t.pkColumn, nil
}

func (c *fakeConnector) FetchRows(_ context.Context, schema, table, _ string, limit int) ([]map[string]any, error) {
	t, err := c.table(schema, table)
	if err != nil {
		return nil, err
	}
	rows := t.rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (c *fakeConnector) Close() error { return nil }

func staticConnector(conn source.Connector, err error) func(context.Context, string, map[string]any) (source.Connector, error) {
	return func(context.Context, string, map[string]any) (source.Connector, error) {
		return conn, err
	}
}
