package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// mockRegistryService implements services.RegistryService for testing.
type mockRegistryService struct {
	sources     map[string]*models.SourceDescriptor
	registerErr error
	testErr     error
}

func newMockRegistryService() *mockRegistryService {
	return &mockRegistryService{sources: make(map[string]*models.SourceDescriptor)}
}

func (m *mockRegistryService) RegisterSource(_ context.Context, descriptor *models.SourceDescriptor) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	if _, ok := m.sources[descriptor.ID]; ok {
		return apperrors.ErrConflict
	}
	m.sources[descriptor.ID] = descriptor
	return nil
}

func (m *mockRegistryService) GetSource(_ context.Context, id string) (*models.SourceDescriptor, error) {
	s, ok := m.sources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (m *mockRegistryService) ListSources(_ context.Context) ([]*models.SourceDescriptor, error) {
	var out []*models.SourceDescriptor
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockRegistryService) TestSource(_ context.Context, id string) error {
	if _, ok := m.sources[id]; !ok {
		return apperrors.ErrNotFound
	}
	return m.testErr
}

// mockRuleService implements services.RuleService for testing.
type mockRuleService struct {
	rules     map[string]*models.IdentityRule
	createErr error
}

func newMockRuleService() *mockRuleService {
	return &mockRuleService{rules: make(map[string]*models.IdentityRule)}
}

func (m *mockRuleService) CreateRule(_ context.Context, rule *models.IdentityRule) error {
	if m.createErr != nil {
		return m.createErr
	}
	if len(rule.KeyFields) == 0 {
		return apperrors.ErrEmptyKeyFields
	}
	if _, ok := m.rules[rule.ID]; ok {
		return apperrors.ErrConflict
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *mockRuleService) GetRule(_ context.Context, id string) (*models.IdentityRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (m *mockRuleService) ListRules(_ context.Context) ([]*models.IdentityRule, error) {
	var out []*models.IdentityRule
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRuleService) SetRuleActive(_ context.Context, id string, active bool) error {
	r, ok := m.rules[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.Active = active
	return nil
}

// mockCoordinatorService implements services.CoordinatorService for testing.
type mockCoordinatorService struct {
	runs     map[uuid.UUID]*models.ScanRun
	startErr error
}

func newMockCoordinatorService() *mockCoordinatorService {
	return &mockCoordinatorService{runs: make(map[uuid.UUID]*models.ScanRun)}
}

func (m *mockCoordinatorService) StartRun(_ context.Context, sourceFilter string) (*models.ScanRun, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
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

func (m *mockCoordinatorService) ExecuteRun(_ context.Context, _ *models.ScanRun) error {
	return nil
}

func (m *mockCoordinatorService) GetRun(_ context.Context, id uuid.UUID) (*models.ScanRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return run, nil
}

func (m *mockCoordinatorService) ListRuns(_ context.Context, limit, offset int) ([]*models.ScanRun, error) {
	var out []*models.ScanRun
	for _, run := range m.runs {
		out = append(out, run)
	}
	return out, nil
}

// mockGoldenReader implements repositories.GoldenObjectRepository for testing.
type mockGoldenReader struct {
	objects map[string]*models.GoldenObject
	links   map[string][]*models.SourceLink
}

func newMockGoldenReader() *mockGoldenReader {
	return &mockGoldenReader{
		objects: make(map[string]*models.GoldenObject),
		links:   make(map[string][]*models.SourceLink),
	}
}

func (m *mockGoldenReader) UpsertObject(_ context.Context, o *models.GoldenObject) error {
	m.objects[o.GoldenID] = o
	return nil
}

func (m *mockGoldenReader) GetObject(_ context.Context, goldenID string) (*models.GoldenObject, error) {
	o, ok := m.objects[goldenID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return o, nil
}

func (m *mockGoldenReader) ListObjects(_ context.Context, objectType string, limit, offset int) ([]*models.GoldenObject, int, error) {
	var out []*models.GoldenObject
	for _, o := range m.objects {
		if objectType == "" || o.ObjectType == objectType {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockGoldenReader) UpsertLink(_ context.Context, l *models.SourceLink) error {
	m.links[l.GoldenID] = append(m.links[l.GoldenID], l)
	return nil
}

func (m *mockGoldenReader) ListLinks(_ context.Context, goldenID string) ([]*models.SourceLink, error) {
	return m.links[goldenID], nil
}

func (m *mockGoldenReader) AvgSourceSystemsPerObject(_ context.Context) (float64, error) {
	return 0, nil
}

// mockKpiReader implements repositories.KpiRepository for testing.
type mockKpiReader struct {
	facts []*models.KpiFact
}

func (m *mockKpiReader) Create(_ context.Context, f *models.KpiFact) error {
	m.facts = append(m.facts, f)
	return nil
}

func (m *mockKpiReader) ListByRun(_ context.Context, scanRunID uuid.UUID) ([]*models.KpiFact, error) {
	var out []*models.KpiFact
	for _, f := range m.facts {
		if f.ScanRunID == scanRunID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockKpiReader) List(_ context.Context, scanRunID *uuid.UUID, limit, offset int) ([]*models.KpiFact, error) {
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
