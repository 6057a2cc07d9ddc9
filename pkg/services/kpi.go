package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
)

// ResolutionStats accumulates counters while a run's rows flow through the
// rule engine. Safe for concurrent use by resolution workers.
type ResolutionStats struct {
	mu sync.Mutex

	rowsConsidered       int
	rowsResolved         int
	rowsUnresolved       int
	tablesSkippedNoRules int
	goldenIDs            map[string]struct{}
	missingByField       map[string]int
}

// NewResolutionStats creates an empty stats collector.
func NewResolutionStats() *ResolutionStats {
	return &ResolutionStats{
		goldenIDs:      make(map[string]struct{}),
		missingByField: make(map[string]int),
	}
}

// ObserveResolved records one row resolved to a golden id.
func (s *ResolutionStats) ObserveResolved(goldenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsConsidered++
	s.rowsResolved++
	s.goldenIDs[goldenID] = struct{}{}
}

// ObserveUnresolved records one row no rule matched.
func (s *ResolutionStats) ObserveUnresolved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsConsidered++
	s.rowsUnresolved++
}

// ObserveMissingKeys records which required fields were empty in one row.
func (s *ResolutionStats) ObserveMissingKeys(fields []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		s.missingByField[f]++
	}
}

// ObserveTableSkippedNoRules records one classified table left out of
// resolution because its object type had no active rules.
func (s *ResolutionStats) ObserveTableSkippedNoRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tablesSkippedNoRules++
}

// TablesSkippedNoRules returns how many tables resolution skipped for lack
// of rules.
func (s *ResolutionStats) TablesSkippedNoRules() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tablesSkippedNoRules
}

// RowsConsidered returns the number of rows fed into resolution.
func (s *ResolutionStats) RowsConsidered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsConsidered
}

// RowsResolved returns the number of rows that resolved to a golden id.
func (s *ResolutionStats) RowsResolved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsResolved
}

// RowsUnresolved returns the number of rows no rule matched.
func (s *ResolutionStats) RowsUnresolved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsUnresolved
}

// DistinctGoldenIDs returns how many distinct golden ids resolution produced.
func (s *ResolutionStats) DistinctGoldenIDs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.goldenIDs)
}

// DuplicateRate is (rows resolved - distinct golden ids) / rows resolved,
// 0 when nothing resolved.
func (s *ResolutionStats) DuplicateRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rowsResolved == 0 {
		return 0
	}
	return float64(s.rowsResolved-len(s.goldenIDs)) / float64(s.rowsResolved)
}

// MissingKeyRates returns per-field missing rates over all rows considered,
// 0 for every field when no rows were considered.
func (s *ResolutionStats) MissingKeyRates() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rates := make(map[string]float64, len(s.missingByField))
	for field, missing := range s.missingByField {
		if s.rowsConsidered == 0 {
			rates[field] = 0
			continue
		}
		rates[field] = float64(missing) / float64(s.rowsConsidered)
	}
	return rates
}

// Metrics renders the counters for a ScanRun's metrics blob.
func (s *ResolutionStats) Metrics() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"rows_considered":         s.rowsConsidered,
		"rows_resolved":           s.rowsResolved,
		"rows_unresolved":         s.rowsUnresolved,
		"distinct_golden_ids":     len(s.goldenIDs),
		"tables_skipped_no_rules": s.tablesSkippedNoRules,
	}
}

// KpiService computes run-scoped quality metrics and persists them as
// append-only facts.
type KpiService interface {
	ComputeAndStore(ctx context.Context, scanRunID uuid.UUID, stats *ResolutionStats) ([]*models.KpiFact, error)
}

type kpiService struct {
	kpiRepo    repositories.KpiRepository
	goldenRepo repositories.GoldenObjectRepository
	logger     *zap.Logger
}

// NewKpiService creates a new KpiService.
func NewKpiService(kpiRepo repositories.KpiRepository, goldenRepo repositories.GoldenObjectRepository, logger *zap.Logger) KpiService {
	return &kpiService{
		kpiRepo:    kpiRepo,
		goldenRepo: goldenRepo,
		logger:     logger.Named("kpi"),
	}
}

var _ KpiService = (*kpiService)(nil)

func (s *kpiService) ComputeAndStore(ctx context.Context, scanRunID uuid.UUID, stats *ResolutionStats) ([]*models.KpiFact, error) {
	sourcesPerObject, err := s.goldenRepo.AvgSourceSystemsPerObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sources per object: %w", err)
	}

	facts := []*models.KpiFact{
		{
			ScanRunID: scanRunID,
			Key:       models.KpiDuplicateRate,
			Value:     stats.DuplicateRate(),
			Details: map[string]any{
				"rows_resolved":       stats.RowsResolved(),
				"distinct_golden_ids": stats.DistinctGoldenIDs(),
			},
		},
		{
			ScanRunID: scanRunID,
			Key:       models.KpiSourcesPerObject,
			Value:     sourcesPerObject,
			// Averaged over the whole golden store as of this run, not
			// over the rows this run touched.
			Details: map[string]any{
				"scope": "all_golden_objects",
			},
		},
		{
			ScanRunID: scanRunID,
			Key:       models.KpiRowsUnresolved,
			Value:     float64(stats.RowsUnresolved()),
			Details: map[string]any{
				"rows_considered": stats.RowsConsidered(),
			},
		},
	}

	// One missing-key fact per required field, in field order so repeated
	// runs write facts deterministically.
	rates := stats.MissingKeyRates()
	fields := make([]string, 0, len(rates))
	for field := range rates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		facts = append(facts, &models.KpiFact{
			ScanRunID: scanRunID,
			Key:       models.KpiMissingKeyRate,
			Value:     rates[field],
			Details: map[string]any{
				"field":           field,
				"rows_considered": stats.RowsConsidered(),
			},
		})
	}

	for _, fact := range facts {
		if err := s.kpiRepo.Create(ctx, fact); err != nil {
			return nil, fmt.Errorf("failed to store kpi fact %s: %w", fact.Key, err)
		}
	}

	s.logger.Info("kpi facts computed",
		zap.String("scan_run_id", scanRunID.String()),
		zap.Int("fact_count", len(facts)))

	return facts, nil
}
