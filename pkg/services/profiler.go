package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/config"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/logging"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/retry"
)

// sampleSeparator joins sample values before hashing. The unit separator
// cannot appear inside a value boundary ambiguity, so the hash is stable
// for a given sample set.
const sampleSeparator = "\x1f"

// SourceProfileResult summarizes profiling of one source within a run.
type SourceProfileResult struct {
	Profiles      []*models.TableProfile
	TablesSkipped int
	TableErrors   map[string]string // "schema.table" -> error message
}

// ProfilerService connects to one registered source, enumerates its tables
// and writes table and column profiles for a scan run. Tables within one
// source are profiled sequentially to bound connection usage against that
// source.
type ProfilerService interface {
	ProfileSource(ctx context.Context, run *models.ScanRun, descriptor *models.SourceDescriptor) (*SourceProfileResult, error)
}

type profilerService struct {
	profileRepo repositories.ProfileRepository
	cfg         config.ScannerConfig
	logger      *zap.Logger

	// openConnector and connectRetry are swapped in tests
	openConnector func(ctx context.Context, sourceType string, connection map[string]any) (source.Connector, error)
	connectRetry  *retry.Config
}

// NewProfilerService creates a new ProfilerService.
func NewProfilerService(profileRepo repositories.ProfileRepository, cfg config.ScannerConfig, logger *zap.Logger) ProfilerService {
	return &profilerService{
		profileRepo:   profileRepo,
		cfg:           cfg,
		logger:        logger.Named("profiler"),
		openConnector: source.Open,
		connectRetry:  retry.DefaultConfig(),
	}
}

var _ ProfilerService = (*profilerService)(nil)

// ProfileSource profiles every allowed table of one source. A per-table
// failure is recorded in the result and the table skipped; only a
// connection-level failure aborts the source, reported as
// apperrors.ErrSourceUnreachable so the caller can degrade the source
// without failing the run.
func (s *profilerService) ProfileSource(ctx context.Context, run *models.ScanRun, descriptor *models.SourceDescriptor) (*SourceProfileResult, error) {
	logger := s.logger.With(
		zap.String("scan_run_id", run.ID.String()),
		zap.String("source_id", descriptor.ID))

	conn, err := retry.DoWithResult(ctx, s.connectRetry, func() (source.Connector, error) {
		c, err := s.openConnector(ctx, descriptor.SourceType, descriptor.Connection)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}
	defer func() { _ = conn.Close() }()

	tables, err := conn.EnumerateTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}

	result := &SourceProfileResult{TableErrors: make(map[string]string)}

	for _, table := range tables {
		if !descriptor.SchemaAllowed(table.Schema) || descriptor.TableDenied(table.Name) {
			result.TablesSkipped++
			continue
		}

		profile, err := s.profileTable(ctx, conn, run, descriptor, table)
		if err != nil {
			key := table.Schema + "." + table.Name
			result.TableErrors[key] = err.Error()
			logger.Warn("failed to profile table, skipping",
				zap.String("schema", table.Schema),
				zap.String("table", table.Name),
				zap.Error(err))
			continue
		}

		result.Profiles = append(result.Profiles, profile)
	}

	logger.Info("source profiled",
		zap.Int("tables_profiled", len(result.Profiles)),
		zap.Int("tables_skipped", result.TablesSkipped),
		zap.Int("table_errors", len(result.TableErrors)))

	return result, nil
}

func (s *profilerService) profileTable(ctx context.Context, conn source.Connector, run *models.ScanRun, descriptor *models.SourceDescriptor, table source.TableRef) (*models.TableProfile, error) {
	rowCount, err := conn.CountRows(ctx, table.Schema, table.Name)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	columns, err := conn.Columns(ctx, table.Schema, table.Name)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	columnProfiles := make([]*models.ColumnProfile, 0, len(columns))
	for _, col := range columns {
		facts, err := conn.ColumnFacts(ctx, table.Schema, table.Name, col.Name)
		if err != nil {
			return nil, fmt.Errorf("column facts for %s: %w", col.Name, err)
		}

		samples, err := conn.SampleValues(ctx, table.Schema, table.Name, col.Name, s.cfg.SampleLimit)
		if err != nil {
			return nil, fmt.Errorf("sample values for %s: %w", col.Name, err)
		}

		columnProfiles = append(columnProfiles, &models.ColumnProfile{
			ScanRunID:       run.ID,
			SourceID:        descriptor.ID,
			SchemaName:      table.Schema,
			TableName:       table.Name,
			ColumnName:      col.Name,
			DataType:        col.DataType,
			OrdinalPosition: col.OrdinalPosition,
			RowCount:        facts.RowCount,
			NullCount:       facts.NullCount,
			NullRate:        nullRate(facts.NullCount, facts.RowCount),
			DistinctCount:   facts.DistinctCount,
			SampleHash:      SampleHash(samples),
		})
	}

	profile := &models.TableProfile{
		ScanRunID:   run.ID,
		SourceID:    descriptor.ID,
		SchemaName:  table.Schema,
		TableName:   table.Name,
		RowCount:    rowCount,
		ColumnCount: len(columns),
		ProfiledAt:  time.Now(),
	}

	if err := s.profileRepo.CreateTableProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("persist table profile: %w", err)
	}
	if err := s.profileRepo.CreateColumnProfiles(ctx, columnProfiles); err != nil {
		return nil, fmt.Errorf("persist column profiles: %w", err)
	}

	return profile, nil
}

// nullRate is null_count / row_count, defined as 0 for an empty table.
func nullRate(nullCount, rowCount int64) float64 {
	if rowCount == 0 {
		return 0
	}
	return float64(nullCount) / float64(rowCount)
}

// SampleHash digests a bounded value sample into a short stable
// fingerprint. Values are sorted before hashing so the hash depends only
// on the sample set, not on retrieval order: unchanged data across runs
// reproduces the same hash.
func SampleHash(values []string) string {
	if len(values) == 0 {
		return ""
	}

	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, sampleSeparator)))
	return hex.EncodeToString(sum[:8])
}
