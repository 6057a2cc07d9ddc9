package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/config"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/services/workqueue"
)

// CoordinatorService owns the scan run lifecycle: it creates the run,
// fans profiling out over the active sources, pushes profiled tables
// through classification and identity resolution, computes KPIs, and
// drives the run to exactly one terminal state. Individual source or table
// failures degrade the run's coverage; only a metadata-store fault fails
// the run itself.
type CoordinatorService interface {
	// StartRun creates a PENDING run and executes it in the background.
	StartRun(ctx context.Context, sourceFilter string) (*models.ScanRun, error)

	// ExecuteRun runs the pipeline for an existing PENDING run to completion.
	ExecuteRun(ctx context.Context, run *models.ScanRun) error

	// GetRun returns one run by id.
	GetRun(ctx context.Context, id uuid.UUID) (*models.ScanRun, error)

	// ListRuns returns recent runs, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*models.ScanRun, error)
}

type coordinatorService struct {
	runRepo    repositories.ScanRunRepository
	sourceRepo repositories.SourceRepository
	profiler   ProfilerService
	classifier ClassifierService
	resolver   ResolverService
	kpi        KpiService
	cfg        *config.Config
	logger     *zap.Logger
}

// NewCoordinatorService creates a new CoordinatorService.
func NewCoordinatorService(
	runRepo repositories.ScanRunRepository,
	sourceRepo repositories.SourceRepository,
	profiler ProfilerService,
	classifier ClassifierService,
	resolver ResolverService,
	kpi KpiService,
	cfg *config.Config,
	logger *zap.Logger,
) CoordinatorService {
	return &coordinatorService{
		runRepo:    runRepo,
		sourceRepo: sourceRepo,
		profiler:   profiler,
		classifier: classifier,
		resolver:   resolver,
		kpi:        kpi,
		cfg:        cfg,
		logger:     logger.Named("coordinator"),
	}
}

var _ CoordinatorService = (*coordinatorService)(nil)

func (s *coordinatorService) StartRun(ctx context.Context, sourceFilter string) (*models.ScanRun, error) {
	run, err := s.runRepo.Create(ctx, sourceFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan run: %w", err)
	}

	go func() {
		// The run outlives the request that started it.
		if err := s.ExecuteRun(context.Background(), run); err != nil {
			s.logger.Error("scan run execution failed",
				zap.String("scan_run_id", run.ID.String()),
				zap.Error(err))
		}
	}()

	return run, nil
}

func (s *coordinatorService) GetRun(ctx context.Context, id uuid.UUID) (*models.ScanRun, error) {
	return s.runRepo.GetByID(ctx, id)
}

func (s *coordinatorService) ListRuns(ctx context.Context, limit, offset int) ([]*models.ScanRun, error) {
	return s.runRepo.List(ctx, limit, offset)
}

// runProgress tracks per-run counters shared by the source tasks.
type runProgress struct {
	mu             sync.Mutex
	sourcesOK      int
	sourcesFailed  int
	tablesProfiled int
	tableErrors    int
	fatal          error
}

func (p *runProgress) recordSource(profiled, tableErrors int, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if failed {
		p.sourcesFailed++
	} else {
		p.sourcesOK++
	}
	p.tablesProfiled += profiled
	p.tableErrors += tableErrors
}

func (p *runProgress) recordFatal(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fatal == nil {
		p.fatal = err
	}
}

func (p *runProgress) fatalErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

func (p *runProgress) counts() (ok, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sourcesOK, p.sourcesFailed
}

func (s *coordinatorService) ExecuteRun(ctx context.Context, run *models.ScanRun) error {
	logger := s.logger.With(zap.String("scan_run_id", run.ID.String()))

	if err := s.runRepo.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to start scan run: %w", err)
	}
	logger.Info("scan run started", zap.String("source_filter", run.SourceFilter))

	sources, err := s.sourceRepo.ListActive(ctx)
	if err != nil {
		return s.finalize(ctx, run, nil, nil, fmt.Errorf("failed to list active sources: %w", err))
	}

	if run.SourceFilter != "" {
		filtered := sources[:0]
		for _, src := range sources {
			if src.ID == run.SourceFilter {
				filtered = append(filtered, src)
			}
		}
		sources = filtered
	}

	stats := NewResolutionStats()
	progress := &runProgress{}

	// Source tasks are not retried within a run: scan work is not
	// idempotent mid-run, and a failed source only degrades this run's
	// coverage. Reconnection retries live inside the profiler and resolver.
	queue := workqueue.New(s.logger,
		workqueue.WithStrategy(workqueue.NewThrottledSourceStrategy(s.cfg.Scanner.MaxConcurrentSources)),
		workqueue.WithRetryConfig(workqueue.RetryConfig{MaxRetries: 0}))

	for _, descriptor := range sources {
		queue.Enqueue(&sourceScanTask{
			BaseTask:    workqueue.NewBaseTask("scan-source:"+descriptor.ID, true),
			coordinator: s,
			run:         run,
			descriptor:  descriptor,
			stats:       stats,
			progress:    progress,
		})
	}

	if err := queue.Wait(ctx); err != nil && !queue.IsComplete() {
		// Context cancelled mid-run; the run record stays accurate.
		return s.finalize(ctx, run, stats, progress, fmt.Errorf("scan run interrupted: %w", err))
	}

	if fatal := progress.fatalErr(); fatal != nil {
		return s.finalize(ctx, run, stats, progress, fatal)
	}

	// An unreachable source only degrades the run while siblings cover for
	// it; with a single registered source there is nothing left to cover,
	// so the run itself failed.
	if ok, failed := progress.counts(); len(sources) == 1 && failed == 1 && ok == 0 {
		return s.finalize(ctx, run, stats, progress,
			fmt.Errorf("the run's only source could not be scanned: %w", apperrors.ErrSourceUnreachable))
	}

	if _, err := s.kpi.ComputeAndStore(ctx, run.ID, stats); err != nil {
		return s.finalize(ctx, run, stats, progress, err)
	}

	return s.finalize(ctx, run, stats, progress, nil)
}

// finalize drives the run to its terminal state exactly once.
func (s *coordinatorService) finalize(ctx context.Context, run *models.ScanRun, stats *ResolutionStats, progress *runProgress, runErr error) error {
	metrics := map[string]any{}
	if stats != nil {
		metrics = stats.Metrics()
	}
	if progress != nil {
		progress.mu.Lock()
		metrics["sources_ok"] = progress.sourcesOK
		metrics["sources_failed"] = progress.sourcesFailed
		metrics["tables_profiled"] = progress.tablesProfiled
		metrics["table_errors"] = progress.tableErrors
		progress.mu.Unlock()
	}

	status := models.ScanRunSuccess
	var errMsg *string
	if runErr != nil {
		status = models.ScanRunFailed
		msg := runErr.Error()
		errMsg = &msg
	}

	if err := s.runRepo.Finalize(ctx, run.ID, status, metrics, errMsg); err != nil {
		if runErr != nil {
			return fmt.Errorf("failed to finalize scan run after %v: %w", runErr, err)
		}
		return fmt.Errorf("failed to finalize scan run: %w", err)
	}

	s.logger.Info("scan run finalized",
		zap.String("scan_run_id", run.ID.String()),
		zap.String("status", string(status)))

	return runErr
}

// sourceScanTask is one source's share of a scan run: profile, classify,
// resolve. It owns the run's only connections to that source, so it is a
// source task for throttling purposes.
type sourceScanTask struct {
	workqueue.BaseTask
	coordinator *coordinatorService
	run         *models.ScanRun
	descriptor  *models.SourceDescriptor
	stats       *ResolutionStats
	progress    *runProgress
}

var _ workqueue.Task = (*sourceScanTask)(nil)

func (t *sourceScanTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	err := t.coordinator.scanSource(ctx, t.run, t.descriptor, t.stats, t.progress)
	if err == nil {
		return nil
	}

	if errors.Is(err, apperrors.ErrSourceUnreachable) {
		// Partial failure: already recorded on the source and in the
		// progress counters. The run proceeds without this source.
		return err
	}

	// Anything else means the metadata store itself failed.
	t.progress.recordFatal(err)
	return err
}

func (s *coordinatorService) scanSource(ctx context.Context, run *models.ScanRun, descriptor *models.SourceDescriptor, stats *ResolutionStats, progress *runProgress) error {
	result, err := s.profiler.ProfileSource(ctx, run, descriptor)
	if err != nil {
		s.recordSourceFailure(ctx, descriptor.ID, err)
		progress.recordSource(0, 0, true)
		return err
	}

	candidates := make([]*models.ObjectCandidate, 0, len(result.Profiles))
	for _, profile := range result.Profiles {
		candidate, err := s.classifier.RecordCandidate(ctx, profile)
		if err != nil {
			return err
		}
		candidates = append(candidates, candidate)
	}

	if err := s.resolver.ResolveSource(ctx, descriptor, candidates, stats); err != nil {
		if errors.Is(err, apperrors.ErrSourceUnreachable) {
			s.recordSourceFailure(ctx, descriptor.ID, err)
			progress.recordSource(len(result.Profiles), len(result.TableErrors), true)
		}
		return err
	}

	if err := s.sourceRepo.RecordScanOutcome(ctx, descriptor.ID, models.SourceScanStatusOK, nil); err != nil {
		return err
	}

	progress.recordSource(len(result.Profiles), len(result.TableErrors), false)
	return nil
}

func (s *coordinatorService) recordSourceFailure(ctx context.Context, sourceID string, srcErr error) {
	msg := srcErr.Error()
	if err := s.sourceRepo.RecordScanOutcome(ctx, sourceID, models.SourceScanStatusFailed, &msg); err != nil {
		s.logger.Warn("failed to record source scan failure",
			zap.String("source_id", sourceID),
			zap.Error(err))
	}
}
