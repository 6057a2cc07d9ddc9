package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/config"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/identity"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/logging"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/retry"
)

// ResolverService runs identity resolution over the classified tables of
// one source: it loads the active rule set per candidate, fetches the
// table's rows, derives golden identifiers, and hands resolved rows to the
// golden object store. Rows are independent, so they are resolved by a
// bounded worker pool.
type ResolverService interface {
	ResolveSource(ctx context.Context, descriptor *models.SourceDescriptor, candidates []*models.ObjectCandidate, stats *ResolutionStats) error
}

type resolverService struct {
	ruleRepo repositories.RuleRepository
	store    StoreService
	cfg      config.ResolverConfig
	logger   *zap.Logger

	// openConnector and connectRetry are swapped in tests
	openConnector func(ctx context.Context, sourceType string, connection map[string]any) (source.Connector, error)
	connectRetry  *retry.Config
}

// NewResolverService creates a new ResolverService.
func NewResolverService(ruleRepo repositories.RuleRepository, store StoreService, cfg config.ResolverConfig, logger *zap.Logger) ResolverService {
	return &resolverService{
		ruleRepo:      ruleRepo,
		store:         store,
		cfg:           cfg,
		logger:        logger.Named("resolver"),
		openConnector: source.Open,
		connectRetry:  retry.DefaultConfig(),
	}
}

var _ ResolverService = (*resolverService)(nil)

func (s *resolverService) ResolveSource(ctx context.Context, descriptor *models.SourceDescriptor, candidates []*models.ObjectCandidate, stats *ResolutionStats) error {
	// Pick a strategy per candidate before touching the source. Candidates
	// with no usable object type are skipped; candidates with no active
	// rules fall back to the exact-key scheme only when configured to.
	var matchable []*models.ObjectCandidate
	ruleSets := make(map[string]*identity.RuleSet)
	strategies := make(map[*models.ObjectCandidate]identity.IdentifierStrategy)
	for _, candidate := range candidates {
		if candidate.GuessType == models.ObjectTypeUnknown {
			continue
		}

		ruleSet, ok := ruleSets[candidate.GuessType]
		if !ok {
			rules, err := s.ruleRepo.ListActive(ctx, candidate.GuessType, descriptor.ID)
			if err != nil {
				return fmt.Errorf("failed to load identity rules: %w", err)
			}
			ruleSet = identity.NewRuleSet(candidate.GuessType, descriptor.ID, deref(rules))
			ruleSets[candidate.GuessType] = ruleSet
		}

		if len(ruleSet.Rules()) == 0 {
			if !s.cfg.ExactKeyFallback {
				stats.ObserveTableSkippedNoRules()
				s.logger.Warn("no active rules for object type, skipping table",
					zap.String("source_id", descriptor.ID),
					zap.String("schema", candidate.SchemaName),
					zap.String("table", candidate.TableName),
					zap.String("object_type", candidate.GuessType))
				continue
			}
			strategies[candidate] = &identity.ExactKeyStrategy{
				SourceSystem: descriptor.ID,
				ObjectType:   candidate.GuessType,
			}
		} else {
			strategies[candidate] = identity.NewRuleEngineStrategy(ruleSet)
		}
		matchable = append(matchable, candidate)
	}

	if len(matchable) == 0 {
		return nil
	}

	conn, err := retry.DoWithResult(ctx, s.connectRetry, func() (source.Connector, error) {
		return s.openConnector(ctx, descriptor.SourceType, descriptor.Connection)
	})
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}
	defer func() { _ = conn.Close() }()

	for _, candidate := range matchable {
		if err := s.resolveCandidate(ctx, conn, descriptor, candidate, strategies[candidate], stats); err != nil {
			return err
		}
	}

	return nil
}

func (s *resolverService) resolveCandidate(ctx context.Context, conn source.Connector, descriptor *models.SourceDescriptor, candidate *models.ObjectCandidate, strategy identity.IdentifierStrategy, stats *ResolutionStats) error {
	logger := s.logger.With(
		zap.String("source_id", descriptor.ID),
		zap.String("schema", candidate.SchemaName),
		zap.String("table", candidate.TableName),
		zap.String("object_type", candidate.GuessType))

	pkColumn, err := conn.PrimaryKeyColumn(ctx, candidate.SchemaName, candidate.TableName)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}
	if pkColumn == "" {
		logger.Warn("table has no single-column primary key, skipping resolution")
		return nil
	}

	rows, err := conn.FetchRows(ctx, candidate.SchemaName, candidate.TableName, pkColumn, s.cfg.RowLimit)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}

	sourceTable := candidate.SchemaName + "." + candidate.TableName

	jobs := make(chan map[string]any)
	var wg sync.WaitGroup
	var storeErr error
	var storeMu sync.Mutex

	workers := s.cfg.Workers
	if workers > len(rows) {
		workers = len(rows)
	}
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				if err := s.resolveRow(ctx, strategy, descriptor, candidate, sourceTable, pkColumn, row, stats); err != nil {
					storeMu.Lock()
					if storeErr == nil {
						storeErr = err
					}
					storeMu.Unlock()
				}
			}
		}()
	}

	for _, row := range rows {
		jobs <- row
	}
	close(jobs)
	wg.Wait()

	if storeErr != nil {
		return storeErr
	}

	logger.Info("table resolved",
		zap.Int("rows", len(rows)),
		zap.Int("run_resolved", stats.RowsResolved()),
		zap.Int("run_unresolved", stats.RowsUnresolved()))

	return nil
}

// resolveRow derives a golden id for one source row and applies it to the
// store. An unmatched row is a counter, not an error.
func (s *resolverService) resolveRow(ctx context.Context, strategy identity.IdentifierStrategy, descriptor *models.SourceDescriptor, candidate *models.ObjectCandidate, sourceTable, pkColumn string, row map[string]any, stats *ResolutionStats) error {
	stats.ObserveMissingKeys(strategy.MissingKeys(row))

	sourcePK := fmt.Sprintf("%v", row[pkColumn])

	derivation, err := strategy.Derive(sourcePK, row)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoRuleMatched) {
			stats.ObserveUnresolved()
			return nil
		}
		return fmt.Errorf("failed to derive golden id: %w", err)
	}

	stats.ObserveResolved(derivation.GoldenID)

	return s.store.Apply(ctx, &ResolvedRow{
		GoldenID:     derivation.GoldenID,
		ObjectType:   candidate.GuessType,
		Attributes:   row,
		SourceSystem: descriptor.ID,
		SourceTable:  sourceTable,
		SourcePK:     sourcePK,
		MatchRule:    derivation.MatchRule,
		Confidence:   derivation.Confidence,
		Explanation:  derivation.Explanation,
	})
}

func deref(rules []*models.IdentityRule) []models.IdentityRule {
	out := make([]models.IdentityRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, *r)
	}
	return out
}
