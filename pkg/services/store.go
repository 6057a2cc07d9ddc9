package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/retry"
)

// ResolvedRow is the unit handed to the store once identity resolution
// succeeds for one source row.
type ResolvedRow struct {
	GoldenID     string
	ObjectType   string
	Attributes   map[string]any
	SourceSystem string
	SourceTable  string
	SourcePK     string
	MatchRule    string
	Confidence   float64
	Explanation  string
}

// StoreService applies resolved rows to the golden object store. Writers
// for different golden ids proceed independently; concurrent writers for
// the same golden id are serialized through a per-id lock so the object
// upsert and its link upsert land together.
type StoreService interface {
	Apply(ctx context.Context, row *ResolvedRow) error
}

type storeService struct {
	goldenRepo repositories.GoldenObjectRepository
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStoreService creates a new StoreService.
func NewStoreService(goldenRepo repositories.GoldenObjectRepository, logger *zap.Logger) StoreService {
	return &storeService{
		goldenRepo: goldenRepo,
		logger:     logger.Named("store"),
		locks:      make(map[string]*sync.Mutex),
	}
}

var _ StoreService = (*storeService)(nil)

// conflictRetryConfig retries the occasional unique-constraint race between
// two runs writing the same golden id.
func conflictRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (s *storeService) Apply(ctx context.Context, row *ResolvedRow) error {
	lock := s.lockFor(row.GoldenID)
	lock.Lock()
	defer lock.Unlock()

	object := &models.GoldenObject{
		GoldenID:   row.GoldenID,
		ObjectType: row.ObjectType,
		Attributes: row.Attributes,
	}

	err := retry.Do(ctx, conflictRetryConfig(), func() error {
		if err := s.goldenRepo.UpsertObject(ctx, object); err != nil {
			return err
		}

		link := &models.SourceLink{
			GoldenID:     row.GoldenID,
			SourceSystem: row.SourceSystem,
			SourceTable:  row.SourceTable,
			SourcePK:     row.SourcePK,
			MatchRule:    row.MatchRule,
			Confidence:   row.Confidence,
			Explanation:  row.Explanation,
		}
		return s.goldenRepo.UpsertLink(ctx, link)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return fmt.Errorf("golden object write conflict for %s: %w", row.GoldenID, err)
		}
		return fmt.Errorf("failed to apply resolved row: %w", err)
	}

	s.logger.Debug("applied resolved row",
		zap.String("golden_id", row.GoldenID),
		zap.String("object_type", row.ObjectType),
		zap.String("source_system", row.SourceSystem),
		zap.String("source_pk", row.SourcePK))

	return nil
}

func (s *storeService) lockFor(goldenID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[goldenID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[goldenID] = lock
	}
	return lock
}
