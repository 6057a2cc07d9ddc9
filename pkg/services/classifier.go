package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
)

// objectTypeVocabulary maps table-name stems to object types. Stems are
// matched after prefix/suffix stripping and singularization, first by
// exact lookup and then by substring.
var objectTypeVocabulary = map[string]string{
	"customer": "customer",
	"client":   "customer",
	"user":     "user",
	"account":  "account",
	"order":    "order",
	"product":  "product",
	"invoice":  "invoice",
	"contact":  "contact",
	"person":   "person",
	"employee": "employee",
	"vendor":   "vendor",
	"supplier": "supplier",
}

var (
	tablePrefixes = []string{"tbl_", "tb_", "t_", "table_"}
	tableSuffixes = []string{"_tbl", "_table", "_tb"}
)

// ClassifierService guesses an object type for each profiled table from
// its name and records the result as an object candidate.
type ClassifierService interface {
	// GuessObjectType maps a table name to an object type, falling back
	// to models.ObjectTypeUnknown when no vocabulary entry matches.
	GuessObjectType(tableName string) string

	// RecordCandidate classifies one profiled table and upserts its
	// candidate row. Re-running over the same table updates guess_type
	// and row_count in place.
	RecordCandidate(ctx context.Context, profile *models.TableProfile) (*models.ObjectCandidate, error)
}

type classifierService struct {
	candidateRepo repositories.CandidateRepository
	logger        *zap.Logger

	// vocabulary keys sorted for a deterministic substring scan
	stems []string
}

// NewClassifierService creates a new ClassifierService.
func NewClassifierService(candidateRepo repositories.CandidateRepository, logger *zap.Logger) ClassifierService {
	stems := make([]string, 0, len(objectTypeVocabulary))
	for stem := range objectTypeVocabulary {
		stems = append(stems, stem)
	}
	sort.Strings(stems)

	return &classifierService{
		candidateRepo: candidateRepo,
		logger:        logger.Named("classifier"),
		stems:         stems,
	}
}

var _ ClassifierService = (*classifierService)(nil)

func (s *classifierService) GuessObjectType(tableName string) string {
	name := strings.ToLower(tableName)

	for _, prefix := range tablePrefixes {
		if strings.HasPrefix(name, prefix) {
			name = name[len(prefix):]
			break
		}
	}
	for _, suffix := range tableSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}

	if name == "" {
		return models.ObjectTypeUnknown
	}

	stem := inflection.Singular(name)

	if objectType, ok := objectTypeVocabulary[stem]; ok {
		return objectType
	}

	// Substring match so names like customer_master still classify.
	for _, vocab := range s.stems {
		if strings.Contains(stem, vocab) {
			return objectTypeVocabulary[vocab]
		}
	}

	return models.ObjectTypeUnknown
}

func (s *classifierService) RecordCandidate(ctx context.Context, profile *models.TableProfile) (*models.ObjectCandidate, error) {
	candidate := &models.ObjectCandidate{
		SourceID:   profile.SourceID,
		SchemaName: profile.SchemaName,
		TableName:  profile.TableName,
		GuessType:  s.GuessObjectType(profile.TableName),
		RowCount:   profile.RowCount,
	}

	if err := s.candidateRepo.Upsert(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to record object candidate: %w", err)
	}

	s.logger.Debug("recorded object candidate",
		zap.String("source_id", candidate.SourceID),
		zap.String("schema", candidate.SchemaName),
		zap.String("table", candidate.TableName),
		zap.String("guess_type", candidate.GuessType))

	return candidate, nil
}
