package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/logging"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
)

// RegistryService is the admin surface for registered sources. Descriptors
// are validated at registration; the pipeline itself treats them as
// read-only.
type RegistryService interface {
	RegisterSource(ctx context.Context, descriptor *models.SourceDescriptor) error
	GetSource(ctx context.Context, id string) (*models.SourceDescriptor, error)
	ListSources(ctx context.Context) ([]*models.SourceDescriptor, error)

	// TestSource opens a connection to the source and pings it, without
	// running a scan.
	TestSource(ctx context.Context, id string) error
}

type registryService struct {
	sourceRepo repositories.SourceRepository
	logger     *zap.Logger

	// openConnector is swapped in tests
	openConnector func(ctx context.Context, sourceType string, connection map[string]any) (source.Connector, error)
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(sourceRepo repositories.SourceRepository, logger *zap.Logger) RegistryService {
	return &registryService{
		sourceRepo:    sourceRepo,
		logger:        logger.Named("registry"),
		openConnector: source.Open,
	}
}

var _ RegistryService = (*registryService)(nil)

func (s *registryService) RegisterSource(ctx context.Context, descriptor *models.SourceDescriptor) error {
	if err := validateDescriptor(descriptor); err != nil {
		return err
	}

	if err := s.sourceRepo.Create(ctx, descriptor); err != nil {
		return fmt.Errorf("failed to register source: %w", err)
	}

	s.logger.Info("source registered",
		zap.String("source_id", descriptor.ID),
		zap.String("source_type", descriptor.SourceType))

	return nil
}

func (s *registryService) GetSource(ctx context.Context, id string) (*models.SourceDescriptor, error) {
	return s.sourceRepo.GetByID(ctx, id)
}

func (s *registryService) ListSources(ctx context.Context) ([]*models.SourceDescriptor, error) {
	return s.sourceRepo.List(ctx)
}

func (s *registryService) TestSource(ctx context.Context, id string) error {
	descriptor, err := s.sourceRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	conn, err := s.openConnector(ctx, descriptor.SourceType, descriptor.Connection)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}
	return nil
}

func validateDescriptor(descriptor *models.SourceDescriptor) error {
	if strings.TrimSpace(descriptor.ID) == "" {
		return fmt.Errorf("%w: source id is required", apperrors.ErrValidation)
	}
	if !supportedSourceType(descriptor.SourceType) {
		return fmt.Errorf("%w: unsupported source type %q", apperrors.ErrValidation, descriptor.SourceType)
	}
	if len(descriptor.Connection) == 0 {
		return fmt.Errorf("%w: connection parameters are required", apperrors.ErrValidation)
	}
	return nil
}

func supportedSourceType(sourceType string) bool {
	for _, t := range source.RegisteredTypes() {
		if t == sourceType {
			return true
		}
	}
	return false
}

// RuleService is the admin surface for identity rules. Rules take effect
// on the next scan run; changing one never rewrites existing golden
// objects or links.
type RuleService interface {
	CreateRule(ctx context.Context, rule *models.IdentityRule) error
	GetRule(ctx context.Context, id string) (*models.IdentityRule, error)
	ListRules(ctx context.Context) ([]*models.IdentityRule, error)
	SetRuleActive(ctx context.Context, id string, active bool) error
}

type ruleService struct {
	ruleRepo repositories.RuleRepository
	logger   *zap.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(ruleRepo repositories.RuleRepository, logger *zap.Logger) RuleService {
	return &ruleService{
		ruleRepo: ruleRepo,
		logger:   logger.Named("rules"),
	}
}

var _ RuleService = (*ruleService)(nil)

func (s *ruleService) CreateRule(ctx context.Context, rule *models.IdentityRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return fmt.Errorf("failed to create identity rule: %w", err)
	}

	s.logger.Info("identity rule created",
		zap.String("rule_id", rule.ID),
		zap.String("object_type", rule.ObjectType),
		zap.String("source_system", rule.SourceSystem),
		zap.Strings("key_fields", rule.KeyFields))

	return nil
}

func (s *ruleService) GetRule(ctx context.Context, id string) (*models.IdentityRule, error) {
	return s.ruleRepo.GetByID(ctx, id)
}

func (s *ruleService) ListRules(ctx context.Context) ([]*models.IdentityRule, error) {
	return s.ruleRepo.List(ctx)
}

func (s *ruleService) SetRuleActive(ctx context.Context, id string, active bool) error {
	if err := s.ruleRepo.SetActive(ctx, id, active); err != nil {
		return err
	}

	s.logger.Info("identity rule toggled",
		zap.String("rule_id", id),
		zap.Bool("active", active))

	return nil
}

func validateRule(rule *models.IdentityRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("%w: rule id is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(rule.ObjectType) == "" {
		return fmt.Errorf("%w: object type is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(rule.SourceSystem) == "" {
		return fmt.Errorf("%w: source system is required", apperrors.ErrValidation)
	}
	if len(rule.KeyFields) == 0 {
		return apperrors.ErrEmptyKeyFields
	}
	for _, field := range rule.KeyFields {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("%w: key field names must be non-empty", apperrors.ErrValidation)
		}
	}
	for field, directive := range rule.Normalization {
		if !models.ValidNormalizeDirective(directive) {
			return fmt.Errorf("%w: unknown normalization %q for field %q", apperrors.ErrValidation, directive, field)
		}
	}
	return nil
}
