package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/database"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// RuleRepository provides data access for identity rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.IdentityRule) error
	GetByID(ctx context.Context, id string) (*models.IdentityRule, error)
	List(ctx context.Context) ([]*models.IdentityRule, error)
	ListActive(ctx context.Context, objectType, sourceSystem string) ([]*models.IdentityRule, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type ruleRepository struct {
	db *database.DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *database.DB) RuleRepository {
	return &ruleRepository{db: db}
}

var _ RuleRepository = (*ruleRepository)(nil)

const ruleColumns = `
	id, name, object_type, source_system, key_fields,
	normalization, priority, active, created_at, updated_at
`

func (r *ruleRepository) Create(ctx context.Context, rule *models.IdentityRule) error {
	if len(rule.KeyFields) == 0 {
		return apperrors.ErrEmptyKeyFields
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO engine_identity_rules (
			id, name, object_type, source_system, key_fields,
			normalization, priority, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		rule.ID, rule.Name, rule.ObjectType, rule.SourceSystem, rule.KeyFields,
		rule.Normalization, rule.Priority, rule.Active, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create identity rule: %w", err)
	}

	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*models.IdentityRule, error) {
	query := `SELECT` + ruleColumns + `FROM engine_identity_rules WHERE id = $1`

	rule, err := scanRuleRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return rule, nil
}

func (r *ruleRepository) List(ctx context.Context) ([]*models.IdentityRule, error) {
	query := `SELECT` + ruleColumns + `FROM engine_identity_rules ORDER BY object_type, source_system, priority, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity rules: %w", err)
	}
	defer rows.Close()

	return scanRuleRows(rows)
}

func (r *ruleRepository) ListActive(ctx context.Context, objectType, sourceSystem string) ([]*models.IdentityRule, error) {
	query := `SELECT` + ruleColumns + `
		FROM engine_identity_rules
		WHERE active = true AND object_type = $1 AND source_system = $2
		ORDER BY priority, id`

	rows, err := r.db.Query(ctx, query, objectType, sourceSystem)
	if err != nil {
		return nil, fmt.Errorf("failed to query active identity rules: %w", err)
	}
	defer rows.Close()

	return scanRuleRows(rows)
}

func (r *ruleRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE engine_identity_rules
		SET active = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to update identity rule: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanRuleRow(row pgx.Row) (*models.IdentityRule, error) {
	var rule models.IdentityRule

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.ObjectType, &rule.SourceSystem, &rule.KeyFields,
		&rule.Normalization, &rule.Priority, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan identity rule: %w", err)
	}

	return &rule, nil
}

func scanRuleRows(rows pgx.Rows) ([]*models.IdentityRule, error) {
	var rules []*models.IdentityRule

	for rows.Next() {
		rule, err := scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identity rule rows: %w", err)
	}

	return rules, nil
}
