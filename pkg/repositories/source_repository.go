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

// SourceRepository provides data access for registered source descriptors.
// The pipeline treats descriptors as read-only apart from the last-scan
// bookkeeping fields; creation and updates belong to the admin surface.
type SourceRepository interface {
	Create(ctx context.Context, source *models.SourceDescriptor) error
	GetByID(ctx context.Context, id string) (*models.SourceDescriptor, error)
	List(ctx context.Context) ([]*models.SourceDescriptor, error)
	ListActive(ctx context.Context) ([]*models.SourceDescriptor, error)
	RecordScanOutcome(ctx context.Context, id string, status string, scanErr *string) error
}

type sourceRepository struct {
	db *database.DB
}

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(db *database.DB) SourceRepository {
	return &sourceRepository{db: db}
}

var _ SourceRepository = (*sourceRepository)(nil)

const sourceColumns = `
	id, display_name, source_type, connection,
	schema_allow_list, table_deny_patterns, active,
	last_scan_status, last_scan_at, last_scan_error,
	created_at, updated_at
`

func (r *sourceRepository) Create(ctx context.Context, source *models.SourceDescriptor) error {
	now := time.Now()
	source.CreatedAt = now
	source.UpdatedAt = now

	query := `
		INSERT INTO engine_sources (
			id, display_name, source_type, connection,
			schema_allow_list, table_deny_patterns, active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		source.ID, source.DisplayName, source.SourceType, source.Connection,
		source.SchemaAllowList, source.TableDenyPatterns, source.Active,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

func (r *sourceRepository) GetByID(ctx context.Context, id string) (*models.SourceDescriptor, error) {
	query := `SELECT` + sourceColumns + `FROM engine_sources WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	source, err := scanSourceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return source, nil
}

func (r *sourceRepository) List(ctx context.Context) ([]*models.SourceDescriptor, error) {
	query := `SELECT` + sourceColumns + `FROM engine_sources ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	return scanSourceRows(rows)
}

func (r *sourceRepository) ListActive(ctx context.Context) ([]*models.SourceDescriptor, error) {
	query := `SELECT` + sourceColumns + `FROM engine_sources WHERE active = true ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sources: %w", err)
	}
	defer rows.Close()

	return scanSourceRows(rows)
}

func (r *sourceRepository) RecordScanOutcome(ctx context.Context, id string, status string, scanErr *string) error {
	query := `
		UPDATE engine_sources
		SET last_scan_status = $2,
		    last_scan_at = NOW(),
		    last_scan_error = $3,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, scanErr)
	if err != nil {
		return fmt.Errorf("failed to record scan outcome: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanSourceRow(row pgx.Row) (*models.SourceDescriptor, error) {
	var s models.SourceDescriptor

	err := row.Scan(
		&s.ID, &s.DisplayName, &s.SourceType, &s.Connection,
		&s.SchemaAllowList, &s.TableDenyPatterns, &s.Active,
		&s.LastScanStatus, &s.LastScanAt, &s.LastScanError,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}

	return &s, nil
}

func scanSourceRows(rows pgx.Rows) ([]*models.SourceDescriptor, error) {
	var sources []*models.SourceDescriptor

	for rows.Next() {
		source, err := scanSourceRow(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}
