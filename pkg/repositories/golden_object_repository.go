package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/database"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// GoldenObjectRepository provides data access for golden objects and the
// source links that trace each source row to its golden object. Both sides
// are upsert-only: the pipeline never deletes a golden object, and a source
// row holds at most one link at a time.
type GoldenObjectRepository interface {
	UpsertObject(ctx context.Context, object *models.GoldenObject) error
	GetObject(ctx context.Context, goldenID string) (*models.GoldenObject, error)
	ListObjects(ctx context.Context, objectType string, limit, offset int) ([]*models.GoldenObject, int, error)
	UpsertLink(ctx context.Context, link *models.SourceLink) error
	ListLinks(ctx context.Context, goldenID string) ([]*models.SourceLink, error)
	AvgSourceSystemsPerObject(ctx context.Context) (float64, error)
}

type goldenObjectRepository struct {
	db *database.DB
}

// NewGoldenObjectRepository creates a new GoldenObjectRepository.
func NewGoldenObjectRepository(db *database.DB) GoldenObjectRepository {
	return &goldenObjectRepository{db: db}
}

var _ GoldenObjectRepository = (*goldenObjectRepository)(nil)

// UpsertObject inserts the golden object or merges its attributes into the
// existing row. Attribute merge is last-writer-wins per key; created_at is
// preserved across upserts.
func (r *goldenObjectRepository) UpsertObject(ctx context.Context, object *models.GoldenObject) error {
	query := `
		INSERT INTO engine_golden_objects (golden_id, object_type, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (golden_id) DO UPDATE
		SET attributes = engine_golden_objects.attributes || EXCLUDED.attributes,
		    updated_at = NOW()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		object.GoldenID, object.ObjectType, object.Attributes,
	).Scan(&object.CreatedAt, &object.UpdatedAt)
	if err != nil {
		// Two concurrent first-inserts of the same golden id can still race
		// past ON CONFLICT; the caller retries these.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("golden object %s: %w", object.GoldenID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to upsert golden object: %w", err)
	}

	return nil
}

func (r *goldenObjectRepository) GetObject(ctx context.Context, goldenID string) (*models.GoldenObject, error) {
	query := `
		SELECT golden_id, object_type, attributes, created_at, updated_at
		FROM engine_golden_objects
		WHERE golden_id = $1`

	var o models.GoldenObject
	err := r.db.QueryRow(ctx, query, goldenID).Scan(
		&o.GoldenID, &o.ObjectType, &o.Attributes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get golden object: %w", err)
	}

	return &o, nil
}

// ListObjects returns a page of golden objects plus the total count for the
// filter. An empty objectType matches all types.
func (r *goldenObjectRepository) ListObjects(ctx context.Context, objectType string, limit, offset int) ([]*models.GoldenObject, int, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM engine_golden_objects
		WHERE ($1 = '' OR object_type = $1)`

	var total int
	if err := r.db.QueryRow(ctx, countQuery, objectType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count golden objects: %w", err)
	}

	query := `
		SELECT golden_id, object_type, attributes, created_at, updated_at
		FROM engine_golden_objects
		WHERE ($1 = '' OR object_type = $1)
		ORDER BY updated_at DESC, golden_id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, objectType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query golden objects: %w", err)
	}
	defer rows.Close()

	var objects []*models.GoldenObject
	for rows.Next() {
		var o models.GoldenObject
		err := rows.Scan(&o.GoldenID, &o.ObjectType, &o.Attributes, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan golden object row: %w", err)
		}
		objects = append(objects, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating golden object rows: %w", err)
	}

	return objects, total, nil
}

// UpsertLink inserts the link or repoints the existing one for the same
// (source system, source table, source pk) to the new golden object.
func (r *goldenObjectRepository) UpsertLink(ctx context.Context, link *models.SourceLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	query := `
		INSERT INTO engine_source_links (
			id, golden_id, source_system, source_table, source_pk,
			match_rule, confidence, explanation, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (source_system, source_table, source_pk) DO UPDATE
		SET golden_id = EXCLUDED.golden_id,
		    match_rule = EXCLUDED.match_rule,
		    confidence = EXCLUDED.confidence,
		    explanation = EXCLUDED.explanation,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		link.ID, link.GoldenID, link.SourceSystem, link.SourceTable, link.SourcePK,
		link.MatchRule, link.Confidence, link.Explanation,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("source link %s/%s/%s: %w",
				link.SourceSystem, link.SourceTable, link.SourcePK, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to upsert source link: %w", err)
	}

	return nil
}

func (r *goldenObjectRepository) ListLinks(ctx context.Context, goldenID string) ([]*models.SourceLink, error) {
	query := `
		SELECT id, golden_id, source_system, source_table, source_pk,
		       match_rule, confidence, explanation, created_at, updated_at
		FROM engine_source_links
		WHERE golden_id = $1
		ORDER BY source_system, source_table, source_pk`

	rows, err := r.db.Query(ctx, query, goldenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query source links: %w", err)
	}
	defer rows.Close()

	var links []*models.SourceLink
	for rows.Next() {
		var l models.SourceLink
		err := rows.Scan(
			&l.ID, &l.GoldenID, &l.SourceSystem, &l.SourceTable, &l.SourcePK,
			&l.MatchRule, &l.Confidence, &l.Explanation, &l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source link row: %w", err)
		}
		links = append(links, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source link rows: %w", err)
	}

	return links, nil
}

// AvgSourceSystemsPerObject is the mean number of distinct source systems
// linked per golden object. Returns 0 when no links exist.
func (r *goldenObjectRepository) AvgSourceSystemsPerObject(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(AVG(n), 0)
		FROM (
			SELECT COUNT(DISTINCT source_system) AS n
			FROM engine_source_links
			GROUP BY golden_id
		) per_object`

	var avg float64
	if err := r.db.QueryRow(ctx, query).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to compute sources per object: %w", err)
	}

	return avg, nil
}
