package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/database"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// CandidateRepository provides data access for object candidates. A
// candidate is keyed by (source, schema, table) across all runs: Upsert
// refreshes guess_type, row_count and last_seen_at in place and leaves
// first_seen_at untouched.
type CandidateRepository interface {
	Upsert(ctx context.Context, candidate *models.ObjectCandidate) error
	ListBySource(ctx context.Context, sourceID string) ([]*models.ObjectCandidate, error)
	ListByType(ctx context.Context, guessType string) ([]*models.ObjectCandidate, error)
}

type candidateRepository struct {
	db *database.DB
}

// NewCandidateRepository creates a new CandidateRepository.
func NewCandidateRepository(db *database.DB) CandidateRepository {
	return &candidateRepository{db: db}
}

var _ CandidateRepository = (*candidateRepository)(nil)

func (r *candidateRepository) Upsert(ctx context.Context, candidate *models.ObjectCandidate) error {
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}

	query := `
		INSERT INTO engine_object_candidates (
			id, source_id, schema_name, table_name, guess_type,
			row_count, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (source_id, schema_name, table_name) DO UPDATE
		SET guess_type = EXCLUDED.guess_type,
		    row_count = EXCLUDED.row_count,
		    last_seen_at = NOW()
		RETURNING id, first_seen_at, last_seen_at`

	err := r.db.QueryRow(ctx, query,
		candidate.ID, candidate.SourceID, candidate.SchemaName,
		candidate.TableName, candidate.GuessType, candidate.RowCount,
	).Scan(&candidate.ID, &candidate.FirstSeenAt, &candidate.LastSeenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert object candidate: %w", err)
	}

	return nil
}

func (r *candidateRepository) ListBySource(ctx context.Context, sourceID string) ([]*models.ObjectCandidate, error) {
	query := `
		SELECT id, source_id, schema_name, table_name, guess_type,
		       row_count, first_seen_at, last_seen_at
		FROM engine_object_candidates
		WHERE source_id = $1
		ORDER BY schema_name, table_name`

	return r.queryCandidates(ctx, query, sourceID)
}

func (r *candidateRepository) ListByType(ctx context.Context, guessType string) ([]*models.ObjectCandidate, error) {
	query := `
		SELECT id, source_id, schema_name, table_name, guess_type,
		       row_count, first_seen_at, last_seen_at
		FROM engine_object_candidates
		WHERE guess_type = $1
		ORDER BY source_id, schema_name, table_name`

	return r.queryCandidates(ctx, query, guessType)
}

func (r *candidateRepository) queryCandidates(ctx context.Context, query string, args ...any) ([]*models.ObjectCandidate, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query object candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*models.ObjectCandidate
	for rows.Next() {
		var c models.ObjectCandidate
		err := rows.Scan(
			&c.ID, &c.SourceID, &c.SchemaName, &c.TableName, &c.GuessType,
			&c.RowCount, &c.FirstSeenAt, &c.LastSeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan object candidate row: %w", err)
		}
		candidates = append(candidates, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating object candidate rows: %w", err)
	}

	return candidates, nil
}
