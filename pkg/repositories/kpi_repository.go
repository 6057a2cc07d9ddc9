package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/database"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// KpiRepository provides append-only access to KPI facts. Facts are never
// updated or deleted; trends come from comparing runs.
type KpiRepository interface {
	Create(ctx context.Context, fact *models.KpiFact) error
	ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.KpiFact, error)
	List(ctx context.Context, scanRunID *uuid.UUID, limit, offset int) ([]*models.KpiFact, error)
}

type kpiRepository struct {
	db *database.DB
}

// NewKpiRepository creates a new KpiRepository.
func NewKpiRepository(db *database.DB) KpiRepository {
	return &kpiRepository{db: db}
}

var _ KpiRepository = (*kpiRepository)(nil)

func (r *kpiRepository) Create(ctx context.Context, fact *models.KpiFact) error {
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	if fact.ComputedAt.IsZero() {
		fact.ComputedAt = time.Now()
	}

	query := `
		INSERT INTO engine_kpi_facts (id, scan_run_id, kpi_key, value, details, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		fact.ID, fact.ScanRunID, fact.Key, fact.Value, fact.Details, fact.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create kpi fact: %w", err)
	}

	return nil
}

func (r *kpiRepository) ListByRun(ctx context.Context, scanRunID uuid.UUID) ([]*models.KpiFact, error) {
	query := `
		SELECT id, scan_run_id, kpi_key, value, details, computed_at
		FROM engine_kpi_facts
		WHERE scan_run_id = $1
		ORDER BY kpi_key, computed_at`

	rows, err := r.db.Query(ctx, query, scanRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query kpi facts: %w", err)
	}
	defer rows.Close()

	return scanKpiFacts(rows)
}

// List returns KPI facts across runs, newest first. A nil scanRunID matches
// all runs.
func (r *kpiRepository) List(ctx context.Context, scanRunID *uuid.UUID, limit, offset int) ([]*models.KpiFact, error) {
	query := `
		SELECT id, scan_run_id, kpi_key, value, details, computed_at
		FROM engine_kpi_facts
		WHERE ($1::uuid IS NULL OR scan_run_id = $1)
		ORDER BY computed_at DESC, kpi_key
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, scanRunID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query kpi facts: %w", err)
	}
	defer rows.Close()

	return scanKpiFacts(rows)
}

func scanKpiFacts(rows pgx.Rows) ([]*models.KpiFact, error) {
	var facts []*models.KpiFact
	for rows.Next() {
		var f models.KpiFact
		err := rows.Scan(&f.ID, &f.ScanRunID, &f.Key, &f.Value, &f.Details, &f.ComputedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kpi fact row: %w", err)
		}
		facts = append(facts, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kpi fact rows: %w", err)
	}

	return facts, nil
}
