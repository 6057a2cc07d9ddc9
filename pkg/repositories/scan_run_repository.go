package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/database"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
)

// ScanRunRepository provides data access for scan runs. Status transitions
// are guarded in SQL: a run only starts from PENDING and only finalizes
// from a non-terminal state, so a terminal run can never be reopened or
// finalized twice.
type ScanRunRepository interface {
	Create(ctx context.Context, sourceFilter string) (*models.ScanRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScanRun, error)
	List(ctx context.Context, limit, offset int) ([]*models.ScanRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	Finalize(ctx context.Context, id uuid.UUID, status models.ScanRunStatus, metrics map[string]any, runErr *string) error
}

type scanRunRepository struct {
	db *database.DB
}

// NewScanRunRepository creates a new ScanRunRepository.
func NewScanRunRepository(db *database.DB) ScanRunRepository {
	return &scanRunRepository{db: db}
}

var _ ScanRunRepository = (*scanRunRepository)(nil)

func (r *scanRunRepository) Create(ctx context.Context, sourceFilter string) (*models.ScanRun, error) {
	run := &models.ScanRun{
		ID:           uuid.New(),
		SourceFilter: sourceFilter,
		Status:       models.ScanRunPending,
		Metrics:      map[string]any{},
		StartedAt:    time.Now(),
	}

	query := `
		INSERT INTO engine_scan_runs (id, source_filter, status, metrics, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, run.ID, run.SourceFilter, run.Status, run.Metrics, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan run: %w", err)
	}

	return run, nil
}

func (r *scanRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScanRun, error) {
	query := `
		SELECT id, source_filter, status, metrics, started_at, ended_at, error
		FROM engine_scan_runs
		WHERE id = $1`

	run, err := scanScanRunRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return run, nil
}

func (r *scanRunRepository) List(ctx context.Context, limit, offset int) ([]*models.ScanRun, error) {
	query := `
		SELECT id, source_filter, status, metrics, started_at, ended_at, error
		FROM engine_scan_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScanRun
	for rows.Next() {
		run, err := scanScanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scan run rows: %w", err)
	}

	return runs, nil
}

func (r *scanRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE engine_scan_runs
		SET status = $2
		WHERE id = $1 AND status = $3`

	result, err := r.db.Exec(ctx, query, id, models.ScanRunRunning, models.ScanRunPending)
	if err != nil {
		return fmt.Errorf("failed to mark scan run running: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrRunAlreadyDone
	}

	return nil
}

func (r *scanRunRepository) Finalize(ctx context.Context, id uuid.UUID, status models.ScanRunStatus, metrics map[string]any, runErr *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("cannot finalize scan run with non-terminal status %q", status)
	}

	query := `
		UPDATE engine_scan_runs
		SET status = $2,
		    metrics = $3,
		    error = $4,
		    ended_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)`

	result, err := r.db.Exec(ctx, query, id, status, metrics, runErr,
		models.ScanRunSuccess, models.ScanRunFailed)
	if err != nil {
		return fmt.Errorf("failed to finalize scan run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrRunAlreadyDone
	}

	return nil
}

func scanScanRunRow(row pgx.Row) (*models.ScanRun, error) {
	var run models.ScanRun

	err := row.Scan(
		&run.ID, &run.SourceFilter, &run.Status, &run.Metrics,
		&run.StartedAt, &run.EndedAt, &run.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scan run: %w", err)
	}

	return &run, nil
}
