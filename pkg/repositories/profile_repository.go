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

// ProfileRepository provides data access for table and column profiles.
// Profiles are immutable: they are only ever inserted under a fresh scan
// run id, never updated.
type ProfileRepository interface {
	CreateTableProfile(ctx context.Context, profile *models.TableProfile) error
	CreateColumnProfiles(ctx context.Context, profiles []*models.ColumnProfile) error
	ListTableProfiles(ctx context.Context, scanRunID uuid.UUID) ([]*models.TableProfile, error)
	ListColumnProfiles(ctx context.Context, scanRunID uuid.UUID, schemaName, tableName string) ([]*models.ColumnProfile, error)
}

type profileRepository struct {
	db *database.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *database.DB) ProfileRepository {
	return &profileRepository{db: db}
}

var _ ProfileRepository = (*profileRepository)(nil)

func (r *profileRepository) CreateTableProfile(ctx context.Context, profile *models.TableProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}

	query := `
		INSERT INTO engine_table_profiles (
			id, scan_run_id, source_id, schema_name, table_name,
			row_count, column_count, profiled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		profile.ID, profile.ScanRunID, profile.SourceID,
		profile.SchemaName, profile.TableName,
		profile.RowCount, profile.ColumnCount, profile.ProfiledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create table profile: %w", err)
	}

	return nil
}

// CreateColumnProfiles inserts the profiles for one table in a single batch.
func (r *profileRepository) CreateColumnProfiles(ctx context.Context, profiles []*models.ColumnProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	query := `
		INSERT INTO engine_column_profiles (
			id, scan_run_id, source_id, schema_name, table_name, column_name,
			data_type, ordinal_position, row_count, null_count, null_rate,
			distinct_count, sample_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	batch := &pgx.Batch{}
	for _, p := range profiles {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		batch.Queue(query,
			p.ID, p.ScanRunID, p.SourceID, p.SchemaName, p.TableName, p.ColumnName,
			p.DataType, p.OrdinalPosition, p.RowCount, p.NullCount, p.NullRate,
			p.DistinctCount, p.SampleHash,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range profiles {
		if _, err := results.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return apperrors.ErrConflict
			}
			return fmt.Errorf("failed to create column profile: %w", err)
		}
	}

	return nil
}

func (r *profileRepository) ListTableProfiles(ctx context.Context, scanRunID uuid.UUID) ([]*models.TableProfile, error) {
	query := `
		SELECT id, scan_run_id, source_id, schema_name, table_name,
		       row_count, column_count, profiled_at
		FROM engine_table_profiles
		WHERE scan_run_id = $1
		ORDER BY source_id, schema_name, table_name`

	rows, err := r.db.Query(ctx, query, scanRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query table profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.TableProfile
	for rows.Next() {
		var p models.TableProfile
		err := rows.Scan(
			&p.ID, &p.ScanRunID, &p.SourceID, &p.SchemaName, &p.TableName,
			&p.RowCount, &p.ColumnCount, &p.ProfiledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table profile row: %w", err)
		}
		profiles = append(profiles, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table profile rows: %w", err)
	}

	return profiles, nil
}

func (r *profileRepository) ListColumnProfiles(ctx context.Context, scanRunID uuid.UUID, schemaName, tableName string) ([]*models.ColumnProfile, error) {
	query := `
		SELECT id, scan_run_id, source_id, schema_name, table_name, column_name,
		       data_type, ordinal_position, row_count, null_count, null_rate,
		       distinct_count, sample_hash
		FROM engine_column_profiles
		WHERE scan_run_id = $1 AND schema_name = $2 AND table_name = $3
		ORDER BY ordinal_position`

	rows, err := r.db.Query(ctx, query, scanRunID, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.ColumnProfile
	for rows.Next() {
		var p models.ColumnProfile
		err := rows.Scan(
			&p.ID, &p.ScanRunID, &p.SourceID, &p.SchemaName, &p.TableName, &p.ColumnName,
			&p.DataType, &p.OrdinalPosition, &p.RowCount, &p.NullCount, &p.NullRate,
			&p.DistinctCount, &p.SampleHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column profile row: %w", err)
		}
		profiles = append(profiles, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column profile rows: %w", err)
	}

	return profiles, nil
}
