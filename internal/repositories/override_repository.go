package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contextgraph/internal/models"
)

// OverrideRepository stores relationship overrides and hub pins in postgres.
type OverrideRepository struct {
	pool *pgxpool.Pool
}

func NewOverrideRepository(pool *pgxpool.Pool) *OverrideRepository {
	return &OverrideRepository{pool: pool}
}

const overrideColumns = `
	id, project_id, source_table, source_column, target_table, target_column,
	status, manual, snapshot_fingerprint, created_at, updated_at, updated_by`

func (r *OverrideRepository) ListOverrides(ctx context.Context, projectID uuid.UUID) ([]models.Override, error) {
	query := `SELECT` + overrideColumns + `
		FROM relationship_overrides
		WHERE project_id = $1
		ORDER BY source_table, source_column, target_table, target_column`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// GetOverride returns nil when no override exists for key.
func (r *OverrideRepository) GetOverride(ctx context.Context, projectID uuid.UUID, key models.RelationshipKey) (*models.Override, error) {
	query := `SELECT` + overrideColumns + `
		FROM relationship_overrides
		WHERE project_id = $1
		  AND source_table = $2 AND source_column = $3
		  AND target_table = $4 AND target_column = $5`

	row := r.pool.QueryRow(ctx, query, projectID,
		key.SourceTable, key.SourceColumn, key.TargetTable, key.TargetColumn)
	o, err := scanOverride(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// SaveOverride upserts by relationship key. An older write never replaces a
// newer one, so the latest updated_at wins across processes.
func (r *OverrideRepository) SaveOverride(ctx context.Context, o *models.Override) error {
	o.Prepare()

	query := `
		INSERT INTO relationship_overrides (` + overrideColumns + `, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			CASE WHEN $7 = 'deleted' THEN $11::timestamptz END)
		ON CONFLICT (project_id, source_table, source_column, target_table, target_column)
		DO UPDATE SET
			status = EXCLUDED.status,
			manual = relationship_overrides.manual OR EXCLUDED.manual,
			snapshot_fingerprint = EXCLUDED.snapshot_fingerprint,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by,
			deleted_at = EXCLUDED.deleted_at
		WHERE relationship_overrides.updated_at <= EXCLUDED.updated_at
		RETURNING id, created_at, manual`

	err := r.pool.QueryRow(ctx, query,
		o.ID, o.ProjectID,
		o.Key.SourceTable, o.Key.SourceColumn, o.Key.TargetTable, o.Key.TargetColumn,
		string(o.Status), o.Manual, o.SnapshotFingerprint,
		o.CreatedAt, o.UpdatedAt, o.UpdatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.Manual)
	if errors.Is(err, pgx.ErrNoRows) {
		// A newer write already landed.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

func (r *OverrideRepository) ListHubPins(ctx context.Context, projectID uuid.UUID) ([]models.HubPin, error) {
	query := `
		SELECT project_id, semantic_type, table_name, column_name, created_at, updated_at, updated_by
		FROM hub_pins
		WHERE project_id = $1 AND deleted_at IS NULL
		ORDER BY semantic_type`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hub pins: %w", err)
	}
	defer rows.Close()

	var pins []models.HubPin
	for rows.Next() {
		var p models.HubPin
		if err := rows.Scan(&p.ProjectID, &p.SemanticType, &p.Table, &p.Column,
			&p.CreatedAt, &p.UpdatedAt, &p.UpdatedBy); err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

// SaveHubPin creates or reactivates the pin for a semantic type.
func (r *OverrideRepository) SaveHubPin(ctx context.Context, p *models.HubPin) error {
	p.Prepare()

	query := `
		INSERT INTO hub_pins (project_id, semantic_type, table_name, column_name, created_at, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id, semantic_type)
		DO UPDATE SET
			table_name = EXCLUDED.table_name,
			column_name = EXCLUDED.column_name,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by,
			deleted_at = NULL
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		p.ProjectID, p.SemanticType, p.Table, p.Column, p.CreatedAt, p.UpdatedAt, p.UpdatedBy,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save hub pin: %w", err)
	}
	return nil
}

// DeleteHubPin soft-deletes a pin and reports whether one was active.
func (r *OverrideRepository) DeleteHubPin(ctx context.Context, projectID uuid.UUID, semanticType string) (bool, error) {
	query := `
		UPDATE hub_pins SET deleted_at = NOW(), updated_at = NOW()
		WHERE project_id = $1 AND semantic_type = $2 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query, projectID, semanticType)
	if err != nil {
		return false, fmt.Errorf("failed to delete hub pin: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func scanOverride(row pgx.Row) (models.Override, error) {
	var (
		o      models.Override
		status string
	)
	err := row.Scan(
		&o.ID, &o.ProjectID,
		&o.Key.SourceTable, &o.Key.SourceColumn, &o.Key.TargetTable, &o.Key.TargetColumn,
		&status, &o.Manual, &o.SnapshotFingerprint,
		&o.CreatedAt, &o.UpdatedAt, &o.UpdatedBy,
	)
	o.Status = models.OverrideStatus(status)
	return o, err
}
