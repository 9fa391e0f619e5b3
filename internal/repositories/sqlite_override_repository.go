package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contextgraph/internal/models"
)

// sqliteTimeFormat is fixed width so stored timestamps sort as text.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteOverrideRepository is the single-file override store used by the CLI
// and single-node deployments.
type SQLiteOverrideRepository struct {
	db *sql.DB
}

func NewSQLiteOverrideRepository(db *sql.DB) *SQLiteOverrideRepository {
	return &SQLiteOverrideRepository{db: db}
}

func (r *SQLiteOverrideRepository) ListOverrides(ctx context.Context, projectID uuid.UUID) ([]models.Override, error) {
	query := `SELECT` + overrideColumns + `
		FROM relationship_overrides
		WHERE project_id = ?
		ORDER BY source_table, source_column, target_table, target_column`

	rows, err := r.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.Override
	for rows.Next() {
		o, err := scanSQLiteOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (r *SQLiteOverrideRepository) GetOverride(ctx context.Context, projectID uuid.UUID, key models.RelationshipKey) (*models.Override, error) {
	query := `SELECT` + overrideColumns + `
		FROM relationship_overrides
		WHERE project_id = ?
		  AND source_table = ? AND source_column = ?
		  AND target_table = ? AND target_column = ?`

	row := r.db.QueryRowContext(ctx, query, projectID.String(),
		key.SourceTable, key.SourceColumn, key.TargetTable, key.TargetColumn)
	o, err := scanSQLiteOverride(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *SQLiteOverrideRepository) SaveOverride(ctx context.Context, o *models.Override) error {
	o.Prepare()

	var deletedAt any
	if o.Status == models.OverrideDeleted {
		deletedAt = o.UpdatedAt.UTC().Format(sqliteTimeFormat)
	}

	query := `
		INSERT INTO relationship_overrides (` + overrideColumns + `, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, source_table, source_column, target_table, target_column)
		DO UPDATE SET
			status = excluded.status,
			manual = relationship_overrides.manual OR excluded.manual,
			snapshot_fingerprint = excluded.snapshot_fingerprint,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by,
			deleted_at = excluded.deleted_at
		WHERE relationship_overrides.updated_at <= excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		o.ID.String(), o.ProjectID.String(),
		o.Key.SourceTable, o.Key.SourceColumn, o.Key.TargetTable, o.Key.TargetColumn,
		string(o.Status), o.Manual, o.SnapshotFingerprint,
		o.CreatedAt.UTC().Format(sqliteTimeFormat),
		o.UpdatedAt.UTC().Format(sqliteTimeFormat),
		o.UpdatedBy, deletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

func (r *SQLiteOverrideRepository) ListHubPins(ctx context.Context, projectID uuid.UUID) ([]models.HubPin, error) {
	query := `
		SELECT semantic_type, table_name, column_name, created_at, updated_at, updated_by
		FROM hub_pins
		WHERE project_id = ? AND deleted_at IS NULL
		ORDER BY semantic_type`

	rows, err := r.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list hub pins: %w", err)
	}
	defer rows.Close()

	var pins []models.HubPin
	for rows.Next() {
		var (
			p                    models.HubPin
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.SemanticType, &p.Table, &p.Column, &createdAt, &updatedAt, &p.UpdatedBy); err != nil {
			return nil, err
		}
		p.ProjectID = projectID
		p.CreatedAt = parseSQLiteTime(createdAt)
		p.UpdatedAt = parseSQLiteTime(updatedAt)
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

func (r *SQLiteOverrideRepository) SaveHubPin(ctx context.Context, p *models.HubPin) error {
	p.Prepare()

	query := `
		INSERT INTO hub_pins (project_id, semantic_type, table_name, column_name, created_at, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, semantic_type)
		DO UPDATE SET
			table_name = excluded.table_name,
			column_name = excluded.column_name,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by,
			deleted_at = NULL`

	_, err := r.db.ExecContext(ctx, query,
		p.ProjectID.String(), p.SemanticType, p.Table, p.Column,
		p.CreatedAt.UTC().Format(sqliteTimeFormat),
		p.UpdatedAt.UTC().Format(sqliteTimeFormat),
		p.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save hub pin: %w", err)
	}
	return nil
}

func (r *SQLiteOverrideRepository) DeleteHubPin(ctx context.Context, projectID uuid.UUID, semanticType string) (bool, error) {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	result, err := r.db.ExecContext(ctx, `
		UPDATE hub_pins SET deleted_at = ?, updated_at = ?
		WHERE project_id = ? AND semantic_type = ? AND deleted_at IS NULL`,
		now, now, projectID.String(), semanticType,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete hub pin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOverride(row rowScanner) (models.Override, error) {
	var (
		o                     models.Override
		id, projectID, status string
		createdAt, updatedAt  string
	)
	err := row.Scan(
		&id, &projectID,
		&o.Key.SourceTable, &o.Key.SourceColumn, &o.Key.TargetTable, &o.Key.TargetColumn,
		&status, &o.Manual, &o.SnapshotFingerprint,
		&createdAt, &updatedAt, &o.UpdatedBy,
	)
	if err != nil {
		return o, err
	}
	o.ID, _ = uuid.Parse(id)
	o.ProjectID, _ = uuid.Parse(projectID)
	o.Status = models.OverrideStatus(status)
	o.CreatedAt = parseSQLiteTime(createdAt)
	o.UpdatedAt = parseSQLiteTime(updatedAt)
	return o, nil
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
