package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"contextgraph/internal/models"
)

// SnapshotRepository reads the table catalog the ingestion pipeline keeps in
// dataset_tables and dataset_columns.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// GetTables returns every live table of the project with its columns in
// ordinal order. An unknown project yields an empty list.
func (r *SnapshotRepository) GetTables(ctx context.Context, projectID uuid.UUID) ([]models.Table, error) {
	query := `
		SELECT t.id, t.name, t.truth_type, t.row_count, t.uploaded_at,
		       c.name, c.data_type, c.cardinality, c.sample_values
		FROM dataset_tables t
		LEFT JOIN dataset_columns c ON c.table_id = t.id
		WHERE t.project_id = $1 AND t.deleted_at IS NULL
		ORDER BY t.name, c.ordinal_position, c.name`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Table)
	var order []uuid.UUID

	for rows.Next() {
		var (
			tableID     uuid.UUID
			t           models.Table
			truthType   string
			colName     *string
			dataType    *string
			cardinality *int32
			samples     []string
		)
		if err := rows.Scan(&tableID, &t.Name, &truthType, &t.RowCount, &t.UploadedAt,
			&colName, &dataType, &cardinality, &samples); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}

		table, ok := byID[tableID]
		if !ok {
			t.ProjectID = projectID
			t.TruthType = models.ParseTruthType(truthType)
			t.Columns = []models.Column{}
			table = &t
			byID[tableID] = table
			order = append(order, tableID)
		}
		if colName == nil {
			continue
		}

		col := models.Column{Name: *colName, SampleValues: samples}
		if dataType != nil {
			col.DataType = *dataType
		}
		if cardinality != nil {
			col.Cardinality = int(*cardinality)
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]models.Table, 0, len(order))
	for _, id := range order {
		tables = append(tables, *byID[id])
	}
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// ReplaceTable writes a table and its columns, replacing any previous upload
// with the same name. Used by the CLI import and by tests.
func (r *SnapshotRepository) ReplaceTable(ctx context.Context, projectID uuid.UUID, t models.Table) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tableID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO dataset_tables (project_id, name, truth_type, row_count, uploaded_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		ON CONFLICT (project_id, name)
		DO UPDATE SET
			truth_type = EXCLUDED.truth_type,
			row_count = EXCLUDED.row_count,
			uploaded_at = EXCLUDED.uploaded_at,
			deleted_at = NULL
		RETURNING id`,
		projectID, t.Name, string(t.TruthType), t.RowCount, nullTime(t.UploadedAt),
	).Scan(&tableID)
	if err != nil {
		return fmt.Errorf("failed to upsert table %s: %w", t.Name, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dataset_columns WHERE table_id = $1`, tableID); err != nil {
		return fmt.Errorf("failed to clear columns of %s: %w", t.Name, err)
	}
	for i, c := range t.Columns {
		samples := c.SampleValues
		if samples == nil {
			samples = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO dataset_columns (table_id, name, data_type, ordinal_position, cardinality, sample_values)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			tableID, c.Name, c.DataType, i, c.Cardinality, samples,
		)
		if err != nil {
			return fmt.Errorf("failed to insert column %s.%s: %w", t.Name, c.Name, err)
		}
	}

	return tx.Commit(ctx)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
