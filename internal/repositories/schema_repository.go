package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contextgraph/internal/models"
)

// DefaultSampleLimit bounds the distinct values sampled per column.
const DefaultSampleLimit = 1000

// SchemaRepository profiles the tables of a live Postgres schema into
// snapshot tables: row counts, distinct counts and a bounded sample of
// distinct values per column.
type SchemaRepository struct {
	pool        *pgxpool.Pool
	sampleLimit int
}

func NewSchemaRepository(pool *pgxpool.Pool, sampleLimit int) *SchemaRepository {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	return &SchemaRepository{pool: pool, sampleLimit: sampleLimit}
}

// GetTables returns all table names in the specified schema
func (r *SchemaRepository) GetTables(ctx context.Context, schema string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := r.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetColumns returns name and type of every column in ordinal order.
func (r *SchemaRepository) GetColumns(ctx context.Context, schema, table string) ([]models.Column, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []models.Column
	for rows.Next() {
		var col models.Column
		if err := rows.Scan(&col.Name, &col.DataType); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ProfileTable builds a snapshot table with the given truth type.
func (r *SchemaRepository) ProfileTable(ctx context.Context, schema, table string, truth models.TruthType) (models.Table, error) {
	t := models.Table{Name: table, TruthType: truth, UploadedAt: time.Now().UTC()}
	ident := pgx.Identifier{schema, table}.Sanitize()

	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&t.RowCount); err != nil {
		return t, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	columns, err := r.GetColumns(ctx, schema, table)
	if err != nil {
		return t, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}

	for _, col := range columns {
		colIdent := pgx.Identifier{col.Name}.Sanitize()

		countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT %s::text) FROM %s", colIdent, ident)
		if err := r.pool.QueryRow(ctx, countQuery).Scan(&col.Cardinality); err != nil {
			return t, fmt.Errorf("failed to count distinct %s.%s: %w", table, col.Name, err)
		}

		sampleQuery := fmt.Sprintf(
			"SELECT DISTINCT %[1]s::text FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY 1 LIMIT $1",
			colIdent, ident,
		)
		rows, err := r.pool.Query(ctx, sampleQuery, r.sampleLimit)
		if err != nil {
			return t, fmt.Errorf("failed to sample %s.%s: %w", table, col.Name, err)
		}
		samples, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return t, fmt.Errorf("failed to sample %s.%s: %w", table, col.Name, err)
		}
		col.SampleValues = samples
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}
