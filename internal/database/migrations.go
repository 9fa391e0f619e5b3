package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations applies the postgres schema. Every statement is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		createDatasetTables,
		createDatasetColumns,
		createRelationshipOverrides,
		createHubPins,
	}

	for i, migration := range migrations {
		slog.Debug("running migration", "step", i+1, "total", len(migrations))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("migrations completed", "count", len(migrations))
	return nil
}

// dataset_tables and dataset_columns are written by the ingestion pipeline
// and only read here.
const createDatasetTables = `
CREATE TABLE IF NOT EXISTS dataset_tables (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id UUID NOT NULL,
  name TEXT NOT NULL,
  truth_type TEXT NOT NULL DEFAULT 'other',
  row_count BIGINT NOT NULL DEFAULT 0,
  uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  deleted_at TIMESTAMPTZ,
  UNIQUE (project_id, name)
);

CREATE INDEX IF NOT EXISTS idx_dataset_tables_project_id ON dataset_tables(project_id);
`

const createDatasetColumns = `
CREATE TABLE IF NOT EXISTS dataset_columns (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  table_id UUID NOT NULL REFERENCES dataset_tables(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  data_type TEXT NOT NULL DEFAULT '',
  ordinal_position INT NOT NULL DEFAULT 0,
  cardinality INT NOT NULL DEFAULT 0,
  sample_values TEXT[] NOT NULL DEFAULT '{}',
  UNIQUE (table_id, name)
);

CREATE INDEX IF NOT EXISTS idx_dataset_columns_table_id ON dataset_columns(table_id);
`

const createRelationshipOverrides = `
CREATE TABLE IF NOT EXISTS relationship_overrides (
  id UUID PRIMARY KEY,
  project_id UUID NOT NULL,
  source_table TEXT NOT NULL,
  source_column TEXT NOT NULL,
  target_table TEXT NOT NULL,
  target_column TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('confirmed', 'rejected', 'deleted')),
  manual BOOLEAN NOT NULL DEFAULT false,
  snapshot_fingerprint TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_by TEXT NOT NULL DEFAULT 'anonymous',
  deleted_at TIMESTAMPTZ,
  UNIQUE (project_id, source_table, source_column, target_table, target_column)
);

CREATE INDEX IF NOT EXISTS idx_relationship_overrides_project_id ON relationship_overrides(project_id);
`

const createHubPins = `
CREATE TABLE IF NOT EXISTS hub_pins (
  project_id UUID NOT NULL,
  semantic_type TEXT NOT NULL,
  table_name TEXT NOT NULL,
  column_name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_by TEXT NOT NULL DEFAULT 'anonymous',
  deleted_at TIMESTAMPTZ,
  PRIMARY KEY (project_id, semantic_type)
);
`
