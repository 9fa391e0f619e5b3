package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) a single-file override store and
// applies its schema.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS relationship_overrides (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	source_table TEXT NOT NULL,
	source_column TEXT NOT NULL,
	target_table TEXT NOT NULL,
	target_column TEXT NOT NULL,
	status TEXT NOT NULL,
	manual INTEGER NOT NULL DEFAULT 0,
	snapshot_fingerprint TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	updated_by TEXT NOT NULL,
	deleted_at TEXT,
	UNIQUE (project_id, source_table, source_column, target_table, target_column)
);

CREATE INDEX IF NOT EXISTS idx_relationship_overrides_project ON relationship_overrides(project_id);

CREATE TABLE IF NOT EXISTS hub_pins (
	project_id TEXT NOT NULL,
	semantic_type TEXT NOT NULL,
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	updated_by TEXT NOT NULL,
	deleted_at TEXT,
	PRIMARY KEY (project_id, semantic_type)
);
`
