package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contextgraph/internal/config"
)

// EnsureDatabaseExists creates the target database using the admin
// credentials. It is a no-op when no admin user is configured.
func EnsureDatabaseExists(ctx context.Context, cfg config.DatabaseConfig) error {
	if cfg.AdminUser == "" {
		return nil
	}

	userInfo := url.UserPassword(cfg.AdminUser, cfg.AdminPassword)
	dsn := fmt.Sprintf("postgres://%s@%s:%s/postgres?sslmode=disable", userInfo.String(), cfg.Host, cfg.Port)

	slog.Info("checking database", "database", cfg.Name)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err = pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if exists {
		return nil
	}

	// CREATE DATABASE cannot run inside a transaction.
	if _, err := pool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{cfg.Name}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	slog.Info("database created", "database", cfg.Name)
	return nil
}

// DSN builds the postgres URL for cfg.
func DSN(cfg config.DatabaseConfig) string {
	userInfo := url.UserPassword(cfg.User, cfg.Password)
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s?sslmode=disable",
		userInfo.String(),
		cfg.Host,
		cfg.Port,
		url.PathEscape(cfg.Name),
	)
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = 25
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database connection pool established",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
	)
	return pool, nil
}
