package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations creates the ledger tables
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pies (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			thread_token TEXT NOT NULL UNIQUE,
			declared_value NUMERIC NOT NULL CHECK (declared_value >= 0),
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_pies_open ON pies(created_at) WHERE NOT settled;

		CREATE TABLE IF NOT EXISTS pie_slices (
			id TEXT PRIMARY KEY,
			pie_id TEXT NOT NULL REFERENCES pies(id) ON DELETE CASCADE,
			claimant TEXT NOT NULL,
			value NUMERIC NOT NULL CHECK (value >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_pie_slices_pie_id ON pie_slices(pie_id);

		CREATE TABLE IF NOT EXISTS pie_settlements (
			pie_id TEXT PRIMARY KEY,
			claimant TEXT NOT NULL,
			total NUMERIC NOT NULL,
			slice_count INTEGER NOT NULL,
			average NUMERIC NOT NULL,
			percentage NUMERIC NOT NULL DEFAULT 0,
			settled_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}
