package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'citizen' CHECK (role IN ('citizen', 'admin')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id          UUID PRIMARY KEY,
		description TEXT NOT NULL,
		image_path  TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'Reported',
		lat         DOUBLE PRECISION NOT NULL,
		lng         DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`ALTER TABLE issues ADD COLUMN IF NOT EXISTS user_id UUID REFERENCES users(id)`,
	`CREATE INDEX IF NOT EXISTS issues_created_at_idx ON issues (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS issues_user_id_idx ON issues (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		id         UUID PRIMARY KEY,
		issue_id   UUID NOT NULL UNIQUE REFERENCES issues(id) ON DELETE CASCADE,
		issue_type TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		severity   INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 5),
		priority   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS resolution_logs (
		id         UUID PRIMARY KEY,
		issue_id   UUID NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		remarks    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE resolution_logs ADD COLUMN IF NOT EXISTS admin_id UUID REFERENCES users(id)`,
}

// Migrate creates the tables if they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
