package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements crea las cuatro colecciones remotas. Todas las filas llevan owner_id.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS module_progress (
		owner_id     TEXT        NOT NULL,
		module_id    TEXT        NOT NULL,
		session_id   TEXT        NOT NULL,
		payload      BYTEA       NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL,
		completed    BOOLEAN     NOT NULL DEFAULT FALSE,
		PRIMARY KEY (owner_id, module_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_module_progress_owner_updated
		ON module_progress (owner_id, last_updated DESC)`,
	`CREATE TABLE IF NOT EXISTS interactive_progress (
		owner_id     TEXT        NOT NULL,
		module_id    TEXT        NOT NULL,
		session_id   TEXT        NOT NULL,
		payload      BYTEA       NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL,
		completed    BOOLEAN     NOT NULL DEFAULT FALSE,
		PRIMARY KEY (owner_id, module_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interactive_progress_owner_updated
		ON interactive_progress (owner_id, last_updated DESC)`,
	`CREATE TABLE IF NOT EXISTS user_insights (
		owner_id         TEXT        PRIMARY KEY,
		career_thinking  JSONB       NOT NULL DEFAULT '[]',
		current_concerns JSONB       NOT NULL DEFAULT '[]',
		thought_flow     JSONB       NOT NULL DEFAULT '[]',
		patterns         JSONB       NOT NULL DEFAULT '[]',
		last_analyzed    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS value_snapshots (
		id                 TEXT        PRIMARY KEY,
		owner_id           TEXT        NOT NULL,
		module_id          TEXT,
		axes               JSONB       NOT NULL,
		reasoning          JSONB       NOT NULL,
		overall_confidence INTEGER     NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		last_updated       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_value_snapshots_owner_created
		ON value_snapshots (owner_id, created_at DESC, id DESC)`,
}

// EnsureSchema aplica el esquema remoto; es idempotente.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
