package authcorepg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS provider_grants (
    subject_id TEXT PRIMARY KEY,
    grant_value TEXT NOT NULL,
    updated_unix BIGINT NOT NULL
);
`)
	return err
}
