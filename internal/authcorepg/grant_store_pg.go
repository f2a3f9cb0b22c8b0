package authcorepg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jarvislab/authcore/internal/authcore"
)

// PostgresGrantStore persists provider refresh credentials in PostgreSQL.
type PostgresGrantStore struct {
	pool *pgxpool.Pool
}

// NewPostgresGrantStore constructs a Postgres store.
func NewPostgresGrantStore(pool *pgxpool.Pool) *PostgresGrantStore {
	return &PostgresGrantStore{pool: pool}
}

// Save upserts the subject's grant row.
func (store *PostgresGrantStore) Save(ctx context.Context, subjectID string, grant string) error {
	if grant == "" {
		return fmt.Errorf("grant_store.save.postgres: %w", authcore.ErrGrantEmpty)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO provider_grants (subject_id, grant_value, updated_unix)
VALUES ($1, $2, $3)
ON CONFLICT (subject_id) DO UPDATE SET grant_value = EXCLUDED.grant_value, updated_unix = EXCLUDED.updated_unix
`, subjectID, grant, time.Now().UTC().Unix())
	if execErr != nil {
		return fmt.Errorf("grant_store.save.postgres: %w", execErr)
	}
	return nil
}

// Lookup returns the subject's grant.
func (store *PostgresGrantStore) Lookup(ctx context.Context, subjectID string) (string, error) {
	var grant string
	row := store.pool.QueryRow(ctx, `
SELECT grant_value
FROM provider_grants
WHERE subject_id = $1
`, subjectID)
	if scanErr := row.Scan(&grant); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", fmt.Errorf("grant_store.lookup.postgres: %w", authcore.ErrGrantNotFound)
		}
		return "", fmt.Errorf("grant_store.lookup.postgres: %w", scanErr)
	}
	return grant, nil
}

// Delete removes the subject's grant row; deleting an absent row is not an error.
func (store *PostgresGrantStore) Delete(ctx context.Context, subjectID string) error {
	_, execErr := store.pool.Exec(ctx, `
DELETE FROM provider_grants
WHERE subject_id = $1
`, subjectID)
	if execErr != nil {
		return fmt.Errorf("grant_store.delete.postgres: %w", execErr)
	}
	return nil
}
