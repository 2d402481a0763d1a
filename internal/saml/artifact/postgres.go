package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openidx/saml-idp/internal/metrics"
)

// PostgresStore is a Postgres-backed artifact store. The fetch-and-delete is
// a single DELETE ... RETURNING statement, so concurrent redemptions of one
// artifact are serialized by row locking and exactly one sees the payload.
//
// Schema:
//
//	CREATE TABLE saml_artifacts (
//	    id         TEXT PRIMARY KEY,
//	    payload    BYTEA NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put stores a payload under the artifact ID with the given TTL
func (s *PostgresStore) Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saml_artifacts (id, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = $2, expires_at = $3
	`, id, payload, time.Now().Add(ttl))
	metrics.ObserveArtifactStore("postgres", "put", time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

// Pull atomically fetches and deletes the payload for the artifact ID.
// Expired rows are deleted but their payload is not returned.
func (s *PostgresStore) Pull(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()

	var payload []byte
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, `
		DELETE FROM saml_artifacts WHERE id = $1
		RETURNING payload, expires_at
	`, id).Scan(&payload, &expiresAt)
	metrics.ObserveArtifactStore("postgres", "pull", time.Since(start))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pull artifact: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, nil
	}
	return payload, nil
}

// Backend reports the backend name
func (s *PostgresStore) Backend() string {
	return "postgres"
}
