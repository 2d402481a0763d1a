// Package artifact provides the single-use artifact store backing the SAML
// 2.0 HTTP-Artifact binding. An artifact maps to one serialized protocol
// message and is redeemable at most once: Pull atomically removes the entry,
// so concurrent resolutions for the same artifact see the payload exactly
// once between them.
package artifact

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openidx/saml-idp/internal/common/config"
	"github.com/openidx/saml-idp/internal/common/database"
)

// TypeCode is the SAML 2.0 artifact type code (0x0004).
const TypeCode = 0x0004

// Store is a keyed, single-use, expiring store mapping artifact identifiers
// to serialized response payloads.
type Store interface {
	// Put stores a payload under the artifact ID with the given lifetime.
	Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error

	// Pull atomically fetches and deletes the payload for the artifact ID.
	// A missing or expired artifact returns (nil, nil): absence is not an
	// error, and the delete-on-miss is a no-op. After any Pull, the store
	// holds no entry for the ID.
	Pull(ctx context.Context, id string) ([]byte, error)

	// Backend reports the backend name for logging and metrics.
	Backend() string
}

// New selects a store backend from configuration. The postgres and redis
// backends require their respective connections to be non-nil.
func New(cfg *config.Config, db *database.PostgresDB, rds *database.RedisClient) (Store, error) {
	switch cfg.ArtifactStore {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreRedis:
		if rds == nil {
			return nil, fmt.Errorf("redis artifact store selected but no redis connection configured")
		}
		return NewRedisStore(rds.Client), nil
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres artifact store selected but no database connection configured")
		}
		return NewPostgresStore(db.Pool), nil
	default:
		return nil, fmt.Errorf("unknown artifact store backend %q", cfg.ArtifactStore)
	}
}

// NewID generates a SAML 2.0 artifact for the given source entity ID and
// endpoint index: base64(typecode || index || sha1(entityID) || 20 random
// bytes). The full base64 string doubles as the store key.
func NewID(entityID string, endpointIndex uint16) (string, error) {
	buf := make([]byte, 44)
	binary.BigEndian.PutUint16(buf[0:2], TypeCode)
	binary.BigEndian.PutUint16(buf[2:4], endpointIndex)

	sourceID := sha1.Sum([]byte(entityID))
	copy(buf[4:24], sourceID[:])

	if _, err := rand.Read(buf[24:44]); err != nil {
		return "", fmt.Errorf("failed to generate artifact message handle: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}
