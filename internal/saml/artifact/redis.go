package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openidx/saml-idp/internal/metrics"
)

const redisKeyPrefix = "saml_artifact:"

// RedisStore is a Redis-backed artifact store. GETDEL makes the
// fetch-and-delete a single server-side operation, so redemption is
// exactly-once across service instances; expiry is enforced by key TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by the given Redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores a payload under the artifact ID with the given TTL
func (s *RedisStore) Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.client.Set(ctx, redisKeyPrefix+id, payload, ttl).Err()
	metrics.ObserveArtifactStore("redis", "put", time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

// Pull atomically fetches and deletes the payload for the artifact ID
func (s *RedisStore) Pull(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+id).Bytes()
	metrics.ObserveArtifactStore("redis", "pull", time.Since(start))

	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pull artifact: %w", err)
	}
	return payload, nil
}

// Backend reports the backend name
func (s *RedisStore) Backend() string {
	return "redis"
}
