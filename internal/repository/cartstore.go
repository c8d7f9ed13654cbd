package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/happyhour-app/happyhour/internal/domain/cart"
)

const cartKeyPrefix = "cart:"

var _ cart.SnapshotStore = (*RedisCartStore)(nil)

// RedisCartStore persists cart snapshots in Redis, keyed by session. The key
// TTL mirrors the cart's expiry so an abandoned cart disappears on its own.
type RedisCartStore struct {
	client *redis.Client
}

// NewRedisCartStore returns a RedisCartStore backed by the given client.
func NewRedisCartStore(client *redis.Client) *RedisCartStore {
	return &RedisCartStore{client: client}
}

// Save writes the snapshot with a TTL derived from expiresAt. A snapshot that
// is already past its expiry is deleted instead of stored.
func (s *RedisCartStore) Save(ctx context.Context, sessionID string, blob []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, sessionID)
	}
	if err := s.client.Set(ctx, cartKeyPrefix+sessionID, blob, ttl).Err(); err != nil {
		return fmt.Errorf("saving cart for session %q: %w", sessionID, err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when the session has no cart.
func (s *RedisCartStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	blob, err := s.client.Get(ctx, cartKeyPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("loading cart for session %q: %w", sessionID, err)
	}
	return blob, nil
}

// Delete removes the session's snapshot. Deleting an absent key is not an error.
func (s *RedisCartStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("deleting cart for session %q: %w", sessionID, err)
	}
	return nil
}
