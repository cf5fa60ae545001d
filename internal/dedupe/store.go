// Package dedupe suppresses duplicate webhook notifications across replicas.
package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store remembers notification ids whose processing already succeeded. Seen
// and MarkSeen are separate so a failed envelope is never marked and a
// redelivery can retry it.
type Store interface {
	// Seen reports whether id has been marked before.
	Seen(ctx context.Context, id string) (bool, error)
	// MarkSeen records id after its envelope was processed.
	MarkSeen(ctx context.Context, id string) error
}

// RedisStore tracks ids with a TTL. Failures are reported as unseen: the
// stage machine remains the authority on duplicate delivery, the store only
// cuts redundant work.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Seen(ctx context.Context, id string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, seenKey(id)).Result()
	if err != nil {
		zap.L().Warn("dedupe check failed, treating as unseen", zap.String("id", id), zap.Error(err))
		return false, nil
	}
	return n > 0, nil
}

func (s *RedisStore) MarkSeen(ctx context.Context, id string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Set(ctx, seenKey(id), 1, s.ttl).Err()
}

func seenKey(id string) string { return "webhook:seen:" + id }

// None performs no deduplication.
type None struct{}

var _ Store = None{}

func (None) Seen(context.Context, string) (bool, error) { return false, nil }

func (None) MarkSeen(context.Context, string) error { return nil }
