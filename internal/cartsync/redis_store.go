package cartsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unibazzar/unibazzar-cart/pkg/redis"
)

type redisSnapshotClient interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Ping(ctx context.Context) error
	SnapshotKey(name string) string
}

// RedisStore keeps snapshots as plain string values without expiry.
type RedisStore struct {
	client redisSnapshotClient
}

func NewRedisStore(client redisSnapshotClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := r.client.GetBytes(ctx, r.client.SnapshotKey(key))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return payload, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, payload []byte) error {
	if err := r.client.Set(ctx, r.client.SnapshotKey(key), payload, 0); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
