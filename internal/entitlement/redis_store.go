// Redis-backed Store for multi-pod deployments. Each pod runs its own
// tracker instance; without a shared store, a balance debited on pod 1 is
// invisible to pod 2. Entries carry no TTL — entitlement state persists
// indefinitely, matching the per-wallet records it replaces.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists entitlement state in Redis so all pods share one view.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies connectivity. Returns the
// store and any connection error (caller decides whether to fall back to the
// in-memory store).
func NewRedisStore(addr, password string, db int, keyPrefix string) (*RedisStore, error) {
	if keyPrefix == "" {
		keyPrefix = "somniax:entitlement:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("Redis entitlement store connected", "addr", addr, "db", db)
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, s.keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.keyPrefix+key, value, 0).Err()
}

// Close shuts down the underlying redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
