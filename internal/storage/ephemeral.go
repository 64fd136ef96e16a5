package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-relay/internal/config"
)

// EphemeralStore is the expiring key-value store backing all transient
// relay state: rate windows, batch buffers, pending gate decisions and
// edit sessions. Per-key operations are atomic primitives of the store
// itself so concurrent submissions never race on read-modify-write.
// Expiry is the only garbage collection.
type EphemeralStore interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetEx stores value under key with a time-to-live.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically increments the integer at key and returns the
	// new value, creating it at 1 when absent.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire refreshes the time-to-live of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ZAdd adds a scored member to the ordered set at key.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRemRangeByScore removes members with score in [min, max].
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	// ZCard returns the cardinality of the ordered set.
	ZCard(ctx context.Context, key string) (int64, error)
	// ZOldest returns the lowest-scored member, if any.
	ZOldest(ctx context.Context, key string) (member string, score float64, ok bool, err error)
}

// NewEphemeralStore returns the Redis-backed store when Redis is
// configured, otherwise the in-process store. Single-instance
// deployments work fine without Redis; state then does not survive a
// restart, which only costs in-flight batches and pending decisions.
func NewEphemeralStore(cfg *config.Config) EphemeralStore {
	if cfg.Redis.Enabled {
		return NewRedisStore(cfg)
	}
	return NewMemoryStore()
}

// RedisStore implements EphemeralStore on a Redis connection.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the configured Redis instance.
func NewRedisStore(cfg *config.Config) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &RedisStore{client: client}
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.SetEx(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

func (s *RedisStore) ZOldest(ctx context.Context, key string) (string, float64, bool, error) {
	vals, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return "", 0, false, err
	}
	if len(vals) == 0 {
		return "", 0, false, nil
	}
	member, _ := vals[0].Member.(string)
	return member, vals[0].Score, true, nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
