package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 3 * time.Second

// compareAndDelete removes the key only when it holds the expected value,
// so concurrent verifications cannot both consume the same code and a
// mismatch never discards a still-valid code.
var compareAndDelete = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == false then
	return -1
end
if v ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore implements Store on a shared Redis instance.
type RedisStore struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client; useful when the caller
// manages the connection lifecycle.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (s *RedisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Decr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.TTL(ctx, key).Result()
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expect string) (CompareResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := compareAndDelete.Run(ctx, s.client, []string{key}, expect).Int64()
	if err != nil {
		return CompareMissing, err
	}

	switch n {
	case 1:
		return CompareDeleted, nil
	case 0:
		return CompareMismatch, nil
	default:
		return CompareMissing, nil
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
