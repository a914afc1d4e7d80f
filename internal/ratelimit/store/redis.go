package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// incrementWithExpiryScript atomically increments a counter and sets its
// expiration when the key is created.
// KEYS[1] = key, ARGV[1] = delta, ARGV[2] = expiration in seconds.
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// RedisStore implements Store using Redis. It is intended for
// multi-gateway deployments that share rate accounting.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *zap.Logger
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		Prefix:       "ratelimit:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// NewRedisStoreFromClient creates a store over an existing client.
// Used by tests with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: zap.NewNop(),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, &ErrKeyNotFound{Key: key}
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, expiration).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// IncrementWithExpiry implements Store using a Lua script so the
// increment and the expiry are a single atomic operation.
func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	seconds := int64(expiration / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	value, err := incrementWithExpiryScript.Run(ctx, s.client, []string{s.prefix + key}, delta, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return value, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
