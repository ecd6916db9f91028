// Package redisstore implements ports.KeyValueStore on Redis using go-redis/v9.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cryptoLevSim/internal/ports"
)

// Config holds connection parameters for the Redis store.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	Logger    ports.Logger
}

// Store keeps each value as a plain string at "<namespace>:<key>".
type Store struct {
	rdb       *redis.Client
	namespace string
	logger    ports.Logger
}

// New connects to Redis, pings it to verify connectivity, and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, errors.New("redisstore: logger is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redisstore: %w: address is required", ports.ErrConfigurationError)
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "levsim"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: ping: %w: %w", ports.ErrConnectionFailed, err)
	}

	cfg.Logger.Info(ctx, "Redis store ready", map[string]interface{}{"addr": cfg.Addr, "namespace": namespace})
	return &Store{rdb: rdb, namespace: namespace, logger: cfg.Logger}, nil
}

func (s *Store) key(k string) string {
	return s.namespace + ":" + k
}

// Get returns the value at key, or false when it does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value at key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: remove %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
