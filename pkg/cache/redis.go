// Package cache provides the shared Redis store used for rate-limit buckets
// and cross-replica coordination, plus a process-local cache for read models.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Store is the external key-value store contract. The gateway's rate limiter
// is its primary consumer; SetNX/Decr give the atomic token-bucket
// primitives the limiter needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// SetNX creates the key with a TTL only if absent; reports whether it
	// was created.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	// Decr atomically decrements the integer at key and returns the result.
	Decr(ctx context.Context, key string) (int64, error)

	HealthCheck(ctx context.Context) error
}

type redisStore struct {
	client redis.UniversalClient
	logger logger.Logger
	ttl    time.Duration
}

// NewRedisStore connects to one or more Redis nodes. A single address yields
// a plain client; multiple addresses a cluster client.
func NewRedisStore(nodes []string, password string, db int, defaultTTL time.Duration, log logger.Logger) (Store, error) {
	var client redis.UniversalClient
	if len(nodes) == 1 {
		client = redis.NewClient(&redis.Options{
			Addr:         nodes[0],
			Password:     password,
			DB:           db,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     10,
			MinIdleConns: 5,
		})
	} else {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        nodes,
			Password:     password,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     10,
			MinIdleConns: 5,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client, logger: log, ttl: defaultTTL}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		monitoring.RecordCacheOperation("get", "miss")
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		monitoring.RecordCacheOperation("get", "error")
		return nil, err
	}
	monitoring.RecordCacheOperation("get", "hit")
	return b, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return err
	}
	monitoring.RecordCacheOperation("set", "success")
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		monitoring.RecordCacheOperation("delete", "error")
		return err
	}
	monitoring.RecordCacheOperation("delete", "success")
	return nil
}

func (s *redisStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(value)
	if err != nil {
		return false, fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	created, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		monitoring.RecordCacheOperation("setnx", "error")
		return false, err
	}
	monitoring.RecordCacheOperation("setnx", "success")
	return created, nil
}

func (s *redisStore) Decr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		monitoring.RecordCacheOperation("decr", "error")
		return 0, err
	}
	monitoring.RecordCacheOperation("decr", "success")
	return n, nil
}

func (s *redisStore) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = c
	}
	return s.client.Ping(ctx).Err()
}

func encode(value interface{}) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return json.Marshal(x)
	}
}
