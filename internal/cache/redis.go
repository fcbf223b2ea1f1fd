package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyNamespace = "discounts"
	scanBatch    = 500
)

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis is a Cache shared between server replicas. Values are stored as JSON
// under "<namespace>:<prefix>:<key>" with the configured TTL. Backend
// failures are logged and behave as a miss or a dropped write.
type Redis[V any] struct {
	store  cmdable
	prefix string
	ttl    time.Duration
}

var _ Cache[int] = (*Redis[int])(nil)

// NewRedisClient parses url, connects and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// NewRedis returns a Redis cache that keeps its keys under prefix.
func NewRedis[V any](client redis.UniversalClient, prefix string, ttl time.Duration) *Redis[V] {
	return newRedis[V](client, prefix, ttl)
}

func newRedis[V any](store cmdable, prefix string, ttl time.Duration) *Redis[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis[V]{
		store:  store,
		prefix: buildKey(keyNamespace, prefix),
		ttl:    ttl,
	}
}

// Get decodes the value stored at key.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	data, err := r.store.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		zctx.From(ctx).Warn("Redis cache entry is malformed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return v, true
}

// Set encodes value and stores it at key with the cache TTL.
func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		zctx.From(ctx).Warn("Redis cache value not encodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.store.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key.
func (r *Redis[V]) Delete(ctx context.Context, key string) {
	if err := r.store.Del(ctx, r.key(key)).Err(); err != nil {
		zctx.From(ctx).Warn("Redis cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear deletes every key under the cache prefix.
func (r *Redis[V]) Clear(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := r.store.Scan(ctx, cursor, r.prefix+":*", scanBatch).Result()
		if err != nil {
			zctx.From(ctx).Warn("Redis cache scan failed", zap.String("prefix", r.prefix), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := r.store.Del(ctx, keys...).Err(); err != nil {
				zctx.From(ctx).Warn("Redis cache delete failed", zap.String("prefix", r.prefix), zap.Error(err))
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

// Ping verifies the connection.
func (r *Redis[V]) Ping(ctx context.Context) error {
	return r.store.Ping(ctx).Err()
}

func (r *Redis[V]) key(key string) string {
	return r.prefix + ":" + key
}

func buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
