package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "trainfinder:"
	redisConnectTimeout = 5 * time.Second
)

// RedisCache is the shared connection behind every RedisStore. Values are
// stored as gzip-compressed JSON under the trainfinder: prefix.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(addr, password string, db int, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return &RedisCache{
		client: client,
		logger: logger.With("component", "redis_cache", "addr", addr),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// store encodes value and writes it with ttl. A zero ttl keeps the key forever.
func (c *RedisCache) store(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	packed, err := gzipCompress(raw)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", key, err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+key, packed, ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	c.logger.Debug("stored", "key", key, "json_bytes", len(raw), "stored_bytes", len(packed))
	return nil
}

// load decodes the value under key into dest. It reports false without an
// error when the key does not exist.
func (c *RedisCache) load(ctx context.Context, key string, dest any) (bool, error) {
	packed, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}

	raw, err := gzipDecompress(packed)
	if err != nil {
		return false, fmt.Errorf("decompressing %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// RedisStore is a Cache of JSON-encodable values. Redis failures are logged
// and reported as misses so callers fall back to recomputing.
type RedisStore[V any] struct {
	redis  *RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore[V any](redis *RedisCache, ttl time.Duration, logger *slog.Logger) *RedisStore[V] {
	return &RedisStore[V]{
		redis:  redis,
		ttl:    ttl,
		logger: logger.With("component", "redis_store"),
	}
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V
	found, err := s.redis.load(ctx, key, &value)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
		var zero V
		return zero, false
	}
	return value, found
}

func (s *RedisStore[V]) Put(ctx context.Context, key string, value V) {
	if err := s.redis.store(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
