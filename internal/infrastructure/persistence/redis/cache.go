package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"z-song-ai-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 意图/检索结果的读穿缓存
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Set 序列化为 JSON 后写入
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.rdb.Set(ctx, key, bytes, ttl).Err()
}

// GetOrLoadSafe 读穿缓存，singleflight 合并同一键的并发加载。
// 读缓存失败时直接返回错误且不调用 loader，由调用方决定是否绕过缓存。
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	if !IsNil(err) {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		if val, err := c.client.rdb.Get(ctx, key).Bytes(); err == nil {
			return val, nil
		}

		data, err := loader()
		if err != nil {
			return nil, err
		}

		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}

		if err := c.client.rdb.Set(ctx, key, bytes, ttl).Err(); err != nil {
			logger.Warn(ctx, "cache write failed", "key", key, "error", err.Error())
		}
		return bytes, nil
	})

	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.([]byte), nil
}

// InvalidatePrefix 删除以 prefix 开头的全部键，返回删除数量
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePrefix",
		trace.WithAttributes(attribute.String("cache.prefix", prefix)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
	if err := c.client.Del(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}
