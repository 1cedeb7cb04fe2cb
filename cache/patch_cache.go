package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"midiplayer/logger"
)

const patchKeyPrefix = "patch:"

// PatchCache 把拉取到的音色补丁和 MIDI 文件缓存在 Redis 里，key 为 patch:<location>
type PatchCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewPatchCache ttl 为 0 时不过期
func NewPatchCache(client redis.Cmdable, ttl time.Duration) *PatchCache {
	return &PatchCache{client: client, ttl: ttl}
}

func patchKey(location string) string {
	return patchKeyPrefix + location
}

// Get 未命中返回 nil, nil
func (c *PatchCache) Get(ctx context.Context, location string) ([]byte, error) {
	data, err := c.client.Get(ctx, patchKey(location)).Bytes()
	if errors.Is(err, redis.Nil) {
		logger.Debug("补丁缓存不存在", logger.String("location", location))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("补丁缓存命中", logger.String("location", location), logger.Int("dataSize", len(data)))
	return data, nil
}

// Set 写入缓存
func (c *PatchCache) Set(ctx context.Context, location string, data []byte) error {
	if err := c.client.Set(ctx, patchKey(location), data, c.ttl).Err(); err != nil {
		logger.Error("设置补丁缓存失败",
			logger.String("location", location),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// Purge 删除所有补丁缓存，返回删除的数量
func (c *PatchCache) Purge(ctx context.Context) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, patchKeyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	logger.Info("批量删除补丁缓存成功", logger.Int("deletedCount", deleted))
	return deleted, nil
}
