package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	routingCachePrefix = "mes:routing:resolve:"
	routingCacheTTL    = 30 * time.Minute

	// routingCacheNone 负缓存哨兵：该节点确定解析不到路线
	routingCacheNone = "__none__"
)

// RoutingCache 路线解析缓存
// 按BOM节点ID缓存解析结果；失效必须与路线变更写入同步发生，
// 漏失效会导致过期路线被排程。
type RoutingCache interface {
	Get(ctx context.Context, bomItemID string) (string, bool, error)
	Set(ctx context.Context, bomItemID, routingID string) error
	Invalidate(ctx context.Context, bomItemIDs ...string) error
}

// redisRoutingCache 基于Redis的路线解析缓存
type redisRoutingCache struct {
	rdb *redis.Client
}

// NewRedisRoutingCache 创建Redis路线缓存
func NewRedisRoutingCache(rdb *redis.Client) RoutingCache {
	return &redisRoutingCache{rdb: rdb}
}

func (c *redisRoutingCache) Get(ctx context.Context, bomItemID string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, routingCachePrefix+bomItemID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisRoutingCache) Set(ctx context.Context, bomItemID, routingID string) error {
	if routingID == "" {
		routingID = routingCacheNone
	}
	return c.rdb.Set(ctx, routingCachePrefix+bomItemID, routingID, routingCacheTTL).Err()
}

func (c *redisRoutingCache) Invalidate(ctx context.Context, bomItemIDs ...string) error {
	if len(bomItemIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(bomItemIDs))
	for _, id := range bomItemIDs {
		keys = append(keys, routingCachePrefix+id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// memoryRoutingCache 进程内路线缓存
// 测试及无Redis部署时使用。
type memoryRoutingCache struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryRoutingCache 创建内存路线缓存
func NewMemoryRoutingCache() RoutingCache {
	return &memoryRoutingCache{items: make(map[string]string)}
}

func (c *memoryRoutingCache) Get(_ context.Context, bomItemID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[bomItemID]
	return val, ok, nil
}

func (c *memoryRoutingCache) Set(_ context.Context, bomItemID, routingID string) error {
	if routingID == "" {
		routingID = routingCacheNone
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[bomItemID] = routingID
	return nil
}

func (c *memoryRoutingCache) Invalidate(_ context.Context, bomItemIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range bomItemIDs {
		delete(c.items, id)
	}
	return nil
}
