package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailsink/backend/internal/domain"
)

// Cache Redis 缓存实现。
//
// 承担两类职责：公共只读接口的邮件列表缓存，以及跨实例共享的
// 固定窗口限流计数。多副本部署时进程内计数会互相看不到，
// 所以限流必须走这里。
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 公共接口邮件列表缓存 ==========

// CacheMessageList 缓存某地址的邮件列表
func (c *Cache) CacheMessageList(addressID string, messages []domain.Message, ttl time.Duration) error {
	key := fmt.Sprintf("messages:%s", addressID)
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedMessageList 获取缓存的邮件列表，缓存未命中时返回 redis.Nil
func (c *Cache) GetCachedMessageList(addressID string) ([]domain.Message, error) {
	key := fmt.Sprintf("messages:%s", addressID)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// InvalidateMessageList 删除缓存的邮件列表（新邮件入库后调用）
func (c *Cache) InvalidateMessageList(addressID string) error {
	key := fmt.Sprintf("messages:%s", addressID)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 限流缓存 ==========

// IncrementRateLimit 增加固定窗口限流计数
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()

	incr := pipe.Incr(c.ctx, key)

	// NX：仅在键没有过期时间时设置，避免窗口被不断顺延
	pipe.ExpireNX(c.ctx, key, window)

	_, err := pipe.Exec(c.ctx)
	if err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// GetRateLimit 获取当前窗口计数
func (c *Cache) GetRateLimit(key string) (int64, error) {
	count, err := c.client.Get(c.ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// ========== 工具方法 ==========

// Health 检查 Redis 健康状态
func (c *Cache) Health() error {
	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
