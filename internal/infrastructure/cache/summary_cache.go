package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyBudgetSummary = "anggaran:summary:budget:"
	KeyDashboard     = "anggaran:summary:dashboard"
	KeyBudgetList    = "anggaran:summary:budgets"
)

// SummaryCache 缓存预算汇总结果（已用/追加/可用金额与仪表盘）
//
// 汇总金额永远以数据库为准，缓存只为减少分组查询次数；
// 任何写操作提交后都要调用 Invalidate。
// client 为 nil 时所有操作都是空操作，用于未启用 Redis 的部署。
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func BudgetKey(budgetID string) string {
	return keyBudgetSummary + budgetID
}

// Get 读取缓存并反序列化到 dst，未命中返回 false
func (c *SummaryCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SummaryCache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate 删除指定预算的汇总以及列表、仪表盘缓存
func (c *SummaryCache) Invalidate(ctx context.Context, budgetIDs ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	keys := []string{KeyDashboard, KeyBudgetList}
	for _, id := range budgetIDs {
		keys = append(keys, BudgetKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
