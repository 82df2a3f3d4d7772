package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 预算维度的分布式锁
// ============================================================================
//
// 记录支出是 "读可用余额 -> 判断是否追加拨款 -> 写支出" 的先读后写流程。
// 数据库事务里已经对预算行 SELECT ... FOR UPDATE，单库下足以避免超支；
// 分布式锁在多实例部署时把同一预算的请求排队，并给等待时间设置上限，
// 避免大量请求同时堆在行锁上。
//
// 加锁：SET key value NX EX timeout
// 解锁：Lua 脚本比对 value 后删除，防止误删其他请求的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞加锁，每隔 retryInterval 重试一次，直到成功、ctx 结束或超过 maxRetries
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只释放自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// NewBudgetLock 同一预算的支出记录串行执行，不同预算互不影响
func NewBudgetLock(client *redis.Client, budgetID, requestID string, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, fmt.Sprintf("anggaran:lock:budget:%s", budgetID), requestID, expiration)
}
