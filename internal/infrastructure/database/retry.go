package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ============================================================================
// 数据访问层重试策略
// ============================================================================
//
// 托管数据库在超出配额时会拒绝请求。仓储层的读操作只对限流类错误
// 做指数退避重试，其他错误直接返回。
// 事务内的语句不重试，由调用方整体失败。
//
// ============================================================================

// 限流类 MySQL 错误码
const (
	erConCountError          = 1040 // Too many connections
	erTooManyUserConnections = 1203
	erUserLimitReached       = 1226
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond}

// NewRetryPolicy 非法参数回落到默认值
func NewRetryPolicy(attempts, baseDelayMs int) RetryPolicy {
	p := DefaultRetryPolicy
	if attempts > 0 {
		p.Attempts = attempts
	}
	if baseDelayMs > 0 {
		p.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	return p
}

// Do 执行 fn，遇到限流错误时按 BaseDelay * 2^n 退避重试，最多 Attempts 次
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsRateLimited(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.BaseDelay << i):
		}
	}
	return err
}

// IsRateLimited 判断是否为限流类错误
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erConCountError, erTooManyUserConnections, erUserLimitReached:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "too many connections")
}
