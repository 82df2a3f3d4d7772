package repository

import (
	"context"

	"anggaran/internal/infrastructure/database"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var retryPolicy = database.DefaultRetryPolicy

// SetRetryPolicy 启动时根据配置设置读操作的重试策略
func SetRetryPolicy(p database.RetryPolicy) {
	retryPolicy = p
}

// read 在事务内直接执行；事务外按限流重试策略执行
func read(ctx context.Context, db, tx *gorm.DB, fn func(conn *gorm.DB) error) error {
	if tx != nil {
		return fn(tx.WithContext(ctx))
	}
	return retryPolicy.Do(ctx, func() error {
		return fn(db.WithContext(ctx))
	})
}

// write tx 为 nil 时使用非事务连接
func write(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = db
	}
	return tx.WithContext(ctx)
}

// sumRow 分组汇总查询的结果行
type sumRow struct {
	GroupID string
	Total   decimal.Decimal
}

func sumsToMap(rows []sumRow) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.GroupID] = r.Total
	}
	return out
}
