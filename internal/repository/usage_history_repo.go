package repository

import (
	"context"
	"errors"
	"time"

	"anggaran/internal/model"

	"gorm.io/gorm"
)

var ErrUsageHistoryNotFound = errors.New("riwayat penggunaan tidak ditemukan")

// UsageHistoryRepository 预算使用流水，只追加
type UsageHistoryRepository struct {
	db *gorm.DB
}

func NewUsageHistoryRepository(db *gorm.DB) *UsageHistoryRepository {
	return &UsageHistoryRepository{db: db}
}

func (r *UsageHistoryRepository) Create(ctx context.Context, tx *gorm.DB, history *model.BudgetUsageHistory) error {
	return write(ctx, r.db, tx).Create(history).Error
}

func (r *UsageHistoryRepository) GetByExpenseID(ctx context.Context, expenseID string) (*model.BudgetUsageHistory, error) {
	var history model.BudgetUsageHistory
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Where("expense_id = ?", expenseID).First(&history).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUsageHistoryNotFound
		}
		return nil, err
	}
	return &history, nil
}

// ListByBudget 单个预算的使用流水，按记录时间升序，供图表使用
func (r *UsageHistoryRepository) ListByBudget(ctx context.Context, budgetID string) ([]*model.BudgetUsageHistory, error) {
	var rows []*model.BudgetUsageHistory
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Where("budget_id = ?", budgetID).Order("recorded_at ASC, id ASC").Find(&rows).Error
	})
	return rows, err
}

// ListSince 返回 since 之后的流水，用于按月汇总。
// 按月分组放在内存里做，避免 MySQL DATE_FORMAT 与其他方言的差异
func (r *UsageHistoryRepository) ListSince(ctx context.Context, since time.Time) ([]*model.BudgetUsageHistory, error) {
	var rows []*model.BudgetUsageHistory
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Where("recorded_at >= ?", since).Order("recorded_at ASC").Find(&rows).Error
	})
	return rows, err
}

func (r *UsageHistoryRepository) DeleteByBudget(ctx context.Context, tx *gorm.DB, budgetID string) (int64, error) {
	result := write(ctx, r.db, tx).Where("budget_id = ?", budgetID).Delete(&model.BudgetUsageHistory{})
	return result.RowsAffected, result.Error
}
