package repository

import (
	"context"
	"errors"

	"anggaran/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrExpenseNotFound = errors.New("pengeluaran tidak ditemukan")

type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, tx *gorm.DB, expense *model.Expense) error {
	return write(ctx, r.db, tx).Create(expense).Error
}

func (r *ExpenseRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Expense, error) {
	var expense model.Expense
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		return conn.Where("id = ?", id).First(&expense).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, err
	}
	return &expense, nil
}

// SetAllocation 回填支出关联的追加拨款
func (r *ExpenseRepository) SetAllocation(ctx context.Context, tx *gorm.DB, expenseID, allocationID string) error {
	result := write(ctx, r.db, tx).
		Model(&model.Expense{}).
		Where("id = ?", expenseID).
		UpdateColumn("additional_allocation_id", allocationID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// List budgetID 为空时查询全部，按提交时间倒序分页
func (r *ExpenseRepository) List(ctx context.Context, budgetID string, page, pageSize int) ([]*model.Expense, int64, error) {
	var expenses []*model.Expense
	var total int64

	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		query := conn.Model(&model.Expense{})
		if budgetID != "" {
			query = query.Where("budget_id = ?", budgetID)
		}
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		return query.
			Order("submitted_at DESC").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&expenses).Error
	})

	return expenses, total, err
}

// ListByIDs 批量读取支出，不存在的ID直接忽略
func (r *ExpenseRepository) ListByIDs(ctx context.Context, ids []string) ([]*model.Expense, error) {
	var expenses []*model.Expense
	if len(ids) == 0 {
		return expenses, nil
	}
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Where("id IN ?", ids).Find(&expenses).Error
	})
	return expenses, err
}

// Recent 最近提交的支出
func (r *ExpenseRepository) Recent(ctx context.Context, limit int) ([]*model.Expense, error) {
	var expenses []*model.Expense
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Order("submitted_at DESC").Limit(limit).Find(&expenses).Error
	})
	return expenses, err
}

func (r *ExpenseRepository) CountByBudget(ctx context.Context, tx *gorm.DB, budgetID string) (int64, error) {
	var total int64
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		return conn.Model(&model.Expense{}).Where("budget_id = ?", budgetID).Count(&total).Error
	})
	return total, err
}

func (r *ExpenseRepository) DeleteByBudget(ctx context.Context, tx *gorm.DB, budgetID string) (int64, error) {
	result := write(ctx, r.db, tx).Where("budget_id = ?", budgetID).Delete(&model.Expense{})
	return result.RowsAffected, result.Error
}

// SumByBudget 一次分组查询汇总多个预算的支出。
// budgetIDs 为 nil 时汇总全部预算；没有支出的预算不会出现在结果里
func (r *ExpenseRepository) SumByBudget(ctx context.Context, tx *gorm.DB, budgetIDs []string) (map[string]decimal.Decimal, error) {
	if budgetIDs != nil && len(budgetIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	var rows []sumRow
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		q := conn.Model(&model.Expense{}).
			Select("budget_id AS group_id, SUM(amount) AS total").
			Group("budget_id")
		if budgetIDs != nil {
			q = q.Where("budget_id IN ?", budgetIDs)
		}
		return q.Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return sumsToMap(rows), nil
}

// SumByAllocation 汇总引用了各追加拨款的支出
func (r *ExpenseRepository) SumByAllocation(ctx context.Context, tx *gorm.DB, allocationIDs []string) (map[string]decimal.Decimal, error) {
	if len(allocationIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	var rows []sumRow
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		return conn.Model(&model.Expense{}).
			Select("additional_allocation_id AS group_id, SUM(amount) AS total").
			Where("additional_allocation_id IN ?", allocationIDs).
			Group("additional_allocation_id").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return sumsToMap(rows), nil
}

// ListWithoutHistory 查找没有使用流水的支出（历史导入数据）
func (r *ExpenseRepository) ListWithoutHistory(ctx context.Context, limit int) ([]*model.Expense, error) {
	var expenses []*model.Expense
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Model(&model.Expense{}).
			Select("expenses.*").
			Joins("LEFT JOIN budget_usage_history h ON h.expense_id = expenses.id").
			Where("h.id IS NULL").
			Order("expenses.submitted_at ASC").
			Limit(limit).
			Find(&expenses).Error
	})
	return expenses, err
}
