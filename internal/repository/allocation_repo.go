package repository

import (
	"context"
	"errors"

	"anggaran/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrAllocationNotFound = errors.New("alokasi tambahan tidak ditemukan")

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) Create(ctx context.Context, tx *gorm.DB, allocation *model.AdditionalAllocation) error {
	return write(ctx, r.db, tx).Create(allocation).Error
}

func (r *AllocationRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.AdditionalAllocation, error) {
	var allocation model.AdditionalAllocation
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		return conn.Where("id = ?", id).First(&allocation).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return &allocation, nil
}

// List budgetID 为空时返回全部，按申请时间倒序
func (r *AllocationRepository) List(ctx context.Context, budgetID string) ([]*model.AdditionalAllocation, error) {
	var allocations []*model.AdditionalAllocation
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		q := conn.Order("requested_at DESC")
		if budgetID != "" {
			q = q.Where("original_budget_id = ?", budgetID)
		}
		return q.Find(&allocations).Error
	})
	return allocations, err
}

func (r *AllocationRepository) CountByBudget(ctx context.Context, tx *gorm.DB, budgetID string) (int64, error) {
	var total int64
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		return conn.Model(&model.AdditionalAllocation{}).Where("original_budget_id = ?", budgetID).Count(&total).Error
	})
	return total, err
}

func (r *AllocationRepository) DeleteByBudget(ctx context.Context, tx *gorm.DB, budgetID string) (int64, error) {
	result := write(ctx, r.db, tx).Where("original_budget_id = ?", budgetID).Delete(&model.AdditionalAllocation{})
	return result.RowsAffected, result.Error
}

// SumByBudget 一次分组查询汇总多个预算的追加拨款，语义同 ExpenseRepository.SumByBudget
func (r *AllocationRepository) SumByBudget(ctx context.Context, tx *gorm.DB, budgetIDs []string) (map[string]decimal.Decimal, error) {
	if budgetIDs != nil && len(budgetIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	var rows []sumRow
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		q := conn.Model(&model.AdditionalAllocation{}).
			Select("original_budget_id AS group_id, SUM(amount) AS total").
			Group("original_budget_id")
		if budgetIDs != nil {
			q = q.Where("original_budget_id IN ?", budgetIDs)
		}
		return q.Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return sumsToMap(rows), nil
}
