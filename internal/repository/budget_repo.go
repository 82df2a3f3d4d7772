package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"anggaran/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBudgetNotFound = errors.New("anggaran tidak ditemukan")

type BudgetRepository struct {
	db *gorm.DB

	statusOnce   sync.Once
	statusColumn bool
}

func NewBudgetRepository(db *gorm.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) Create(ctx context.Context, tx *gorm.DB, budget *model.Budget) error {
	return write(ctx, r.db, tx).Create(budget).Error
}

func (r *BudgetRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Budget, error) {
	var budget model.Budget
	err := read(ctx, r.db, tx, func(conn *gorm.DB) error {
		return conn.Where("id = ?", id).First(&budget).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return &budget, nil
}

// GetByIDForUpdate 在事务内锁定预算行
func (r *BudgetRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Budget, error) {
	var budget model.Budget
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&budget).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return &budget, nil
}

// List ids 为 nil 时返回全部预算，按创建时间倒序
func (r *BudgetRepository) List(ctx context.Context, ids []string) ([]*model.Budget, error) {
	var budgets []*model.Budget
	if ids != nil && len(ids) == 0 {
		return budgets, nil
	}
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		q := conn.Order("created_at DESC")
		if ids != nil {
			q = q.Where("id IN ?", ids)
		}
		return q.Find(&budgets).Error
	})
	return budgets, err
}

func (r *BudgetRepository) Update(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return write(ctx, r.db, tx).
		Model(&model.Budget{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *BudgetRepository) Delete(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	result := write(ctx, r.db, tx).Where("id = ?", id).Delete(&model.Budget{})
	return result.RowsAffected, result.Error
}

func (r *BudgetRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Model(&model.Budget{}).Count(&total).Error
	})
	return total, err
}

// HasLegacyStatusColumn 探测旧版 budgets.status 列是否存在，进程内只探测一次
//
// 早期表结构有 status 列且为 NOT NULL，迁移没有统一执行，
// 部分环境里该列仍然存在。
func (r *BudgetRepository) HasLegacyStatusColumn() bool {
	r.statusOnce.Do(func() {
		r.statusColumn = r.db.Migrator().HasColumn(&model.Budget{}, "status")
	})
	return r.statusColumn
}

// CreateWithLegacyStatus 旧表的 status 列为 NOT NULL，必须在同一条 INSERT 里带上
func (r *BudgetRepository) CreateWithLegacyStatus(ctx context.Context, tx *gorm.DB, budget *model.Budget, status string) error {
	now := time.Now()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	budget.UpdatedAt = now

	return write(ctx, r.db, tx).
		Table(model.Budget{}.TableName()).
		Create(map[string]interface{}{
			"id":          budget.ID,
			"name":        budget.Name,
			"amount":      budget.Amount,
			"start_date":  budget.StartDate,
			"description": budget.Description,
			"created_by":  budget.CreatedBy,
			"created_at":  budget.CreatedAt,
			"updated_at":  budget.UpdatedAt,
			"status":      status,
		}).Error
}
