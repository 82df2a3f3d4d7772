package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/cache"
	"anggaran/internal/model"
	"anggaran/internal/repository"
	"anggaran/pkg/idgen"
	"anggaran/pkg/money"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BudgetService struct {
	db             *gorm.DB
	cfg            *config.Config
	log            zerolog.Logger
	budgetRepo     *repository.BudgetRepository
	expenseRepo    *repository.ExpenseRepository
	allocationRepo *repository.AllocationRepository
	historyRepo    *repository.UsageHistoryRepository
	aggregates     *AggregateReader
	cache          *cache.SummaryCache
	events         *eventWriter
}

func NewBudgetService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *BudgetService {
	return &BudgetService{
		db:             db,
		cfg:            cfg,
		log:            log.With().Str("component", "budget").Logger(),
		budgetRepo:     repository.NewBudgetRepository(db),
		expenseRepo:    repository.NewExpenseRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
		historyRepo:    repository.NewUsageHistoryRepository(db),
		aggregates:     NewAggregateReader(db),
		cache:          newSummaryCache(rdb, cfg),
		events:         newEventWriter(db, cfg),
	}
}

func newSummaryCache(rdb *redis.Client, cfg *config.Config) *cache.SummaryCache {
	return cache.NewSummaryCache(rdb, time.Duration(cfg.Business.DashboardCacheTTLSec)*time.Second)
}

// BudgetView 预算及其汇总金额
type BudgetView struct {
	model.Budget
	SpentAmount      decimal.Decimal `json:"spent_amount"`
	AdditionalAmount decimal.Decimal `json:"additional_amount"`
	AvailableAmount  decimal.Decimal `json:"available_amount"`
}

func newBudgetView(b *model.Budget, s Summary) *BudgetView {
	return &BudgetView{
		Budget:           *b,
		SpentAmount:      s.SpentAmount,
		AdditionalAmount: s.AdditionalAmount,
		AvailableAmount:  s.AvailableAmount,
	}
}

type CreateBudgetRequest struct {
	Name         string      `json:"name" validate:"required,max=128"`
	Amount       money.Input `json:"amount" validate:"required"`
	CreationDate string      `json:"creation_date" validate:"required"`
	Description  *string     `json:"description" validate:"omitempty,max=512"`
	CreatedBy    string      `json:"created_by" validate:"required,max=64"`
}

type UpdateBudgetRequest struct {
	Name        string      `json:"name" validate:"required,max=128"`
	Amount      money.Input `json:"amount" validate:"required"`
	Description *string     `json:"description" validate:"omitempty,max=512"`
}

// DeleteBudgetResult 级联删除的统计
type DeleteBudgetResult struct {
	BudgetID           string `json:"budget_id"`
	DeletedExpenses    int64  `json:"deleted_expenses"`
	DeletedAllocations int64  `json:"deleted_allocations"`
	DeletedHistory     int64  `json:"deleted_history"`
}

func (s *BudgetService) CreateBudget(ctx context.Context, req *CreateBudgetRequest) (*BudgetView, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	startDate, err := parseDate("creation_date", req.CreationDate)
	if err != nil {
		return nil, err
	}

	budget := &model.Budget{
		ID:          idgen.GenerateBudgetID(),
		Name:        req.Name,
		Amount:      amount,
		StartDate:   startDate,
		Description: optionalString(req.Description),
		CreatedBy:   req.CreatedBy,
	}

	legacyStatus := s.budgetRepo.HasLegacyStatusColumn()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if legacyStatus {
			if err := s.budgetRepo.CreateWithLegacyStatus(ctx, tx, budget, model.LegacyBudgetStatusActive); err != nil {
				return fmt.Errorf("创建预算失败: %w", err)
			}
		} else if err := s.budgetRepo.Create(ctx, tx, budget); err != nil {
			return fmt.Errorf("创建预算失败: %w", err)
		}

		return s.events.emit(ctx, tx, budget.ID, model.EventBudgetCreated, map[string]interface{}{
			"budget_id":  budget.ID,
			"name":       budget.Name,
			"amount":     budget.Amount,
			"created_by": budget.CreatedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, budget.ID)
	s.log.Info().Str("budget_id", budget.ID).Str("amount", budget.Amount.String()).Msg("预算已创建")

	return newBudgetView(budget, ComputeSummary(budget.Amount, decimal.Zero, decimal.Zero)), nil
}

// UpdateBudget 只更新名称、金额、描述；汇总金额在读取时重新计算
func (s *BudgetService) UpdateBudget(ctx context.Context, id string, req *UpdateBudgetRequest) (*BudgetView, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.budgetRepo.GetByIDForUpdate(ctx, tx, id); err != nil {
			return notFound(err, id)
		}

		updates := map[string]interface{}{
			"name":        req.Name,
			"amount":      amount,
			"description": optionalString(req.Description),
		}
		if err := s.budgetRepo.Update(ctx, tx, id, updates); err != nil {
			return fmt.Errorf("更新预算失败: %w", err)
		}

		return s.events.emit(ctx, tx, id, model.EventBudgetUpdated, map[string]interface{}{
			"budget_id": id,
			"name":      req.Name,
			"amount":    amount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return s.GetBudget(ctx, id)
}

// DeleteBudget 仍有支出或追加拨款引用时拒绝删除，不做任何修改
func (s *BudgetService) DeleteBudget(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.budgetRepo.GetByIDForUpdate(ctx, tx, id); err != nil {
			return notFound(err, id)
		}

		expenses, err := s.expenseRepo.CountByBudget(ctx, tx, id)
		if err != nil {
			return err
		}
		allocations, err := s.allocationRepo.CountByBudget(ctx, tx, id)
		if err != nil {
			return err
		}
		if expenses > 0 || allocations > 0 {
			return &BudgetInUseError{BudgetID: id, Expenses: expenses, Allocations: allocations}
		}

		if _, err := s.budgetRepo.Delete(ctx, tx, id); err != nil {
			return fmt.Errorf("删除预算失败: %w", err)
		}
		return s.events.emit(ctx, tx, id, model.EventBudgetDeleted, map[string]interface{}{
			"budget_id": id,
		})
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.log.Info().Str("budget_id", id).Msg("预算已删除")
	return nil
}

// DeleteBudgetWithExpenses 级联删除：使用流水 -> 支出 -> 追加拨款 -> 预算，全部在一个事务内
func (s *BudgetService) DeleteBudgetWithExpenses(ctx context.Context, id string) (*DeleteBudgetResult, error) {
	result := &DeleteBudgetResult{BudgetID: id}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.budgetRepo.GetByIDForUpdate(ctx, tx, id); err != nil {
			return notFound(err, id)
		}

		var err error
		if result.DeletedHistory, err = s.historyRepo.DeleteByBudget(ctx, tx, id); err != nil {
			return fmt.Errorf("删除使用流水失败: %w", err)
		}
		if result.DeletedExpenses, err = s.expenseRepo.DeleteByBudget(ctx, tx, id); err != nil {
			return fmt.Errorf("删除支出失败: %w", err)
		}
		if result.DeletedAllocations, err = s.allocationRepo.DeleteByBudget(ctx, tx, id); err != nil {
			return fmt.Errorf("删除追加拨款失败: %w", err)
		}
		if _, err := s.budgetRepo.Delete(ctx, tx, id); err != nil {
			return fmt.Errorf("删除预算失败: %w", err)
		}

		return s.events.emit(ctx, tx, id, model.EventBudgetDeleted, map[string]interface{}{
			"budget_id":           id,
			"deleted_expenses":    result.DeletedExpenses,
			"deleted_allocations": result.DeletedAllocations,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.log.Info().
		Str("budget_id", id).
		Int64("expenses", result.DeletedExpenses).
		Int64("allocations", result.DeletedAllocations).
		Msg("预算及其支出已删除")
	return result, nil
}

func (s *BudgetService) GetBudget(ctx context.Context, id string) (*BudgetView, error) {
	var cached BudgetView
	if hit, err := s.cache.Get(ctx, cache.BudgetKey(id), &cached); err == nil && hit {
		return &cached, nil
	}

	budget, sum, err := s.aggregates.SummaryByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	view := newBudgetView(budget, sum)
	if err := s.cache.Set(ctx, cache.BudgetKey(id), view); err != nil {
		s.log.Warn().Err(err).Str("budget_id", id).Msg("写入汇总缓存失败")
	}
	return view, nil
}

// GetUsageHistory 预算的使用流水，预算不存在时返回 NotFoundError
func (s *BudgetService) GetUsageHistory(ctx context.Context, id string) ([]*model.BudgetUsageHistory, error) {
	if _, err := s.budgetRepo.GetByID(ctx, nil, id); err != nil {
		return nil, notFound(err, id)
	}
	return s.historyRepo.ListByBudget(ctx, id)
}

// ListBudgets 全部预算及汇总，汇总只用两条分组查询
func (s *BudgetService) ListBudgets(ctx context.Context) ([]*BudgetView, error) {
	var cached []*BudgetView
	if hit, err := s.cache.Get(ctx, cache.KeyBudgetList, &cached); err == nil && hit {
		return cached, nil
	}

	budgets, err := s.budgetRepo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	sums, err := s.aggregates.Summaries(ctx, nil, budgets)
	if err != nil {
		return nil, err
	}

	views := make([]*BudgetView, 0, len(budgets))
	for _, b := range budgets {
		views = append(views, newBudgetView(b, sums[b.ID]))
	}

	if err := s.cache.Set(ctx, cache.KeyBudgetList, views); err != nil {
		s.log.Warn().Err(err).Msg("写入预算列表缓存失败")
	}
	return views, nil
}

func (s *BudgetService) invalidate(ctx context.Context, budgetIDs ...string) {
	if err := s.cache.Invalidate(ctx, budgetIDs...); err != nil {
		s.log.Warn().Err(err).Strs("budget_ids", budgetIDs).Msg("清理汇总缓存失败")
	}
}
