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

type AllocationService struct {
	db             *gorm.DB
	log            zerolog.Logger
	budgetRepo     *repository.BudgetRepository
	expenseRepo    *repository.ExpenseRepository
	allocationRepo *repository.AllocationRepository
	cache          *cache.SummaryCache
	events         *eventWriter
}

func NewAllocationService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *AllocationService {
	return &AllocationService{
		db:             db,
		log:            log.With().Str("component", "allocation").Logger(),
		budgetRepo:     repository.NewBudgetRepository(db),
		expenseRepo:    repository.NewExpenseRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
		cache:          newSummaryCache(rdb, cfg),
		events:         newEventWriter(db, cfg),
	}
}

type CreateAllocationRequest struct {
	OriginalBudgetID string      `json:"original_budget_id" validate:"required,max=40"`
	Description      string      `json:"description" validate:"required,max=512"`
	Reason           string      `json:"reason" validate:"required,max=512"`
	Amount           money.Input `json:"amount" validate:"required"`
	RequestDate      string      `json:"request_date" validate:"required"`
	RequestedBy      string      `json:"requested_by" validate:"required,max=64"`
	RelatedExpenseID *string     `json:"related_expense_id"`
}

// RelatedExpense 追加拨款关联的支出摘要
type RelatedExpense struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// AllocationView 追加拨款及其使用情况
// spent 为引用该拨款的支出合计，available = amount - spent
type AllocationView struct {
	model.AdditionalAllocation
	SpentAmount     decimal.Decimal `json:"spent_amount"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
	RelatedExpense  *RelatedExpense `json:"related_expense,omitempty"`
}

// CreateAllocation 手工追加拨款，审批字段直接填申请人
func (s *AllocationService) CreateAllocation(ctx context.Context, req *CreateAllocationRequest) (*AllocationView, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	requestDate, err := parseDate("request_date", req.RequestDate)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	allocation := &model.AdditionalAllocation{
		ID:               idgen.GenerateAllocationID(),
		OriginalBudgetID: req.OriginalBudgetID,
		Description:      req.Description,
		Reason:           req.Reason,
		Amount:           amount,
		RequestDate:      requestDate,
		RequestedBy:      req.RequestedBy,
		RequestedAt:      now,
		ApprovedBy:       req.RequestedBy,
		ApprovedAt:       now,
		RelatedExpenseID: optionalString(req.RelatedExpenseID),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.budgetRepo.GetByIDForUpdate(ctx, tx, req.OriginalBudgetID); err != nil {
			return notFound(err, req.OriginalBudgetID)
		}

		if allocation.RelatedExpenseID != nil {
			expenseID := *allocation.RelatedExpenseID
			expense, err := s.expenseRepo.GetByID(ctx, tx, expenseID)
			if err != nil {
				return notFound(err, expenseID)
			}
			if expense.BudgetID != req.OriginalBudgetID {
				return &ValidationError{Field: "related_expense_id", Message: "pengeluaran bukan milik anggaran ini"}
			}
		}

		if err := s.allocationRepo.Create(ctx, tx, allocation); err != nil {
			return fmt.Errorf("创建追加拨款失败: %w", err)
		}

		if allocation.RelatedExpenseID != nil {
			if err := s.expenseRepo.SetAllocation(ctx, tx, *allocation.RelatedExpenseID, allocation.ID); err != nil {
				return fmt.Errorf("回填支出追加拨款失败: %w", err)
			}
		}

		return s.events.emit(ctx, tx, allocation.OriginalBudgetID, model.EventAllocationCreated, map[string]interface{}{
			"allocation_id":      allocation.ID,
			"budget_id":          allocation.OriginalBudgetID,
			"amount":             amount,
			"related_expense_id": allocation.RelatedExpenseID,
			"automatic":          false,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, allocation.OriginalBudgetID); err != nil {
		s.log.Warn().Err(err).Str("budget_id", allocation.OriginalBudgetID).Msg("清理汇总缓存失败")
	}
	s.log.Info().
		Str("allocation_id", allocation.ID).
		Str("budget_id", allocation.OriginalBudgetID).
		Str("amount", amount.String()).
		Msg("追加拨款已创建")

	return s.GetAllocation(ctx, allocation.ID)
}

func (s *AllocationService) GetAllocation(ctx context.Context, id string) (*AllocationView, error) {
	allocation, err := s.allocationRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	views, err := s.views(ctx, []*model.AdditionalAllocation{allocation})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListAllocations budgetID 为空时列出全部
func (s *AllocationService) ListAllocations(ctx context.Context, budgetID string) ([]*AllocationView, error) {
	allocations, err := s.allocationRepo.List(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, allocations)
}

// views 批量计算使用额并加载关联支出
func (s *AllocationService) views(ctx context.Context, allocations []*model.AdditionalAllocation) ([]*AllocationView, error) {
	ids := make([]string, 0, len(allocations))
	var expenseIDs []string
	for _, a := range allocations {
		ids = append(ids, a.ID)
		if a.RelatedExpenseID != nil {
			expenseIDs = append(expenseIDs, *a.RelatedExpenseID)
		}
	}

	spent, err := s.expenseRepo.SumByAllocation(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	expenses, err := s.expenseRepo.ListByIDs(ctx, expenseIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Expense, len(expenses))
	for _, e := range expenses {
		byID[e.ID] = e
	}

	views := make([]*AllocationView, 0, len(allocations))
	for _, a := range allocations {
		used := spent[a.ID]
		view := &AllocationView{
			AdditionalAllocation: *a,
			SpentAmount:          used,
			AvailableAmount:      a.Amount.Sub(used),
		}
		if a.RelatedExpenseID != nil {
			if e, ok := byID[*a.RelatedExpenseID]; ok {
				view.RelatedExpense = &RelatedExpense{ID: e.ID, Description: e.Description, Amount: e.Amount}
			}
		}
		views = append(views, view)
	}
	return views, nil
}
