package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/cache"
	"anggaran/internal/infrastructure/lock"
	"anggaran/internal/model"
	"anggaran/internal/repository"
	"anggaran/pkg/idgen"
	"anggaran/pkg/money"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	autoAllocationPrefix = "Alokasi tambahan untuk: "
	autoAllocationReason = "Pengeluaran melebihi anggaran yang tersedia"

	lockRetryInterval = 50 * time.Millisecond
)

var ErrBudgetBusy = errors.New("anggaran sedang diproses, silakan coba lagi")

type ExpenseService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	log            zerolog.Logger
	budgetRepo     *repository.BudgetRepository
	expenseRepo    *repository.ExpenseRepository
	allocationRepo *repository.AllocationRepository
	historyRepo    *repository.UsageHistoryRepository
	aggregates     *AggregateReader
	receipts       *ReceiptService
	cache          *cache.SummaryCache
	events         *eventWriter
}

// NewExpenseService redisClient 为 nil 时不使用分布式锁，只依赖数据库行锁
func NewExpenseService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, receipts *ReceiptService, log zerolog.Logger) *ExpenseService {
	return &ExpenseService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		log:            log.With().Str("component", "expense").Logger(),
		budgetRepo:     repository.NewBudgetRepository(db),
		expenseRepo:    repository.NewExpenseRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
		historyRepo:    repository.NewUsageHistoryRepository(db),
		aggregates:     NewAggregateReader(db),
		receipts:       receipts,
		cache:          newSummaryCache(redisClient, cfg),
		events:         newEventWriter(db, cfg),
	}
}

type RecordExpenseRequest struct {
	BudgetID     string      `json:"budget_id" validate:"required,max=40"`
	Description  string      `json:"description" validate:"required,max=512"`
	Amount       money.Input `json:"amount" validate:"required"`
	Date         string      `json:"date" validate:"required"`
	SubmittedBy  string      `json:"submitted_by" validate:"required,max=64"`
	Notes        *string     `json:"notes"`
	ReceiptToken string      `json:"receipt_token"`
}

type RecordExpenseResult struct {
	Success                bool             `json:"success"`
	ID                     string           `json:"id"`
	NeedsAllocation        bool             `json:"needs_allocation"`
	AdditionalAllocationID *string          `json:"additional_allocation_id,omitempty"`
	BudgetID               string           `json:"budget_id"`
	ExpenseAmount          decimal.Decimal  `json:"expense_amount"`
	ShortageAmount         *decimal.Decimal `json:"shortage_amount,omitempty"`
	ReceiptURL             *string          `json:"receipt_url,omitempty"`
}

// ============================================================================
// 记录支出
// ============================================================================
//
// 流程：
//   1. 校验入参
//   2. 获取预算维度的分布式锁（Redis 可用时）
//   3. 有收据令牌时把暂存文件复制到正式目录
//   4. 事务内：锁定预算行 -> 标记收据令牌已使用 -> 计算可用余额
//      -> 余额不足时创建追加拨款 -> 写支出 -> 写使用流水 -> 写 outbox
//   5. 提交后删除暂存文件、清理汇总缓存
//
// 事务回滚时令牌保持未使用，修正后重新提交仍可使用同一令牌。
//
// 可用余额 = 预算金额 + 追加拨款合计 - 支出合计；
// 追加拨款金额 = 支出金额 - 可用余额，保证记录后可用余额不为负。
//
// ============================================================================

func (s *ExpenseService) RecordExpense(ctx context.Context, req *RecordExpenseRequest) (*RecordExpenseResult, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		timeout := time.Duration(s.cfg.Business.LockTimeoutSeconds) * time.Second
		budgetLock := lock.NewBudgetLock(s.redisClient, req.BudgetID, uuid.NewString(), timeout)
		if err := budgetLock.Lock(ctx, lockRetryInterval, int(timeout/lockRetryInterval)); err != nil {
			s.log.Warn().Err(err).Str("budget_id", req.BudgetID).Msg("获取预算锁失败")
			return nil, ErrBudgetBusy
		}
		defer func() {
			if err := budgetLock.Unlock(context.Background()); err != nil {
				s.log.Warn().Err(err).Str("budget_id", req.BudgetID).Msg("释放预算锁失败")
			}
		}()
	}

	var (
		receipt    *PendingReceipt
		receiptURL *string
	)
	if token := strings.TrimSpace(req.ReceiptToken); token != "" {
		if s.receipts == nil {
			return nil, &ValidationError{Field: "receipt_token", Message: "unggahan berkas tidak tersedia"}
		}
		receipt, err = s.receipts.Prepare(ctx, token)
		if err != nil {
			return nil, err
		}
		receiptURL = &receipt.URL
	}

	now := time.Now()
	expense := &model.Expense{
		ID:          idgen.GenerateExpenseID(),
		BudgetID:    req.BudgetID,
		Description: req.Description,
		Amount:      amount,
		Date:        date,
		SubmittedBy: req.SubmittedBy,
		SubmittedAt: now,
		Notes:       optionalString(req.Notes),
		ReceiptURL:  receiptURL,
	}
	result := &RecordExpenseResult{
		Success:       true,
		ID:            expense.ID,
		BudgetID:      req.BudgetID,
		ExpenseAmount: amount,
		ReceiptURL:    receiptURL,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		budget, err := s.budgetRepo.GetByIDForUpdate(ctx, tx, req.BudgetID)
		if err != nil {
			return notFound(err, req.BudgetID)
		}

		if receipt != nil {
			if err := s.receipts.Commit(ctx, tx, receipt); err != nil {
				return err
			}
		}

		sum, err := s.aggregates.Summary(ctx, tx, budget)
		if err != nil {
			return fmt.Errorf("计算可用余额失败: %w", err)
		}

		if amount.GreaterThan(sum.AvailableAmount) {
			shortage := amount.Sub(sum.AvailableAmount)
			allocation := &model.AdditionalAllocation{
				ID:               idgen.GenerateAllocationID(),
				OriginalBudgetID: budget.ID,
				Description:      autoAllocationPrefix + req.Description,
				Reason:           autoAllocationReason,
				Amount:           shortage,
				RequestDate:      date,
				RequestedBy:      req.SubmittedBy,
				RequestedAt:      now,
				ApprovedBy:       req.SubmittedBy,
				ApprovedAt:       now,
				RelatedExpenseID: &expense.ID,
			}
			if err := s.allocationRepo.Create(ctx, tx, allocation); err != nil {
				return fmt.Errorf("创建追加拨款失败: %w", err)
			}

			expense.AdditionalAllocationID = &allocation.ID
			result.NeedsAllocation = true
			result.AdditionalAllocationID = &allocation.ID
			result.ShortageAmount = &shortage

			if err := s.events.emit(ctx, tx, budget.ID, model.EventAllocationCreated, map[string]interface{}{
				"allocation_id":      allocation.ID,
				"budget_id":          budget.ID,
				"amount":             shortage,
				"related_expense_id": expense.ID,
				"automatic":          true,
			}); err != nil {
				return err
			}
		}

		if err := s.expenseRepo.Create(ctx, tx, expense); err != nil {
			return fmt.Errorf("记录支出失败: %w", err)
		}

		history := &model.BudgetUsageHistory{
			BudgetID:  budget.ID,
			ExpenseID: expense.ID,
			Amount:    amount,
		}
		if err := s.historyRepo.Create(ctx, tx, history); err != nil {
			return fmt.Errorf("记录使用流水失败: %w", err)
		}

		return s.events.emit(ctx, tx, budget.ID, model.EventExpenseRecorded, map[string]interface{}{
			"expense_id":               expense.ID,
			"budget_id":                budget.ID,
			"amount":                   amount,
			"submitted_by":             expense.SubmittedBy,
			"additional_allocation_id": expense.AdditionalAllocationID,
		})
	})
	if err != nil {
		return nil, err
	}

	if receipt != nil {
		s.receipts.Cleanup(ctx, receipt)
	}

	if err := s.cache.Invalidate(ctx, req.BudgetID); err != nil {
		s.log.Warn().Err(err).Str("budget_id", req.BudgetID).Msg("清理汇总缓存失败")
	}

	event := s.log.Info().
		Str("expense_id", expense.ID).
		Str("budget_id", req.BudgetID).
		Str("amount", amount.String())
	if result.NeedsAllocation {
		event = event.Str("allocation_id", *result.AdditionalAllocationID).Str("shortage", result.ShortageAmount.String())
	}
	event.Msg("支出已记录")

	return result, nil
}

// ExpenseView 支出及所属预算名称
type ExpenseView struct {
	model.Expense
	BudgetName string `json:"budget_name"`
}

func (s *ExpenseService) GetExpense(ctx context.Context, id string) (*ExpenseView, error) {
	expense, err := s.expenseRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, id)
	}

	view := &ExpenseView{Expense: *expense}
	budget, err := s.budgetRepo.GetByID(ctx, nil, expense.BudgetID)
	switch {
	case err == nil:
		view.BudgetName = budget.Name
	case !errors.Is(err, repository.ErrBudgetNotFound):
		return nil, err
	}
	return view, nil
}

type ListExpensesResult struct {
	Items    []*ExpenseView `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// ListExpenses 按提交时间倒序，budgetID 为空时列出全部
func (s *ExpenseService) ListExpenses(ctx context.Context, budgetID string, page, pageSize int) (*ListExpensesResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	expenses, total, err := s.expenseRepo.List(ctx, budgetID, page, pageSize)
	if err != nil {
		return nil, err
	}

	names, err := s.budgetNames(ctx, expenses)
	if err != nil {
		return nil, err
	}

	items := make([]*ExpenseView, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, &ExpenseView{Expense: *e, BudgetName: names[e.BudgetID]})
	}
	return &ListExpensesResult{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *ExpenseService) budgetNames(ctx context.Context, expenses []*model.Expense) (map[string]string, error) {
	names := make(map[string]string)
	if len(expenses) == 0 {
		return names, nil
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(expenses))
	for _, e := range expenses {
		if _, ok := seen[e.BudgetID]; !ok {
			seen[e.BudgetID] = struct{}{}
			ids = append(ids, e.BudgetID)
		}
	}

	budgets, err := s.budgetRepo.List(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range budgets {
		names[b.ID] = b.Name
	}
	return names, nil
}
