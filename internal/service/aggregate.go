package service

import (
	"context"

	"anggaran/internal/model"
	"anggaran/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Summary 预算的汇总金额，全部在读取时计算
type Summary struct {
	Amount           decimal.Decimal `json:"amount"`
	SpentAmount      decimal.Decimal `json:"spent_amount"`
	AdditionalAmount decimal.Decimal `json:"additional_amount"`
	AvailableAmount  decimal.Decimal `json:"available_amount"`
}

// ComputeSummary available = amount + additional - spent
func ComputeSummary(amount, additional, spent decimal.Decimal) Summary {
	return Summary{
		Amount:           amount,
		SpentAmount:      spent,
		AdditionalAmount: additional,
		AvailableAmount:  amount.Add(additional).Sub(spent),
	}
}

// AggregateReader 批量计算预算汇总
//
// 不论预算数量多少，都只发两条分组查询（支出、追加拨款各一条），
// 再在内存中按公式组合，避免逐个预算查询。
type AggregateReader struct {
	budgetRepo     *repository.BudgetRepository
	expenseRepo    *repository.ExpenseRepository
	allocationRepo *repository.AllocationRepository
}

func NewAggregateReader(db *gorm.DB) *AggregateReader {
	return &AggregateReader{
		budgetRepo:     repository.NewBudgetRepository(db),
		expenseRepo:    repository.NewExpenseRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
	}
}

// Summaries 计算给定预算的汇总；tx 非空时在事务内读取
func (a *AggregateReader) Summaries(ctx context.Context, tx *gorm.DB, budgets []*model.Budget) (map[string]Summary, error) {
	ids := make([]string, 0, len(budgets))
	for _, b := range budgets {
		ids = append(ids, b.ID)
	}

	spent, err := a.expenseRepo.SumByBudget(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	additional, err := a.allocationRepo.SumByBudget(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Summary, len(budgets))
	for _, b := range budgets {
		// 没有关联记录时 map 取到零值
		out[b.ID] = ComputeSummary(b.Amount, additional[b.ID], spent[b.ID])
	}
	return out, nil
}

// Summary 单个预算的汇总
func (a *AggregateReader) Summary(ctx context.Context, tx *gorm.DB, budget *model.Budget) (Summary, error) {
	sums, err := a.Summaries(ctx, tx, []*model.Budget{budget})
	if err != nil {
		return Summary{}, err
	}
	return sums[budget.ID], nil
}

// SummaryByID 按ID读取预算并计算汇总，不存在时返回 NotFoundError
func (a *AggregateReader) SummaryByID(ctx context.Context, tx *gorm.DB, budgetID string) (*model.Budget, Summary, error) {
	budget, err := a.budgetRepo.GetByID(ctx, tx, budgetID)
	if err != nil {
		return nil, Summary{}, notFound(err, budgetID)
	}
	sum, err := a.Summary(ctx, tx, budget)
	return budget, sum, err
}
