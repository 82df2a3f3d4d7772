package service

import (
	"context"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/cache"
	"anggaran/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	recentExpenseLimit = 5
	usageHistoryMonths = 12
)

type DashboardService struct {
	log         zerolog.Logger
	budgetRepo  *repository.BudgetRepository
	historyRepo *repository.UsageHistoryRepository
	expenses    *ExpenseService
	aggregates  *AggregateReader
	cache       *cache.SummaryCache
	now         func() time.Time
}

func NewDashboardService(db *gorm.DB, rdb *redis.Client, cfg *config.Config, expenses *ExpenseService, log zerolog.Logger) *DashboardService {
	return &DashboardService{
		log:         log.With().Str("component", "dashboard").Logger(),
		budgetRepo:  repository.NewBudgetRepository(db),
		historyRepo: repository.NewUsageHistoryRepository(db),
		expenses:    expenses,
		aggregates:  NewAggregateReader(db),
		cache:       newSummaryCache(rdb, cfg),
		now:         time.Now,
	}
}

type DashboardTotals struct {
	BudgetCount      int             `json:"budget_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	SpentAmount      decimal.Decimal `json:"spent_amount"`
	AdditionalAmount decimal.Decimal `json:"additional_amount"`
	AvailableAmount  decimal.Decimal `json:"available_amount"`
}

// MonthlyUsage 某月的支出合计，Month 格式 YYYY-MM
type MonthlyUsage struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

type DashboardSummary struct {
	Totals         DashboardTotals `json:"totals"`
	RecentExpenses []*ExpenseView  `json:"recent_expenses"`
	MonthlyUsage   []MonthlyUsage  `json:"monthly_usage"`
}

func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, error) {
	var cached DashboardSummary
	if hit, err := s.cache.Get(ctx, cache.KeyDashboard, &cached); err == nil && hit {
		return &cached, nil
	}

	budgets, err := s.budgetRepo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	sums, err := s.aggregates.Summaries(ctx, nil, budgets)
	if err != nil {
		return nil, err
	}

	totals := DashboardTotals{BudgetCount: len(budgets)}
	for _, b := range budgets {
		sum := sums[b.ID]
		totals.TotalAmount = totals.TotalAmount.Add(sum.Amount)
		totals.SpentAmount = totals.SpentAmount.Add(sum.SpentAmount)
		totals.AdditionalAmount = totals.AdditionalAmount.Add(sum.AdditionalAmount)
		totals.AvailableAmount = totals.AvailableAmount.Add(sum.AvailableAmount)
	}

	recent, err := s.expenses.ListExpenses(ctx, "", 1, recentExpenseLimit)
	if err != nil {
		return nil, err
	}

	monthly, err := s.monthlyUsage(ctx)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		Totals:         totals,
		RecentExpenses: recent.Items,
		MonthlyUsage:   monthly,
	}
	if err := s.cache.Set(ctx, cache.KeyDashboard, summary); err != nil {
		s.log.Warn().Err(err).Msg("写入仪表盘缓存失败")
	}
	return summary, nil
}

// monthlyUsage 最近 12 个月（含当月）的支出合计，没有流水的月份为 0
func (s *DashboardService) monthlyUsage(ctx context.Context) ([]MonthlyUsage, error) {
	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(usageHistoryMonths - 1), 0)

	rows, err := s.historyRepo.ListSince(ctx, first)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]decimal.Decimal, usageHistoryMonths)
	for _, h := range rows {
		key := h.RecordedAt.UTC().Format("2006-01")
		byMonth[key] = byMonth[key].Add(h.Amount)
	}

	out := make([]MonthlyUsage, 0, usageHistoryMonths)
	for i := 0; i < usageHistoryMonths; i++ {
		key := first.AddDate(0, i, 0).Format("2006-01")
		out = append(out, MonthlyUsage{Month: key, Amount: byMonth[key]})
	}
	return out, nil
}
