package job

import (
	"context"
	"time"

	"anggaran/internal/model"
	"anggaran/internal/repository"
	"anggaran/internal/service"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// StagedReceiptCleanupJob 清理超过保留时间仍未转存的暂存收据
type StagedReceiptCleanupJob struct {
	receipts  *service.ReceiptService
	log       zerolog.Logger
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewStagedReceiptCleanupJob(receipts *service.ReceiptService, log zerolog.Logger) *StagedReceiptCleanupJob {
	return &StagedReceiptCleanupJob{
		receipts:  receipts,
		log:       log.With().Str("job", "receipt_cleanup").Logger(),
		stopCh:    make(chan struct{}),
		interval:  10 * time.Minute,
		batchSize: 100,
		now:       time.Now,
	}
}

func (j *StagedReceiptCleanupJob) Start(ctx context.Context) {
	j.log.Info().Dur("retention", j.receipts.StagingRetention()).Msg("暂存收据清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			j.purgeExpired(ctx)
		}
	}
}

func (j *StagedReceiptCleanupJob) Stop() {
	close(j.stopCh)
}

func (j *StagedReceiptCleanupJob) purgeExpired(ctx context.Context) int {
	before := j.now().Add(-j.receipts.StagingRetention())
	purged, err := j.receipts.PurgeStaged(ctx, before, j.batchSize)
	if err != nil {
		j.log.Error().Err(err).Msg("查询过期暂存收据失败")
		return 0
	}
	if purged > 0 {
		j.log.Info().Int("purged", purged).Msg("已清理过期暂存收据")
	}
	return purged
}

// UsageHistoryBackfillJob 为缺少使用流水的支出补写流水
//
// 记录支出时流水与支出在同一事务内写入；
// 该任务只处理导入的历史数据或早期版本写入的支出。
type UsageHistoryBackfillJob struct {
	expenseRepo *repository.ExpenseRepository
	historyRepo *repository.UsageHistoryRepository
	log         zerolog.Logger
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewUsageHistoryBackfillJob(db *gorm.DB, log zerolog.Logger) *UsageHistoryBackfillJob {
	return &UsageHistoryBackfillJob{
		expenseRepo: repository.NewExpenseRepository(db),
		historyRepo: repository.NewUsageHistoryRepository(db),
		log:         log.With().Str("job", "usage_history_backfill").Logger(),
		stopCh:      make(chan struct{}),
		interval:    time.Hour,
		batchSize:   200,
	}
}

func (j *UsageHistoryBackfillJob) Start(ctx context.Context) {
	j.log.Info().Msg("使用流水补偿任务启动")

	// 启动时先执行一次
	j.backfill(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			j.backfill(ctx)
		}
	}
}

func (j *UsageHistoryBackfillJob) Stop() {
	close(j.stopCh)
}

func (j *UsageHistoryBackfillJob) backfill(ctx context.Context) int {
	expenses, err := j.expenseRepo.ListWithoutHistory(ctx, j.batchSize)
	if err != nil {
		j.log.Error().Err(err).Msg("查询缺少流水的支出失败")
		return 0
	}
	if len(expenses) == 0 {
		return 0
	}

	j.log.Info().Int("count", len(expenses)).Msg("发现缺少使用流水的支出")

	written := 0
	for _, expense := range expenses {
		history := &model.BudgetUsageHistory{
			BudgetID:   expense.BudgetID,
			ExpenseID:  expense.ID,
			Amount:     expense.Amount,
			RecordedAt: expense.SubmittedAt,
		}
		// expense_id 唯一索引保证并发补写时不会重复
		if err := j.historyRepo.Create(ctx, nil, history); err != nil {
			j.log.Error().Err(err).Str("expense_id", expense.ID).Msg("补写使用流水失败")
			continue
		}
		written++
	}

	j.log.Info().Int("written", written).Msg("使用流水补写完成")
	return written
}
