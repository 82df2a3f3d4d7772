package service

import (
	"context"

	"anggaran/internal/config"
	"anggaran/internal/repository"

	"gorm.io/gorm"
)

// eventWriter 业务事务内写 outbox，由 OutboxSender 异步投递到 Kafka
type eventWriter struct {
	outboxRepo *repository.OutboxRepository
	topic      string
}

func newEventWriter(db *gorm.DB, cfg *config.Config) *eventWriter {
	return &eventWriter{
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      cfg.Kafka.Topic.BudgetEvents,
	}
}

// emit 事件按预算ID分区，同一预算的事件保持顺序
func (w *eventWriter) emit(ctx context.Context, tx *gorm.DB, budgetID, event string, data map[string]interface{}) error {
	return w.outboxRepo.Enqueue(ctx, tx, w.topic, budgetID, event, data)
}
