package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"anggaran/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue 在业务事务内写入一条待发送的预算事件
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *gorm.DB, topic, key, event string, data map[string]interface{}) error {
	payload := map[string]interface{}{"event": event}
	for k, v := range data {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    datatypes.JSON(raw),
		Status:     model.OutboxStatusPending,
	}
	return write(ctx, r.db, tx).Create(msg).Error
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.
			Where("status = ?", model.OutboxStatusPending).
			Order("id ASC").
			Limit(limit).
			Find(&messages).Error
	})
	return messages, err
}

func (r *OutboxRepository) ListByKey(ctx context.Context, key string) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Where("message_key = ?", key).Order("id ASC").Find(&messages).Error
	})
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 记录一次发送失败；达到 maxRetry 时标记为 FAILED 不再重试
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetry int) (bool, error) {
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
	}
	failed := msg.RetryCount+1 >= maxRetry
	if failed {
		updates["status"] = model.OutboxStatusFailed
	}
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", msg.ID).
		Updates(updates).Error
	return failed, err
}
