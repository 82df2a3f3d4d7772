package repository

import (
	"context"
	"errors"
	"time"

	"anggaran/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUploadNotFound         = errors.New("berkas unggahan tidak ditemukan")
	ErrUploadAlreadyFinalized = errors.New("berkas unggahan sudah disimpan")
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(ctx context.Context, upload *model.ReceiptUpload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*model.ReceiptUpload, error) {
	var upload model.ReceiptUpload
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.Where("id = ?", id).First(&upload).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	return &upload, nil
}

// MarkFinalized 只有未转存的记录才能标记，重复转存返回 ErrUploadAlreadyFinalized
func (r *ReceiptRepository) MarkFinalized(ctx context.Context, tx *gorm.DB, id, finalKey, url string, at time.Time) error {
	result := write(ctx, r.db, tx).
		Model(&model.ReceiptUpload{}).
		Where("id = ? AND finalized_at IS NULL", id).
		Updates(map[string]interface{}{
			"final_key":    finalKey,
			"url":          url,
			"finalized_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUploadAlreadyFinalized
	}
	return nil
}

// ListStagedBefore 查找 before 之前上传且一直没有转存的记录
func (r *ReceiptRepository) ListStagedBefore(ctx context.Context, before time.Time, limit int) ([]*model.ReceiptUpload, error) {
	var uploads []*model.ReceiptUpload
	err := read(ctx, r.db, nil, func(conn *gorm.DB) error {
		return conn.
			Where("finalized_at IS NULL AND created_at < ?", before).
			Order("created_at ASC").
			Limit(limit).
			Find(&uploads).Error
	})
	return uploads, err
}

func (r *ReceiptRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ReceiptUpload{}).Error
}
