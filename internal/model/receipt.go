package model

import (
	"time"
)

// ReceiptUpload 收据上传记录（两阶段）
// 第一阶段写入暂存区，表单提交时第二阶段转存到正式目录
type ReceiptUpload struct {
	ID          string     `gorm:"type:varchar(40);primaryKey" json:"id"` // 上传令牌
	StagingKey  string     `gorm:"type:varchar(512);not null" json:"-"`
	FinalKey    *string    `gorm:"type:varchar(512)" json:"final_key,omitempty"`
	URL         *string    `gorm:"type:varchar(512)" json:"url,omitempty"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"file_name"`
	ContentType string     `gorm:"type:varchar(128)" json:"content_type"`
	Size        int64      `gorm:"not null" json:"size"`
	UploadedBy  string     `gorm:"type:varchar(64);not null" json:"uploaded_by"`
	FinalizedAt *time.Time `gorm:"index" json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ReceiptUpload) TableName() string {
	return "receipt_uploads"
}

func (r *ReceiptUpload) Finalized() bool {
	return r.FinalizedAt != nil
}
