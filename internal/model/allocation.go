package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdditionalAllocation 追加拨款表
//
// ApprovedBy/ApprovedAt 保留为审计字段：系统已没有人工审批环节，
// 创建时直接填入申请人与申请时间。
type AdditionalAllocation struct {
	ID               string          `gorm:"type:varchar(40);primaryKey" json:"id"`
	OriginalBudgetID string          `gorm:"type:varchar(40);index;not null" json:"original_budget_id"`
	Description      string          `gorm:"type:varchar(512);not null" json:"description"`
	Reason           string          `gorm:"type:varchar(512);not null" json:"reason"`
	Amount           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	RequestDate      time.Time       `gorm:"not null" json:"request_date"`
	RequestedBy      string          `gorm:"type:varchar(64);not null" json:"requested_by"`
	RequestedAt      time.Time       `gorm:"not null" json:"requested_at"`
	ApprovedBy       string          `gorm:"type:varchar(64);not null" json:"approved_by"`
	ApprovedAt       time.Time       `gorm:"not null" json:"approved_at"`
	RelatedExpenseID *string         `gorm:"type:varchar(40);index" json:"related_expense_id,omitempty"`
}

func (AdditionalAllocation) TableName() string {
	return "additional_allocations"
}
