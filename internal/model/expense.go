package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense 支出表
// 创建后不再修改，没有状态字段（创建即视为已批准）
type Expense struct {
	ID                     string          `gorm:"type:varchar(40);primaryKey" json:"id"`
	BudgetID               string          `gorm:"type:varchar(40);index;not null" json:"budget_id"`
	Description            string          `gorm:"type:varchar(512);not null" json:"description"`
	Amount                 decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Date                   time.Time       `gorm:"not null" json:"date"`
	SubmittedBy            string          `gorm:"type:varchar(64);not null" json:"submitted_by"`
	SubmittedAt            time.Time       `gorm:"not null;index" json:"submitted_at"`
	Notes                  *string         `gorm:"type:text" json:"notes,omitempty"`
	AdditionalAllocationID *string         `gorm:"type:varchar(40);index" json:"additional_allocation_id,omitempty"`
	ReceiptURL             *string         `gorm:"type:varchar(512)" json:"receipt_url,omitempty"`
}

func (Expense) TableName() string {
	return "expenses"
}
