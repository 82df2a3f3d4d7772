package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetUsageHistory 预算使用流水
//
// 【流水表设计原则】
// 1. 只追加，不修改
// 2. 每笔支出对应一行
// 3. 仅在级联删除预算时随预算一起删除
type BudgetUsageHistory struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BudgetID   string          `gorm:"type:varchar(40);index;not null" json:"budget_id"`
	ExpenseID  string          `gorm:"type:varchar(40);uniqueIndex;not null" json:"expense_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	RecordedAt time.Time       `gorm:"autoCreateTime;index" json:"recorded_at"`
}

func (BudgetUsageHistory) TableName() string {
	return "budget_usage_history"
}
