package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegacyBudgetStatusActive 旧版 budgets 表的 status 列取值。
// 新建表不再包含该列，仅在探测到列存在时写入
const LegacyBudgetStatusActive = "ACTIVE"

// Budget 预算表
// spent/additional/available 三个金额都是读取时汇总计算的，不落库
type Budget struct {
	ID          string          `gorm:"type:varchar(40);primaryKey" json:"id"`
	Name        string          `gorm:"type:varchar(128);not null" json:"name"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	StartDate   time.Time       `gorm:"not null" json:"start_date"`
	Description *string         `gorm:"type:varchar(512)" json:"description,omitempty"`
	CreatedBy   string          `gorm:"type:varchar(64);not null" json:"created_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Budget) TableName() string {
	return "budgets"
}
