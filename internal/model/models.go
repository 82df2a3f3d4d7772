package model

// All 返回需要自动迁移的全部表
func All() []interface{} {
	return []interface{}{
		&Budget{},
		&Expense{},
		&AdditionalAllocation{},
		&BudgetUsageHistory{},
		&User{},
		&ReceiptUpload{},
		&OutboxMessage{},
	}
}
