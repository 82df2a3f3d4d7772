package idgen

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// 业务 ID 生成器
// ============================================================================
//
// 预算、支出、追加拨款沿用可读前缀：
//
//   BDG-2024-<雪花ID>   预算
//   EXP-2024-<雪花ID>   支出
//   ALC-2024-<雪花ID>   追加拨款
//   USR-<雪花ID>        用户
//
// 旧方案使用 年份 + 3 位随机数，并发创建时会撞号且插入前没有检查。
// 这里改用雪花ID作为后缀（Base36 大写），同一节点内严格唯一、趋势递增。
//
// ============================================================================

const (
	PrefixBudget     = "BDG"
	PrefixExpense    = "EXP"
	PrefixAllocation = "ALC"
	PrefixUser       = "USR"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init 初始化雪花节点，nodeID 取值 0-1023
func Init(nodeID int64) {
	once.Do(func() {
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			log.Fatalf("初始化雪花节点失败: %v", err)
		}
		node = n
	})
}

// NextID 生成下一个雪花ID，未初始化时使用节点 1
func NextID() snowflake.ID {
	Init(1)
	return node.Generate()
}

func withYear(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), strings.ToUpper(NextID().Base36()))
}

// GenerateBudgetID 生成预算ID，例如 BDG-2024-3F9K2LQ8ZT1C
func GenerateBudgetID() string {
	return withYear(PrefixBudget, time.Now())
}

// GenerateExpenseID 生成支出ID
func GenerateExpenseID() string {
	return withYear(PrefixExpense, time.Now())
}

// GenerateAllocationID 生成追加拨款ID
func GenerateAllocationID() string {
	return withYear(PrefixAllocation, time.Now())
}

// GenerateUserID 生成用户ID
func GenerateUserID() string {
	return fmt.Sprintf("%s-%s", PrefixUser, strings.ToUpper(NextID().Base36()))
}
