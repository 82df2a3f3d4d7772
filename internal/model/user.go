package model

import (
	"time"
)

// 角色只用于路由守卫，数据访问层不做权限控制
const (
	RoleSupervisor = "SUPERVISOR"
	RoleOperator   = "OPERATOR"
)

type User struct {
	ID           string     `gorm:"type:varchar(40);primaryKey" json:"id"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string     `gorm:"type:varchar(128)" json:"full_name"`
	Role         string     `gorm:"type:varchar(20);not null" json:"role"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
