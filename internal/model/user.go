package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

// AccountStatus 账号生命周期。用户从不物理删除，Deleted 也只是状态
type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusDeleted   AccountStatus = "deleted"
)

// swagger:model User
type User struct {
	BaseModel
	Name      string        `gorm:"size:100;not null" json:"name"`
	Email     string        `gorm:"size:100;unique;not null" json:"email"`
	Password  string        `gorm:"size:100;not null" json:"-"`
	Role      UserRole      `gorm:"type:enum('student','admin');default:'student'" json:"role"`
	Status    AccountStatus `gorm:"type:enum('pending','active','suspended','deleted');default:'pending'" json:"status"`
	Language  string        `gorm:"size:10;default:'en'" json:"language"`
	LastLogin time.Time     `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastLogin"`
	LastSeen  time.Time     `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
