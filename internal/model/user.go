package model

import "gorm.io/datatypes"

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// User 由外部账户系统维护，这里只读取推荐需要的字段
// swagger:model User
type User struct {
	BaseModel
	Name  string                      `gorm:"size:100;not null" json:"name"`
	Email string                      `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role  UserRole                    `gorm:"size:20;default:'student'" json:"role"`
	Level string                      `gorm:"size:30;default:'beginner'" json:"level"`
	Goals datatypes.JSONSlice[string] `json:"goals"`
}

func (User) TableName() string {
	return "users"
}
