package models

import "time"

// User 用户表（精简版，仅保留图谱归属所需字段）
type User struct {
	UserID     uint      `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username   string    `gorm:"column:username;size:100;uniqueIndex;not null" json:"username"`
	Email      string    `gorm:"column:email;size:200;uniqueIndex;not null" json:"email"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (User) TableName() string {
	return "users"
}
