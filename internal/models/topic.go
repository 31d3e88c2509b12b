package models

import "time"

// Topic 用户维度的查询聚类
// 不变量：质心始终等于全部成员查询嵌入的算术平均（只增不减的单调聚合）
type Topic struct {
	TopicID     uint      `gorm:"primaryKey;column:topic_id" json:"topic_id"`
	UserID      uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Label       string    `gorm:"column:label;size:200;not null" json:"label"`
	Centroid    string    `gorm:"column:centroid;type:jsonb;not null" json:"-"`
	MemberCount int64     `gorm:"column:member_count;not null;default:1" json:"member_count"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (Topic) TableName() string {
	return "topics"
}
