package models

import "time"

// Query 一次用户检索请求
// 话题归属在创建后由分类器设置一次，之后不再变更
type Query struct {
	QueryID    uint      `gorm:"primaryKey;column:query_id" json:"query_id"`
	UserID     uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Text       string    `gorm:"column:text;type:text;not null" json:"text"`
	TopicID    *uint     `gorm:"column:topic_id;index" json:"topic_id"`
	Synthesis  string    `gorm:"column:synthesis;type:text" json:"synthesis"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime;index" json:"create_time"`
}

func (Query) TableName() string {
	return "queries"
}
