package models

import "time"

// 关系类型枚举
const (
	RelationAgrees      = "agrees"
	RelationContradicts = "contradicts"
	RelationExtends     = "extends"
	RelationGap         = "gap"
)

// ValidRelation 校验关系类型取值
func ValidRelation(kind string) bool {
	switch kind {
	case RelationAgrees, RelationContradicts, RelationExtends, RelationGap:
		return true
	}
	return false
}

// Connection 一次分析产出的两个来源之间的带权关系
// 去重合并时两侧外键被原子地改指到胜者，不会复制
type Connection struct {
	ConnectionID uint      `gorm:"primaryKey;column:connection_id" json:"connection_id"`
	QueryID      uint      `gorm:"column:query_id;not null;index" json:"query_id"`
	SourceAID    uint      `gorm:"column:source_a_id;not null;index" json:"source_a_id"`
	SourceBID    uint      `gorm:"column:source_b_id;not null;index" json:"source_b_id"`
	Relationship string    `gorm:"column:relationship;size:20;not null" json:"relationship"`
	Explanation  string    `gorm:"column:explanation;type:text" json:"explanation"`
	Strength     float64   `gorm:"column:strength;not null" json:"strength"`
	CreateTime   time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Connection) TableName() string {
	return "connections"
}
