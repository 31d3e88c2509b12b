package models

import "time"

// 研究方向状态机：searching → {completed | exhausted | failed}，终态不再变更
const (
	DirectionStatusSearching = "searching"
	DirectionStatusCompleted = "completed"
	DirectionStatusExhausted = "exhausted"
	DirectionStatusFailed    = "failed"
)

// TerminalDirectionStatus 判断状态是否为终态
func TerminalDirectionStatus(status string) bool {
	switch status {
	case DirectionStatusCompleted, DirectionStatusExhausted, DirectionStatusFailed:
		return true
	}
	return false
}

// ResearchDirection 一次自主补缺工作单元
type ResearchDirection struct {
	DirectionID       uint       `gorm:"primaryKey;column:direction_id" json:"direction_id"`
	TopicAID          uint       `gorm:"column:topic_a_id;not null;index" json:"topic_a_id"`
	TopicBID          uint       `gorm:"column:topic_b_id;not null;index" json:"topic_b_id"`
	BridgeQuery       string     `gorm:"column:bridge_query;type:text;not null" json:"bridge_query"`
	Status            string     `gorm:"column:status;size:20;not null;index" json:"status"`
	BridgeScoreBefore float64    `gorm:"column:bridge_score_before" json:"bridge_score_before"`
	BridgeScoreAfter  *float64   `gorm:"column:bridge_score_after" json:"bridge_score_after"`
	SourcesFound      int        `gorm:"column:sources_found" json:"sources_found"`
	ErrorText         *string    `gorm:"column:error_text;type:text" json:"error_text"`
	CreateTime        time.Time  `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

func (ResearchDirection) TableName() string {
	return "research_directions"
}
