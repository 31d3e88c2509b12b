package models

import "time"

// 来源类型枚举，合并时按优先级裁决：arxiv > openalex > live_search
const (
	SourceOriginArxiv      = "arxiv"
	SourceOriginOpenAlex   = "openalex"
	SourceOriginLiveSearch = "live_search"
)

// OriginPriority 返回来源类型的合并优先级，数值越大优先级越高
func OriginPriority(origin string) int {
	switch origin {
	case SourceOriginArxiv:
		return 3
	case SourceOriginOpenAlex:
		return 2
	case SourceOriginLiveSearch:
		return 1
	default:
		return 0
	}
}

// Source 已摄取的文献/片段，全局共享（读权限由上层控制）
// 不变量：同一(origin, external_id)至多一条存活记录；携带DOI时DOI也至多一条存活记录
type Source struct {
	SourceID   uint      `gorm:"primaryKey;column:source_id" json:"source_id"`
	Origin     string    `gorm:"column:origin;size:20;not null;index:idx_sources_origin_ext,priority:1" json:"origin"`
	ExternalID *string   `gorm:"column:external_id;size:255;index:idx_sources_origin_ext,priority:2" json:"external_id"`
	DOI        *string   `gorm:"column:doi;size:255;index" json:"doi"`
	Title      string    `gorm:"column:title;size:500;not null" json:"title"`
	URL        string    `gorm:"column:url;size:1000" json:"url"`
	Snippet    string    `gorm:"column:snippet;type:text" json:"snippet"`
	Embedding  string    `gorm:"column:embedding;type:jsonb" json:"-"`
	QueryID    uint      `gorm:"column:query_id;index" json:"query_id"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime;index" json:"create_time"`
}

func (Source) TableName() string {
	return "sources"
}
