package repository

import (
	"context"

	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/models"
)

// TopicRepository 话题仓库
type TopicRepository interface {
	BestMatch(ctx context.Context, userID uint, embedding []float32, threshold float64) (*graph.TopicMatchInfo, error)
	AppendMember(ctx context.Context, topicID uint, embedding []float32) (*models.Topic, error)
	Create(ctx context.Context, userID uint, label string, embedding []float32) (*models.Topic, error)
	Get(ctx context.Context, topicID uint) (*models.Topic, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Topic, error)
	ListUsersWithTopics(ctx context.Context) ([]uint, error)
}

// QueryRepository 查询仓库
type QueryRepository interface {
	Create(ctx context.Context, userID uint, text string) (*models.Query, error)
	Get(ctx context.Context, queryID uint) (*models.Query, error)
	AssignTopic(ctx context.Context, queryID, topicID uint) error
	SetSynthesis(ctx context.Context, queryID uint, synthesis string) error
	TextsByIDs(ctx context.Context, queryIDs []uint) (map[uint]string, error)
}

// SourceRepository 来源仓库
type SourceRepository interface {
	// UpsertByIdentity 幂等创建：同一(origin, external_id)已有存活记录时返回现有行，created=false
	UpsertByIdentity(ctx context.Context, src *models.Source) (created bool, err error)
	Get(ctx context.Context, sourceID uint) (*models.Source, error)
	ListRecent(ctx context.Context, limit int) ([]models.Source, error)
	// MergeSources 合并：胜者吸收败者的全部Connection外键，删除败者后按需回填DOI
	// 整体在单个事务内执行，先改指后删除
	MergeSources(ctx context.Context, winnerID, loserID uint, backfillDOI *string) error
}

// ConnectionRepository 关系仓库
type ConnectionRepository interface {
	BulkCreate(ctx context.Context, connections []models.Connection) error
	ListByQuery(ctx context.Context, queryID uint) ([]models.Connection, error)
	ListBySource(ctx context.Context, sourceID uint) ([]models.Connection, error)
}

// DirectionRepository 研究方向仓库
type DirectionRepository interface {
	Create(ctx context.Context, direction *models.ResearchDirection) error
	// Finish 将方向从searching迁移到终态，终态后不再变更
	Finish(ctx context.Context, directionID uint, status string, sourcesFound int, bridgeScoreAfter *float64, errorText *string) error
	Get(ctx context.Context, directionID uint) (*models.ResearchDirection, error)
	ListRecent(ctx context.Context, limit int) ([]models.ResearchDirection, error)
}
