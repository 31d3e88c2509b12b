package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/models"
)

// TopicStore 分类器所需的话题持久化能力
type TopicStore interface {
	BestMatch(ctx context.Context, userID uint, embedding []float32, threshold float64) (*TopicMatchInfo, error)
	AppendMember(ctx context.Context, topicID uint, embedding []float32) (*models.Topic, error)
	Create(ctx context.Context, userID uint, label string, embedding []float32) (*models.Topic, error)
}

// TopicMatchInfo 话题匹配结果
type TopicMatchInfo struct {
	TopicID    uint
	Label      string
	Similarity float64
}

// TopicAssigner 把话题归属写回查询行
type TopicAssigner interface {
	AssignTopic(ctx context.Context, queryID, topicID uint) error
}

// ClassifyResult 一次分类的结果
type ClassifyResult struct {
	TopicID    uint    `json:"topic_id"`
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"`
	Created    bool    `json:"created"`
}

// TopicClassifier 在线增量话题分类器
// 每条查询恰好归入一个话题：命中阈值时并入最相似话题，否则新建
type TopicClassifier struct {
	topics    TopicStore
	queries   TopicAssigner
	labeler   Labeler
	threshold float64
	logger    *zap.Logger
}

// NewTopicClassifier 创建话题分类器，labeler可为nil（总是走降级标签）
func NewTopicClassifier(topics TopicStore, queries TopicAssigner, labeler Labeler, threshold float64, log *zap.Logger) *TopicClassifier {
	return &TopicClassifier{
		topics:    topics,
		queries:   queries,
		labeler:   labeler,
		threshold: threshold,
		logger:    log,
	}
}

// Classify 为一条查询确定话题归属
// 话题检索失败按无匹配处理（宁可新建话题也不丢失归属），标签生成失败走确定性降级
func (c *TopicClassifier) Classify(ctx context.Context, userID, queryID uint, queryText string, embedding []float32) (*ClassifyResult, error) {
	match, err := c.topics.BestMatch(ctx, userID, embedding, c.threshold)
	if err != nil {
		c.logger.Warn("topic lookup failed, treating as no match",
			zap.Uint("query_id", queryID),
			zap.Error(err))
		match = nil
	}

	if match != nil {
		topic, err := c.topics.AppendMember(ctx, match.TopicID, embedding)
		if err != nil {
			return nil, err
		}
		if err := c.queries.AssignTopic(ctx, queryID, topic.TopicID); err != nil {
			return nil, err
		}
		return &ClassifyResult{
			TopicID:    topic.TopicID,
			Label:      topic.Label,
			Similarity: match.Similarity,
			Created:    false,
		}, nil
	}

	label := c.resolveLabel(ctx, queryID, queryText)
	topic, err := c.topics.Create(ctx, userID, label, embedding)
	if err != nil {
		return nil, err
	}
	if err := c.queries.AssignTopic(ctx, queryID, topic.TopicID); err != nil {
		return nil, err
	}
	return &ClassifyResult{
		TopicID: topic.TopicID,
		Label:   topic.Label,
		Created: true,
	}, nil
}

func (c *TopicClassifier) resolveLabel(ctx context.Context, queryID uint, queryText string) string {
	if c.labeler == nil {
		return FallbackLabel(queryText)
	}
	label, err := c.labeler.LabelTopic(ctx, queryText)
	if err != nil || label == "" {
		c.logger.Warn("topic labeling degraded to fallback",
			zap.Uint("query_id", queryID),
			zap.Error(err))
		return FallbackLabel(queryText)
	}
	return label
}
