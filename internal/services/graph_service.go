package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/metrics"
	"github.com/aihub/researchgraph/internal/models"
	"github.com/aihub/researchgraph/internal/repository"
)

// TopicOverview 话题及其成员查询概览
type TopicOverview struct {
	Topic   models.Topic   `json:"topic"`
	Queries []models.Query `json:"queries"`
}

// GraphService 图谱读取与维护操作
type GraphService struct {
	topics      repository.TopicRepository
	queries     repository.QueryRepository
	connections repository.ConnectionRepository
	analyzer    *graph.BridgeGapAnalyzer
	dedup       *graph.DedupEngine
	logger      *zap.Logger
}

// NewGraphService 创建图谱服务
func NewGraphService(
	topics repository.TopicRepository,
	queries repository.QueryRepository,
	connections repository.ConnectionRepository,
	analyzer *graph.BridgeGapAnalyzer,
	dedup *graph.DedupEngine,
	log *zap.Logger,
) *GraphService {
	return &GraphService{
		topics:      topics,
		queries:     queries,
		connections: connections,
		analyzer:    analyzer,
		dedup:       dedup,
		logger:      log,
	}
}

// ListTopics 返回用户全部话题
func (s *GraphService) ListTopics(ctx context.Context, userID uint) ([]models.Topic, error) {
	return s.topics.ListByUser(ctx, userID)
}

// TopicGaps 返回用户的知识缺口，按优先级降序
func (s *GraphService) TopicGaps(ctx context.Context, userID uint, limit int) ([]graph.TopicGap, error) {
	return s.analyzer.TopicGaps(ctx, userID, limit)
}

// SemanticBridges 返回用户话题之间的语义桥
func (s *GraphService) SemanticBridges(ctx context.Context, userID uint, limit int) ([]graph.TopicBridge, error) {
	return s.analyzer.SemanticBridges(ctx, userID, limit)
}

// QueryConnections 返回一次查询产出的全部关系
func (s *GraphService) QueryConnections(ctx context.Context, queryID uint) ([]models.Connection, error) {
	return s.connections.ListByQuery(ctx, queryID)
}

// DedupSweep 执行一轮去重，dryRun时只返回候选不落库
func (s *GraphService) DedupSweep(ctx context.Context, scanWindow, maxPairs int, dryRun bool) (*graph.SweepReport, error) {
	report, err := s.dedup.Sweep(ctx, scanWindow, maxPairs, dryRun)
	if err != nil {
		return nil, err
	}
	if !dryRun {
		for range report.Merged {
			metrics.SourcesMerged.Inc()
		}
	}
	return report, nil
}
