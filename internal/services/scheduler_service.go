package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/config"
	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/kafka"
	"github.com/aihub/researchgraph/internal/metrics"
	"github.com/aihub/researchgraph/internal/models"
	"github.com/aihub/researchgraph/internal/repository"
)

// CycleReport 一轮调度的汇总
type CycleReport struct {
	GapsConsidered int `json:"gaps_considered"`
	DirectionsRun  int `json:"directions_run"`
	Completed      int `json:"completed"`
	Exhausted      int `json:"exhausted"`
	Failed         int `json:"failed"`
}

// userGap 带用户归属的缺口候选
type userGap struct {
	userID uint
	gap    graph.TopicGap
}

// SchedulerService 自主研究调度器
// 每轮取优先级最高的缺口，逐个生成桥接查询并跑完整摄取管线
// 顺序处理共享同一外部调用配额，不做并行
type SchedulerService struct {
	topics     repository.TopicRepository
	directions repository.DirectionRepository
	analyzer   *graph.BridgeGapAnalyzer
	labeler    graph.Labeler
	search     graph.SearchProvider
	research   *ResearchService
	producer   *kafka.Producer
	redisCli   *redis.Client
	cfg        config.SchedulerConfig
	maxResults int
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewSchedulerService 创建调度器，labeler/search/producer/redisCli均可为nil（对应能力降级）
func NewSchedulerService(
	topics repository.TopicRepository,
	directions repository.DirectionRepository,
	analyzer *graph.BridgeGapAnalyzer,
	labeler graph.Labeler,
	search graph.SearchProvider,
	research *ResearchService,
	producer *kafka.Producer,
	redisCli *redis.Client,
	cfg config.SchedulerConfig,
	searchCfg config.SearchConfig,
	cacheTTLSeconds int,
	log *zap.Logger,
) *SchedulerService {
	maxResults := searchCfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &SchedulerService{
		topics:     topics,
		directions: directions,
		analyzer:   analyzer,
		labeler:    labeler,
		search:     search,
		research:   research,
		producer:   producer,
		redisCli:   redisCli,
		cfg:        cfg,
		maxResults: maxResults,
		cacheTTL:   time.Duration(cacheTTLSeconds) * time.Second,
		logger:     log,
	}
}

// Start 按配置的间隔循环执行调度，ctx取消时退出
func (s *SchedulerService) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	s.logger.Info("research scheduler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("research scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.Error("scheduler cycle failed", zap.Error(err))
			}
		}
	}
}

// RunCycle 执行一轮调度
// 单个方向的失败记入其终态后继续处理下一个，不中断整轮
func (s *SchedulerService) RunCycle(ctx context.Context) (*CycleReport, error) {
	if s.search == nil {
		metrics.SchedulerCycles.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("scheduler requires a search provider")
	}

	gaps, err := s.collectGaps(ctx)
	if err != nil {
		metrics.SchedulerCycles.WithLabelValues("failed").Inc()
		return nil, err
	}

	report := &CycleReport{GapsConsidered: len(gaps)}
	limit := s.cfg.MaxDirections
	if limit <= 0 {
		limit = 3
	}
	if len(gaps) > limit {
		gaps = gaps[:limit]
	}

	for _, candidate := range gaps {
		report.DirectionsRun++
		status := s.runDirection(ctx, candidate)
		switch status {
		case models.DirectionStatusCompleted:
			report.Completed++
		case models.DirectionStatusExhausted:
			report.Exhausted++
		default:
			report.Failed++
		}
	}

	s.refreshSimilarityCache(ctx)
	metrics.SchedulerCycles.WithLabelValues("ok").Inc()
	s.logger.Info("scheduler cycle finished",
		zap.Int("gaps_considered", report.GapsConsidered),
		zap.Int("completed", report.Completed),
		zap.Int("exhausted", report.Exhausted),
		zap.Int("failed", report.Failed))
	return report, nil
}

// collectGaps 汇总全部用户的缺口并按优先级降序排列
func (s *SchedulerService) collectGaps(ctx context.Context) ([]userGap, error) {
	userIDs, err := s.topics.ListUsersWithTopics(ctx)
	if err != nil {
		return nil, err
	}

	var gaps []userGap
	for _, userID := range userIDs {
		userGaps, err := s.analyzer.TopicGaps(ctx, userID, s.cfg.MaxDirections)
		if err != nil {
			s.logger.Warn("gap analysis failed for user, skipping",
				zap.Uint("user_id", userID),
				zap.Error(err))
			continue
		}
		for _, gap := range userGaps {
			gaps = append(gaps, userGap{userID: userID, gap: gap})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		return gaps[i].gap.PriorityScore > gaps[j].gap.PriorityScore
	})
	return gaps, nil
}

// runDirection 处理一个研究方向直到终态，返回终态状态
func (s *SchedulerService) runDirection(ctx context.Context, candidate userGap) string {
	gap := candidate.gap

	bridgeQuery := s.resolveBridgeQuery(ctx, gap.LabelA, gap.LabelB)
	scoreBefore, err := s.analyzer.PairBridgeScore(ctx, gap.TopicAID, gap.TopicBID)
	if err != nil {
		s.logger.Warn("pre-score computation failed, recording zero",
			zap.Uint("topic_a_id", gap.TopicAID),
			zap.Uint("topic_b_id", gap.TopicBID),
			zap.Error(err))
		scoreBefore = 0
	}

	direction := &models.ResearchDirection{
		TopicAID:          gap.TopicAID,
		TopicBID:          gap.TopicBID,
		BridgeQuery:       bridgeQuery,
		Status:            models.DirectionStatusSearching,
		BridgeScoreBefore: scoreBefore,
	}
	if err := s.directions.Create(ctx, direction); err != nil {
		s.logger.Error("failed to create research direction", zap.Error(err))
		return models.DirectionStatusFailed
	}

	results, err := s.search.Search(ctx, bridgeQuery, s.maxResults)
	if err != nil {
		metrics.ExternalCallErrors.WithLabelValues("search").Inc()
		return s.finishDirection(ctx, direction, models.DirectionStatusFailed, 0, nil, err)
	}
	if len(results) == 0 {
		// 检索无结果不算错误，方向走到exhausted终态
		return s.finishDirection(ctx, direction, models.DirectionStatusExhausted, 0, nil, nil)
	}

	if _, err := s.research.ProcessQuery(ctx, candidate.userID, bridgeQuery, results); err != nil {
		return s.finishDirection(ctx, direction, models.DirectionStatusFailed, 0, nil, err)
	}

	var scoreAfter *float64
	if after, err := s.analyzer.PairBridgeScore(ctx, gap.TopicAID, gap.TopicBID); err != nil {
		s.logger.Warn("post-score computation failed",
			zap.Uint("direction_id", direction.DirectionID),
			zap.Error(err))
	} else {
		scoreAfter = &after
	}
	return s.finishDirection(ctx, direction, models.DirectionStatusCompleted, len(results), scoreAfter, nil)
}

// finishDirection 写入终态并发布事件，返回实际记录的状态
func (s *SchedulerService) finishDirection(ctx context.Context, direction *models.ResearchDirection, status string, sourcesFound int, scoreAfter *float64, cause error) string {
	var errorText *string
	if cause != nil {
		text := cause.Error()
		errorText = &text
		s.logger.Error("research direction failed",
			zap.Uint("direction_id", direction.DirectionID),
			zap.String("bridge_query", direction.BridgeQuery),
			zap.Error(cause))
	}

	if err := s.directions.Finish(ctx, direction.DirectionID, status, sourcesFound, scoreAfter, errorText); err != nil {
		s.logger.Error("failed to finish research direction",
			zap.Uint("direction_id", direction.DirectionID),
			zap.Error(err))
		return models.DirectionStatusFailed
	}

	metrics.DirectionsFinished.WithLabelValues(status).Inc()
	if s.producer != nil {
		event := &kafka.DirectionFinishedEvent{
			DirectionID:  direction.DirectionID,
			TopicAID:     direction.TopicAID,
			TopicBID:     direction.TopicBID,
			Status:       status,
			SourcesFound: sourcesFound,
		}
		if err := s.producer.PublishDirectionFinished(event); err != nil {
			s.logger.Warn("failed to publish direction finished event", zap.Error(err))
		}
	}
	return status
}

func (s *SchedulerService) resolveBridgeQuery(ctx context.Context, labelA, labelB string) string {
	fallback := fmt.Sprintf("%s and %s", labelA, labelB)
	if s.labeler == nil {
		return fallback
	}
	query, err := s.labeler.BridgeQuery(ctx, labelA, labelB)
	if err != nil || query == "" {
		metrics.ExternalCallErrors.WithLabelValues("labeler").Inc()
		s.logger.Warn("bridge query generation degraded to fallback", zap.Error(err))
		return fallback
	}
	return query
}

// refreshSimilarityCache 把每个用户的话题对质心相似度物化到Redis，失败只记日志
func (s *SchedulerService) refreshSimilarityCache(ctx context.Context) {
	if s.redisCli == nil {
		return
	}

	userIDs, err := s.topics.ListUsersWithTopics(ctx)
	if err != nil {
		s.logger.Warn("similarity cache refresh skipped", zap.Error(err))
		return
	}

	for _, userID := range userIDs {
		topics, err := s.topics.ListByUser(ctx, userID)
		if err != nil {
			s.logger.Warn("similarity cache refresh failed for user",
				zap.Uint("user_id", userID),
				zap.Error(err))
			continue
		}

		fields := make(map[string]interface{})
		for i := 0; i < len(topics); i++ {
			centroidA, err := graph.DecodeEmbedding(topics[i].Centroid)
			if err != nil {
				continue
			}
			for j := i + 1; j < len(topics); j++ {
				centroidB, err := graph.DecodeEmbedding(topics[j].Centroid)
				if err != nil {
					continue
				}
				field := fmt.Sprintf("%d:%d", topics[i].TopicID, topics[j].TopicID)
				fields[field] = graph.CosineSimilarity(centroidA, centroidB)
			}
		}
		if len(fields) == 0 {
			continue
		}

		key := fmt.Sprintf("graph:topic_sim:%d", userID)
		pipe := s.redisCli.Pipeline()
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.cacheTTL > 0 {
			pipe.Expire(ctx, key, s.cacheTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("failed to write similarity cache",
				zap.Uint("user_id", userID),
				zap.Error(err))
		}
	}
}
