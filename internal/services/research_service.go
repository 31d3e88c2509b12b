package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/kafka"
	"github.com/aihub/researchgraph/internal/metrics"
	"github.com/aihub/researchgraph/internal/models"
	"github.com/aihub/researchgraph/internal/repository"
)

// QueryResult 一次查询摄取的完整产出
type QueryResult struct {
	QueryID     uint                  `json:"query_id"`
	Topic       *graph.ClassifyResult `json:"topic,omitempty"`
	Sources     []models.Source       `json:"sources"`
	Echoes      []graph.Echo          `json:"echoes"`
	Analysis    *graph.AnalysisResult `json:"analysis"`
	Connections []models.Connection   `json:"connections"`
}

// ResearchService 查询摄取管线
// 顺序：向量化 → 来源落库 → 三路并发（分类/呼应/分析）→ 结果持久化
type ResearchService struct {
	queries     repository.QueryRepository
	sources     repository.SourceRepository
	connections repository.ConnectionRepository
	store       graph.VectorStore
	embedder    graph.Embedder
	analysis    graph.AnalysisService
	classifier  *graph.TopicClassifier
	matcher     *graph.CrossQueryMatcher
	producer    *kafka.Producer
	logger      *zap.Logger
}

// NewResearchService 创建摄取管线，producer可为nil（不发事件）
func NewResearchService(
	queries repository.QueryRepository,
	sources repository.SourceRepository,
	connections repository.ConnectionRepository,
	store graph.VectorStore,
	embedder graph.Embedder,
	analysis graph.AnalysisService,
	classifier *graph.TopicClassifier,
	matcher *graph.CrossQueryMatcher,
	producer *kafka.Producer,
	log *zap.Logger,
) *ResearchService {
	return &ResearchService{
		queries:     queries,
		sources:     sources,
		connections: connections,
		store:       store,
		embedder:    embedder,
		analysis:    analysis,
		classifier:  classifier,
		matcher:     matcher,
		producer:    producer,
		logger:      log,
	}
}

// ProcessQuery 执行一次完整摄取
// 分析失败使整次请求失败；分类和呼应匹配失败只降级对应产出
func (s *ResearchService) ProcessQuery(ctx context.Context, userID uint, queryText string, results []graph.SearchResult) (*QueryResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, apperrors.NewValidationError("query text is empty")
	}
	if len(results) == 0 {
		return nil, apperrors.NewValidationError("no search results to ingest")
	}

	query, err := s.queries.Create(ctx, userID, queryText)
	if err != nil {
		metrics.QueriesProcessed.WithLabelValues("failed").Inc()
		return nil, err
	}

	// 1. 一次批量调用覆盖查询文本和全部来源
	embedStart := time.Now()
	texts := make([]string, 0, len(results)+1)
	texts = append(texts, queryText)
	for _, r := range results {
		texts = append(texts, embeddingText(r))
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		metrics.QueriesProcessed.WithLabelValues("failed").Inc()
		metrics.ExternalCallErrors.WithLabelValues("embedding").Inc()
		return nil, err
	}
	metrics.PipelineStageDuration.WithLabelValues("embed").Observe(time.Since(embedStart).Seconds())
	queryEmbedding := embeddings[0]
	sourceEmbeddings := embeddings[1:]

	// 2. 来源落库（幂等）+ 向量副本写入，来源行先于引用它的关系行存在
	storeStart := time.Now()
	sources, err := s.storeSources(ctx, query.QueryID, results, sourceEmbeddings)
	if err != nil {
		metrics.QueriesProcessed.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.PipelineStageDuration.WithLabelValues("store").Observe(time.Since(storeStart).Seconds())

	// 3. 三路并发：分类、呼应匹配、关系分析
	var (
		wg          sync.WaitGroup
		topicResult *graph.ClassifyResult
		classifyErr error
		echoes      []graph.Echo
		analysisRes *graph.AnalysisResult
		analysisErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		start := time.Now()
		topicResult, classifyErr = s.classifier.Classify(ctx, userID, query.QueryID, queryText, queryEmbedding)
		metrics.PipelineStageDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		echoes = s.matcher.FindEchoes(ctx, query.QueryID, sourceEmbeddings)
		// 复用的历史来源向量副本仍挂在旧查询上，按ID再排除一次自身结果集
		echoes = dropSelfEchoes(echoes, sources)
		metrics.PipelineStageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		summaries := make([]graph.SourceSummary, len(results))
		for i, r := range results {
			summaries[i] = graph.SourceSummary{Index: i, Title: r.Title, Snippet: r.Snippet}
		}
		analysisRes, analysisErr = s.analysis.Analyze(ctx, queryText, summaries)
		metrics.PipelineStageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	}()
	wg.Wait()

	// 分析是请求的核心产出，失败即整体失败
	if analysisErr != nil {
		metrics.QueriesProcessed.WithLabelValues("failed").Inc()
		metrics.ExternalCallErrors.WithLabelValues("analysis").Inc()
		return nil, analysisErr
	}
	if classifyErr != nil {
		s.logger.Warn("topic classification degraded, query left unassigned",
			zap.Uint("query_id", query.QueryID),
			zap.Error(classifyErr))
		topicResult = nil
	}

	// 4. 持久化关系与综述
	persistStart := time.Now()
	connections := s.buildConnections(query.QueryID, sources, analysisRes.Relationships)
	if err := s.connections.BulkCreate(ctx, connections); err != nil {
		metrics.QueriesProcessed.WithLabelValues("failed").Inc()
		return nil, err
	}
	if analysisRes.Synthesis != "" {
		if err := s.queries.SetSynthesis(ctx, query.QueryID, analysisRes.Synthesis); err != nil {
			s.logger.Warn("failed to store synthesis", zap.Uint("query_id", query.QueryID), zap.Error(err))
		}
	}
	metrics.PipelineStageDuration.WithLabelValues("persist").Observe(time.Since(persistStart).Seconds())

	if topicResult != nil && topicResult.Created {
		metrics.TopicsCreated.Inc()
	}
	metrics.QueriesProcessed.WithLabelValues("ok").Inc()
	s.publishIngested(query.QueryID, userID, topicResult, len(sources), len(echoes))

	return &QueryResult{
		QueryID:     query.QueryID,
		Topic:       topicResult,
		Sources:     sources,
		Echoes:      echoes,
		Analysis:    analysisRes,
		Connections: connections,
	}, nil
}

// storeSources 幂等落库并写入向量副本
// 返回切片与输入结果一一对应；向量副本写入失败只降级呼应匹配，不阻断请求
func (s *ResearchService) storeSources(ctx context.Context, queryID uint, results []graph.SearchResult, embeddings [][]float32) ([]models.Source, error) {
	sources := make([]models.Source, len(results))
	for i, r := range results {
		encoded, err := graph.EncodeEmbedding(embeddings[i])
		if err != nil {
			return nil, fmt.Errorf("source %d has no embedding: %w", i, err)
		}

		src := models.Source{
			Origin:    r.Origin,
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Snippet,
			Embedding: encoded,
			QueryID:   queryID,
		}
		if r.ExternalID != "" {
			externalID := r.ExternalID
			src.ExternalID = &externalID
		}
		if r.DOI != "" {
			doi := r.DOI
			src.DOI = &doi
		}

		created, err := s.sources.UpsertByIdentity(ctx, &src)
		if err != nil {
			return nil, err
		}
		if created {
			if err := s.store.InsertSource(ctx, graph.SourceVector{
				SourceID:  src.SourceID,
				QueryID:   queryID,
				Title:     src.Title,
				Snippet:   src.Snippet,
				Embedding: embeddings[i],
			}); err != nil {
				metrics.ExternalCallErrors.WithLabelValues("vector_store").Inc()
				s.logger.Warn("vector insert failed, source excluded from similarity search",
					zap.Uint("source_id", src.SourceID),
					zap.Error(err))
			}
		}
		sources[i] = src
	}
	return sources, nil
}

// buildConnections 把分析产出的索引对映射为来源ID对，越界索引丢弃
func (s *ResearchService) buildConnections(queryID uint, sources []models.Source, relationships []graph.RelationshipResult) []models.Connection {
	var connections []models.Connection
	for _, rel := range relationships {
		if rel.SourceAIndex < 0 || rel.SourceAIndex >= len(sources) ||
			rel.SourceBIndex < 0 || rel.SourceBIndex >= len(sources) {
			s.logger.Warn("dropping relationship with out-of-range source index",
				zap.Uint("query_id", queryID),
				zap.Int("source_a_index", rel.SourceAIndex),
				zap.Int("source_b_index", rel.SourceBIndex))
			continue
		}
		connections = append(connections, models.Connection{
			QueryID:      queryID,
			SourceAID:    sources[rel.SourceAIndex].SourceID,
			SourceBID:    sources[rel.SourceBIndex].SourceID,
			Relationship: rel.Relationship,
			Explanation:  rel.Explanation,
			Strength:     rel.Strength,
		})
	}
	return connections
}

func (s *ResearchService) publishIngested(queryID, userID uint, topic *graph.ClassifyResult, sourceCount, echoCount int) {
	if s.producer == nil {
		return
	}
	event := &kafka.QueryIngestedEvent{
		QueryID:     queryID,
		UserID:      userID,
		SourceCount: sourceCount,
		EchoCount:   echoCount,
	}
	if topic != nil {
		event.TopicID = topic.TopicID
		event.TopicCreated = topic.Created
	}
	if err := s.producer.PublishQueryIngested(event); err != nil {
		s.logger.Warn("failed to publish query ingested event", zap.Uint("query_id", queryID), zap.Error(err))
	}
}

func dropSelfEchoes(echoes []graph.Echo, sources []models.Source) []graph.Echo {
	own := make(map[uint]bool, len(sources))
	for _, src := range sources {
		own[src.SourceID] = true
	}
	kept := echoes[:0]
	for _, echo := range echoes {
		if own[echo.MatchedSourceID] {
			continue
		}
		kept = append(kept, echo)
	}
	return kept
}

func embeddingText(r graph.SearchResult) string {
	if strings.TrimSpace(r.Snippet) == "" {
		return r.Title
	}
	return r.Title + "\n" + r.Snippet
}
