package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/models"
)

type researchFixture struct {
	queries  *memQueryRepo
	sources  *memSourceRepo
	conns    *memConnectionRepo
	topics   *memTopicRepo
	store    *memVectorStore
	embed    *stubEmbedder
	analysis *stubAnalysis
	svc      *ResearchService
}

func newResearchFixture() *researchFixture {
	f := &researchFixture{
		queries:  newMemQueryRepo(),
		sources:  newMemSourceRepo(),
		conns:    &memConnectionRepo{},
		topics:   newMemTopicRepo(),
		store:    &memVectorStore{},
		embed:    &stubEmbedder{byText: map[string][]float32{}},
		analysis: &stubAnalysis{result: &graph.AnalysisResult{Synthesis: "these sources converge"}},
	}
	classifier := graph.NewTopicClassifier(f.topics, f.queries, nil, 0.71, zap.NewNop())
	matcher := graph.NewCrossQueryMatcher(f.store, f.queries, f.sources, 0.54, 5, zap.NewNop())
	f.svc = NewResearchService(f.queries, f.sources, f.conns, f.store, f.embed, f.analysis, classifier, matcher, nil, zap.NewNop())
	return f
}

func searchResult(origin, externalID, title string) graph.SearchResult {
	return graph.SearchResult{Origin: origin, ExternalID: externalID, Title: title, URL: "https://example.org/" + externalID}
}

func TestProcessQueryFullPipeline(t *testing.T) {
	f := newResearchFixture()
	f.analysis.result = &graph.AnalysisResult{
		Synthesis: "paper two extends paper one",
		Relationships: []graph.RelationshipResult{
			{SourceAIndex: 0, SourceBIndex: 1, Relationship: "supports", Explanation: "same method", Strength: 0.8},
		},
	}

	result, err := f.svc.ProcessQuery(context.Background(), 1, "graph embeddings", []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "2401.0001", "paper one"),
		searchResult(models.SourceOriginOpenAlex, "W123", "paper two"),
	})
	require.NoError(t, err)

	require.Len(t, result.Sources, 2)
	assert.NotZero(t, result.Sources[0].SourceID)
	assert.NotZero(t, result.Sources[1].SourceID)

	// 关系索引映射到落库后的来源ID
	require.Len(t, result.Connections, 1)
	assert.Equal(t, result.Sources[0].SourceID, result.Connections[0].SourceAID)
	assert.Equal(t, result.Sources[1].SourceID, result.Connections[0].SourceBID)
	assert.Equal(t, "supports", result.Connections[0].Relationship)

	// 首个查询没有既有话题，分类走新建分支
	require.NotNil(t, result.Topic)
	assert.True(t, result.Topic.Created)
	query, err := f.queries.Get(context.Background(), result.QueryID)
	require.NoError(t, err)
	require.NotNil(t, query.TopicID)
	assert.Equal(t, result.Topic.TopicID, *query.TopicID)
	assert.Equal(t, "paper two extends paper one", query.Synthesis)

	persisted, err := f.conns.ListByQuery(context.Background(), result.QueryID)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestProcessQueryTopicThresholdBoundary(t *testing.T) {
	// 与既有质心[1,0,0]的余弦相似度分别落在0.71阈值两侧的单位向量
	below := []float32{0.70, 0.7141, 0}
	above := []float32{0.72, 0.6940, 0}

	run := func(t *testing.T, queryEmbedding []float32) *graph.ClassifyResult {
		f := newResearchFixture()
		f.topics.seed(1, 1, "established topic", []float32{1, 0, 0}, 2)
		f.embed.byText["boundary query"] = queryEmbedding

		result, err := f.svc.ProcessQuery(context.Background(), 1, "boundary query", []graph.SearchResult{
			searchResult(models.SourceOriginArxiv, "x1", "some paper"),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Topic)
		return result.Topic
	}

	t.Run("just below threshold creates a new topic", func(t *testing.T) {
		topic := run(t, below)
		assert.True(t, topic.Created)
		assert.NotEqual(t, uint(1), topic.TopicID)
	})

	t.Run("at threshold joins the existing topic", func(t *testing.T) {
		topic := run(t, above)
		assert.False(t, topic.Created)
		assert.Equal(t, uint(1), topic.TopicID)
	})
}

func TestProcessQueryRejectsEmptyInput(t *testing.T) {
	f := newResearchFixture()

	_, err := f.svc.ProcessQuery(context.Background(), 1, "   ", []graph.SearchResult{searchResult(models.SourceOriginArxiv, "x", "t")})
	assert.Error(t, err)

	_, err = f.svc.ProcessQuery(context.Background(), 1, "valid query", nil)
	assert.Error(t, err)
}

func TestProcessQueryAnalysisFailureAborts(t *testing.T) {
	f := newResearchFixture()
	f.analysis.err = errors.New("model overloaded")

	_, err := f.svc.ProcessQuery(context.Background(), 1, "graph embeddings", []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "2401.0001", "paper one"),
	})
	require.Error(t, err)

	// 分析失败时不落任何关系
	assert.Empty(t, f.conns.connections)
}

func TestProcessQueryClassifierFailureDegrades(t *testing.T) {
	f := newResearchFixture()
	f.topics.createErr = errors.New("topics table unavailable")

	result, err := f.svc.ProcessQuery(context.Background(), 1, "graph embeddings", []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "2401.0001", "paper one"),
	})
	require.NoError(t, err)

	// 分类降级：查询保持未归类，其余产出不受影响
	assert.Nil(t, result.Topic)
	query, err := f.queries.Get(context.Background(), result.QueryID)
	require.NoError(t, err)
	assert.Nil(t, query.TopicID)
	assert.Len(t, result.Sources, 1)
}

func TestProcessQueryDropsOutOfRangeRelationship(t *testing.T) {
	f := newResearchFixture()
	f.analysis.result = &graph.AnalysisResult{
		Relationships: []graph.RelationshipResult{
			{SourceAIndex: 0, SourceBIndex: 1, Relationship: "supports", Strength: 0.7},
			{SourceAIndex: 0, SourceBIndex: 5, Relationship: "contradicts", Strength: 0.9},
			{SourceAIndex: -1, SourceBIndex: 1, Relationship: "extends", Strength: 0.5},
		},
	}

	result, err := f.svc.ProcessQuery(context.Background(), 1, "graph embeddings", []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "a", "paper one"),
		searchResult(models.SourceOriginArxiv, "b", "paper two"),
	})
	require.NoError(t, err)

	require.Len(t, result.Connections, 1)
	assert.Equal(t, "supports", result.Connections[0].Relationship)
}

func TestProcessQueryIdempotentReingest(t *testing.T) {
	f := newResearchFixture()
	results := []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "2401.0001", "paper one"),
		searchResult(models.SourceOriginOpenAlex, "W123", "paper two"),
	}

	first, err := f.svc.ProcessQuery(context.Background(), 1, "graph embeddings", results)
	require.NoError(t, err)
	second, err := f.svc.ProcessQuery(context.Background(), 1, "graph embeddings revisited", results)
	require.NoError(t, err)

	// 同一外部身份不重复建行，复用已有ID
	assert.Equal(t, first.Sources[0].SourceID, second.Sources[0].SourceID)
	assert.Equal(t, first.Sources[1].SourceID, second.Sources[1].SourceID)
	stored, err := f.sources.ListRecent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	// 向量副本同样只写一次
	assert.Len(t, f.store.vectors, 2)
}

func TestProcessQueryEchoesExcludeOwnResultSet(t *testing.T) {
	f := newResearchFixture()
	f.embed.byText["paper one"] = []float32{1, 0, 0}
	f.embed.byText["related paper"] = []float32{0.9, 0.1, 0}

	_, err := f.svc.ProcessQuery(context.Background(), 1, "first query", []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "2401.0001", "paper one"),
	})
	require.NoError(t, err)

	// 不同外部身份但语义相近：跨查询呼应
	second, err := f.svc.ProcessQuery(context.Background(), 1, "second query", []graph.SearchResult{
		searchResult(models.SourceOriginOpenAlex, "W999", "related paper"),
	})
	require.NoError(t, err)
	require.Len(t, second.Echoes, 1)
	assert.Equal(t, "paper one", second.Echoes[0].Title)
	assert.Equal(t, "first query", second.Echoes[0].MatchedQueryText)

	// 复用同一来源时，向量副本仍挂在旧查询上，不得回声自身结果集
	third, err := f.svc.ProcessQuery(context.Background(), 1, "third query", []graph.SearchResult{
		searchResult(models.SourceOriginArxiv, "2401.0001", "paper one"),
	})
	require.NoError(t, err)
	require.Len(t, third.Echoes, 1)
	assert.Equal(t, "related paper", third.Echoes[0].Title)
	assert.NotEqual(t, third.Sources[0].SourceID, third.Echoes[0].MatchedSourceID)
}
