package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/models"
)

type fakeTopicCatalog struct {
	topics []models.Topic
}

func (f *fakeTopicCatalog) addTopic(topicID, userID uint, label string, centroid []float32, members int64) {
	encoded, _ := EncodeEmbedding(centroid)
	f.topics = append(f.topics, models.Topic{
		TopicID:     topicID,
		UserID:      userID,
		Label:       label,
		Centroid:    encoded,
		MemberCount: members,
	})
}

func (f *fakeTopicCatalog) Get(ctx context.Context, topicID uint) (*models.Topic, error) {
	for i := range f.topics {
		if f.topics[i].TopicID == topicID {
			copied := f.topics[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("topic %d not found", topicID)
}

func (f *fakeTopicCatalog) ListByUser(ctx context.Context, userID uint) ([]models.Topic, error) {
	var out []models.Topic
	for _, topic := range f.topics {
		if topic.UserID == userID {
			out = append(out, topic)
		}
	}
	return out, nil
}

func bridgeFixture() (*BridgeGapAnalyzer, *fakeVectorStore, *fakeTopicCatalog) {
	store := &fakeVectorStore{}
	catalog := &fakeTopicCatalog{}
	analyzer := NewBridgeGapAnalyzer(catalog, store, 0.4, 0.45, 2, zap.NewNop())
	return analyzer, store, catalog
}

func TestPairBridgeScoreIsMinOfBothSides(t *testing.T) {
	analyzer, store, catalog := bridgeFixture()
	catalog.addTopic(1, 1, "topic a", []float32{1, 0}, 3)
	catalog.addTopic(2, 1, "topic b", []float32{0, 1}, 3)
	// simA=0.8, simB=0.6，桥接分取较小值
	store.vectors = append(store.vectors, SourceVector{SourceID: 10, QueryID: 5, Embedding: []float32{0.8, 0.6}})

	score, err := analyzer.PairBridgeScore(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, score, 1e-6)
}

func TestPairBridgeScoreSymmetric(t *testing.T) {
	analyzer, store, catalog := bridgeFixture()
	catalog.addTopic(1, 1, "topic a", []float32{1, 0.3}, 3)
	catalog.addTopic(2, 1, "topic b", []float32{0.3, 1}, 3)
	store.vectors = append(store.vectors, SourceVector{SourceID: 10, QueryID: 5, Embedding: []float32{0.7, 0.7}})

	ab, err := analyzer.PairBridgeScore(context.Background(), 1, 2)
	require.NoError(t, err)
	ba, err := analyzer.PairBridgeScore(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-9)
	assert.Greater(t, ab, 0.0)
}

func TestPairBridgeScoreRequiresBothSides(t *testing.T) {
	analyzer, store, catalog := bridgeFixture()
	catalog.addTopic(1, 1, "topic a", []float32{1, 0}, 3)
	catalog.addTopic(2, 1, "topic b", []float32{0, 1}, 3)
	// 只贴近A侧，B侧低于0.4，不算桥
	store.vectors = append(store.vectors, SourceVector{SourceID: 10, QueryID: 5, Embedding: []float32{0.9, 0.3}})

	score, err := analyzer.PairBridgeScore(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestTopicGapsAndBridgesDisjoint(t *testing.T) {
	analyzer, store, catalog := bridgeFixture()
	// 质心相似度0.8，进入缺口候选
	catalog.addTopic(1, 1, "ml fairness", []float32{1, 0.5}, 3)
	catalog.addTopic(2, 1, "hiring algorithms", []float32{0.5, 1}, 3)

	// 没有任何桥接来源：是缺口，不是桥
	gaps, err := analyzer.TopicGaps(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, uint(1), gaps[0].TopicAID)
	assert.Equal(t, uint(2), gaps[0].TopicBID)
	assert.InDelta(t, 0.8, gaps[0].CentroidSim, 1e-6)
	assert.InDelta(t, 0.8, gaps[0].PriorityScore, 1e-6)

	bridges, err := analyzer.SemanticBridges(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, bridges)

	// 补上一个桥接来源后：是桥，不再是缺口
	store.vectors = append(store.vectors, SourceVector{SourceID: 10, QueryID: 5, Embedding: []float32{0.75, 0.75}})

	gaps, err = analyzer.TopicGaps(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	bridges, err = analyzer.SemanticBridges(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, bridges, 1)
	require.Len(t, bridges[0].Sources, 1)
	assert.Equal(t, uint(10), bridges[0].Sources[0].SourceID)
}

func TestTopicGapsMemberCountFilter(t *testing.T) {
	analyzer, _, catalog := bridgeFixture()
	catalog.addTopic(1, 1, "established", []float32{1, 0.5}, 3)
	// 成员数低于下限的话题不进缺口候选
	catalog.addTopic(2, 1, "singleton", []float32{0.5, 1}, 1)

	gaps, err := analyzer.TopicGaps(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestTopicGapsCentroidSimilarityFloor(t *testing.T) {
	analyzer, _, catalog := bridgeFixture()
	// 正交质心，相似度0 < 0.45，语义不相近的话题对不算缺口
	catalog.addTopic(1, 1, "astrophysics", []float32{1, 0}, 3)
	catalog.addTopic(2, 1, "baking", []float32{0, 1}, 3)

	gaps, err := analyzer.TopicGaps(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestTopicGapsPriorityOrdering(t *testing.T) {
	analyzer, _, catalog := bridgeFixture()
	catalog.addTopic(1, 1, "a", []float32{1, 0.5}, 3)
	catalog.addTopic(2, 1, "b", []float32{0.5, 1}, 3)
	catalog.addTopic(3, 1, "c", []float32{0.9, 0.6}, 3)

	gaps, err := analyzer.TopicGaps(context.Background(), 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)
	for i := 1; i < len(gaps); i++ {
		assert.GreaterOrEqual(t, gaps[i-1].PriorityScore, gaps[i].PriorityScore)
	}
	// 对内规范化：小ID在前
	for _, gap := range gaps {
		assert.Less(t, gap.TopicAID, gap.TopicBID)
	}
}
