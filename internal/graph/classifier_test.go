package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/models"
)

type fakeTopicStore struct {
	match     *TopicMatchInfo
	matchErr  error
	appendErr error

	appended []uint
	created  []string
	topics   map[uint]*models.Topic
	nextID   uint
}

func newFakeTopicStore() *fakeTopicStore {
	return &fakeTopicStore{topics: make(map[uint]*models.Topic), nextID: 100}
}

func (f *fakeTopicStore) BestMatch(ctx context.Context, userID uint, embedding []float32, threshold float64) (*TopicMatchInfo, error) {
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.match, nil
}

func (f *fakeTopicStore) AppendMember(ctx context.Context, topicID uint, embedding []float32) (*models.Topic, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.appended = append(f.appended, topicID)
	topic, ok := f.topics[topicID]
	if !ok {
		topic = &models.Topic{TopicID: topicID, Label: "existing", MemberCount: 1}
		f.topics[topicID] = topic
	}
	topic.MemberCount++
	return topic, nil
}

func (f *fakeTopicStore) Create(ctx context.Context, userID uint, label string, embedding []float32) (*models.Topic, error) {
	f.nextID++
	f.created = append(f.created, label)
	topic := &models.Topic{TopicID: f.nextID, UserID: userID, Label: label, MemberCount: 1}
	f.topics[topic.TopicID] = topic
	return topic, nil
}

type fakeAssigner struct {
	assigned map[uint]uint
	err      error
}

func (f *fakeAssigner) AssignTopic(ctx context.Context, queryID, topicID uint) error {
	if f.err != nil {
		return f.err
	}
	if f.assigned == nil {
		f.assigned = make(map[uint]uint)
	}
	f.assigned[queryID] = topicID
	return nil
}

type fakeLabeler struct {
	label string
	err   error
}

func (f *fakeLabeler) LabelTopic(ctx context.Context, queryText string) (string, error) {
	return f.label, f.err
}

func (f *fakeLabeler) BridgeQuery(ctx context.Context, labelA, labelB string) (string, error) {
	return "", nil
}

func TestClassifyMatchAppendsToExistingTopic(t *testing.T) {
	store := newFakeTopicStore()
	store.match = &TopicMatchInfo{TopicID: 7, Label: "quantum computing", Similarity: 0.83}
	assigner := &fakeAssigner{}
	classifier := NewTopicClassifier(store, assigner, &fakeLabeler{label: "unused"}, 0.71, zap.NewNop())

	result, err := classifier.Classify(context.Background(), 1, 42, "quantum error correction", []float32{1, 0})
	require.NoError(t, err)

	assert.Equal(t, uint(7), result.TopicID)
	assert.False(t, result.Created)
	assert.Equal(t, 0.83, result.Similarity)
	assert.Equal(t, []uint{7}, store.appended)
	assert.Empty(t, store.created)
	assert.Equal(t, uint(7), assigner.assigned[42])
}

func TestClassifyNoMatchCreatesTopic(t *testing.T) {
	store := newFakeTopicStore()
	assigner := &fakeAssigner{}
	classifier := NewTopicClassifier(store, assigner, &fakeLabeler{label: "protein folding"}, 0.71, zap.NewNop())

	result, err := classifier.Classify(context.Background(), 1, 43, "alphafold accuracy", []float32{0, 1})
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "protein folding", result.Label)
	assert.Equal(t, []string{"protein folding"}, store.created)
	assert.Equal(t, result.TopicID, assigner.assigned[43])
}

func TestClassifyLookupErrorFailsOpen(t *testing.T) {
	// 话题检索失败按无匹配处理，不丢失归属
	store := newFakeTopicStore()
	store.matchErr = errors.New("db gone")
	classifier := NewTopicClassifier(store, &fakeAssigner{}, &fakeLabeler{label: "fallback topic"}, 0.71, zap.NewNop())

	result, err := classifier.Classify(context.Background(), 1, 44, "some query", []float32{1, 1})
	require.NoError(t, err)
	assert.True(t, result.Created)
}

func TestClassifyLabelerFailureUsesFallbackLabel(t *testing.T) {
	store := newFakeTopicStore()
	classifier := NewTopicClassifier(store, &fakeAssigner{}, &fakeLabeler{err: errors.New("llm down")}, 0.71, zap.NewNop())

	result, err := classifier.Classify(context.Background(), 1, 45, "carbon capture economics", []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, "carbon capture economics", result.Label)
}

func TestClassifyNilLabeler(t *testing.T) {
	store := newFakeTopicStore()
	classifier := NewTopicClassifier(store, &fakeAssigner{}, nil, 0.71, zap.NewNop())

	result, err := classifier.Classify(context.Background(), 1, 46, "some query text", []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, "some query text", result.Label)
}

func TestClassifyAppendErrorPropagates(t *testing.T) {
	store := newFakeTopicStore()
	store.match = &TopicMatchInfo{TopicID: 7, Similarity: 0.9}
	store.appendErr = errors.New("lock timeout")
	classifier := NewTopicClassifier(store, &fakeAssigner{}, nil, 0.71, zap.NewNop())

	_, err := classifier.Classify(context.Background(), 1, 47, "q", []float32{1, 1})
	assert.Error(t, err)
}

func TestFallbackLabel(t *testing.T) {
	assert.Equal(t, "short query", FallbackLabel("  short query  "))
	assert.Equal(t, "untitled topic", FallbackLabel("   "))

	long := make([]rune, 0, 100)
	for i := 0; i < 100; i++ {
		long = append(long, 'x')
	}
	assert.Len(t, []rune(FallbackLabel(string(long))), maxTopicLabelLength)
}
