package graph

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeVectorStore 内存向量存储，检索语义与真实实现一致
type fakeVectorStore struct {
	vectors []SourceVector
	deleted []uint
	failFor func(req VectorSearchRequest) error
}

func (f *fakeVectorStore) InsertSource(ctx context.Context, vec SourceVector) error {
	f.vectors = append(f.vectors, vec)
	return nil
}

func (f *fakeVectorStore) SearchSimilar(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error) {
	if f.failFor != nil {
		if err := f.failFor(req); err != nil {
			return nil, err
		}
	}

	var matches []VectorMatch
	for _, vec := range f.vectors {
		if req.ExcludeQueryID != 0 && vec.QueryID == req.ExcludeQueryID {
			continue
		}
		sim := CosineSimilarity(req.QueryEmbedding, vec.Embedding)
		if sim < req.Threshold {
			continue
		}
		matches = append(matches, VectorMatch{
			SourceID:   vec.SourceID,
			QueryID:    vec.QueryID,
			Title:      vec.Title,
			Snippet:    vec.Snippet,
			Similarity: sim,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].SourceID < matches[j].SourceID
	})
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (f *fakeVectorStore) DeleteSource(ctx context.Context, sourceID uint) error {
	f.deleted = append(f.deleted, sourceID)
	kept := f.vectors[:0]
	for _, vec := range f.vectors {
		if vec.SourceID != sourceID {
			kept = append(kept, vec)
		}
	}
	f.vectors = kept
	return nil
}

func (f *fakeVectorStore) Ready() bool { return true }

type fakeQueryTexts struct {
	texts map[uint]string
	err   error
}

func (f *fakeQueryTexts) TextsByIDs(ctx context.Context, queryIDs []uint) (map[uint]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.texts, nil
}

func TestFindEchoesExcludesOwnQuery(t *testing.T) {
	store := &fakeVectorStore{vectors: []SourceVector{
		{SourceID: 1, QueryID: 10, Title: "own source", Embedding: []float32{1, 0}},
		{SourceID: 2, QueryID: 20, Title: "older source", Embedding: []float32{1, 0}},
	}}
	matcher := NewCrossQueryMatcher(store, &fakeQueryTexts{texts: map[uint]string{20: "older query"}}, nil, 0.54, 5, zap.NewNop())

	echoes := matcher.FindEchoes(context.Background(), 10, [][]float32{{1, 0}})

	require.Len(t, echoes, 1)
	assert.Equal(t, uint(2), echoes[0].MatchedSourceID)
	assert.Equal(t, uint(20), echoes[0].MatchedQueryID)
	assert.Equal(t, "older query", echoes[0].MatchedQueryText)
}

func TestFindEchoesBelowThresholdDropped(t *testing.T) {
	store := &fakeVectorStore{vectors: []SourceVector{
		{SourceID: 2, QueryID: 20, Embedding: []float32{0, 1}},
	}}
	matcher := NewCrossQueryMatcher(store, nil, nil, 0.54, 5, zap.NewNop())

	echoes := matcher.FindEchoes(context.Background(), 10, [][]float32{{1, 0}})
	assert.Empty(t, echoes)
}

func TestFindEchoesPartialFailureSkipsSourceOnly(t *testing.T) {
	// 第二个来源的检索失败，只丢它自己的呼应
	store := &fakeVectorStore{vectors: []SourceVector{
		{SourceID: 2, QueryID: 20, Embedding: []float32{1, 0}},
		{SourceID: 3, QueryID: 20, Embedding: []float32{0, 1}},
	}}
	store.failFor = func(req VectorSearchRequest) error {
		if len(req.QueryEmbedding) > 1 && req.QueryEmbedding[1] == 1 {
			return errors.New("search backend timeout")
		}
		return nil
	}
	matcher := NewCrossQueryMatcher(store, nil, nil, 0.54, 5, zap.NewNop())

	echoes := matcher.FindEchoes(context.Background(), 10, [][]float32{{1, 0}, {0, 1}})

	require.Len(t, echoes, 1)
	assert.Equal(t, 0, echoes[0].SourceIndex)
}

func TestFindEchoesTopKLimit(t *testing.T) {
	store := &fakeVectorStore{}
	for i := 0; i < 10; i++ {
		store.vectors = append(store.vectors, SourceVector{
			SourceID:  uint(i + 1),
			QueryID:   20,
			Embedding: []float32{1, float32(i) * 0.01},
		})
	}
	matcher := NewCrossQueryMatcher(store, nil, nil, 0.5, 3, zap.NewNop())

	echoes := matcher.FindEchoes(context.Background(), 10, [][]float32{{1, 0}})
	assert.Len(t, echoes, 3)
	// 呼应按相似度降序排列
	for i := 1; i < len(echoes); i++ {
		assert.GreaterOrEqual(t, echoes[i-1].Similarity, echoes[i].Similarity)
	}
}

func TestFindEchoesQueryTextLookupFailureDegrades(t *testing.T) {
	store := &fakeVectorStore{vectors: []SourceVector{
		{SourceID: 2, QueryID: 20, Embedding: []float32{1, 0}},
	}}
	matcher := NewCrossQueryMatcher(store, &fakeQueryTexts{err: errors.New("db down")}, nil, 0.54, 5, zap.NewNop())

	echoes := matcher.FindEchoes(context.Background(), 10, [][]float32{{1, 0}})
	require.Len(t, echoes, 1)
	assert.Empty(t, echoes[0].MatchedQueryText)
}

func TestFindEchoesEmptyEmbeddingSkipped(t *testing.T) {
	store := &fakeVectorStore{vectors: []SourceVector{
		{SourceID: 2, QueryID: 20, Embedding: []float32{1, 0}},
	}}
	matcher := NewCrossQueryMatcher(store, nil, nil, 0.54, 5, zap.NewNop())

	echoes := matcher.FindEchoes(context.Background(), 10, [][]float32{nil})
	assert.Empty(t, echoes)
}
