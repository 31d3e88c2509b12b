package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aihub/researchgraph/internal/logger"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	VectorSize int
	Database   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "research_sources"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	store := &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
	}

	if err := store.ensureCollection(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Research source embeddings",
		Fields: []*entity.Field{
			{
				Name:       "source_id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     "query_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "2000",
				},
			},
			{
				Name:     "snippet",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorSize),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	index, indexErr := newCollectionIndex()
	if indexErr != nil {
		return fmt.Errorf("failed to create index: %w", indexErr)
	}

	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		logger.Warn("failed to create milvus index", zap.String("collection", s.collection), zap.Error(err))
	}

	return nil
}

// newCollectionIndex 首选HNSW，构建失败时退回IVF_FLAT
func newCollectionIndex() (entity.Index, error) {
	hnsw, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if err == nil {
		return hnsw, nil
	}
	ivf, ivfErr := entity.NewIndexIvfFlat(entity.COSINE, 128)
	if ivfErr != nil {
		return nil, ivfErr
	}
	return ivf, nil
}

func (s *milvusVectorStore) InsertSource(ctx context.Context, vec SourceVector) error {
	if len(vec.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	embedding := vec.Embedding
	if len(embedding) != s.vectorSize {
		// 维度不一致时截断或补零对齐
		aligned := make([]float32, s.vectorSize)
		copy(aligned, embedding)
		embedding = aligned
	}

	idColumn := entity.NewColumnInt64("source_id", []int64{int64(vec.SourceID)})
	queryIDColumn := entity.NewColumnInt64("query_id", []int64{int64(vec.QueryID)})
	titleColumn := entity.NewColumnVarChar("title", []string{truncateVarChar(vec.Title, 2000)})
	snippetColumn := entity.NewColumnVarChar("snippet", []string{truncateVarChar(vec.Snippet, 65000)})
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, [][]float32{embedding})

	_, err := s.milvusClient.Insert(ctx, s.collection, "", idColumn, queryIDColumn, titleColumn, snippetColumn, vectorColumn)
	if err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush milvus collection", zap.String("collection", s.collection), zap.Error(err))
	}

	return nil
}

func (s *milvusVectorStore) SearchSimilar(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	expr := ""
	if req.ExcludeQueryID != 0 {
		expr = fmt.Sprintf("query_id != %d", req.ExcludeQueryID)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(req.QueryEmbedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"query_id", "title", "snippet"},
		[]entity.Vector{queryVector},
		"vector",
		entity.COSINE,
		req.Limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []VectorMatch{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []VectorMatch{}, nil
	}

	var ids []int64
	if idCol, ok := result.IDs.(*entity.ColumnInt64); ok {
		ids = idCol.Data()
	}

	var queryIDs []int64
	var titles []string
	var snippets []string
	for _, field := range result.Fields {
		switch field.Name() {
		case "query_id":
			if val, ok := field.(*entity.ColumnInt64); ok {
				queryIDs = val.Data()
			}
		case "title":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				titles = val.Data()
			}
		case "snippet":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				snippets = val.Data()
			}
		}
	}

	matches := make([]VectorMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		// Milvus按相似度降序返回，阈值过滤在此裁剪
		if score < req.Threshold {
			continue
		}

		match := VectorMatch{Similarity: score}
		if i < len(ids) {
			match.SourceID = uint(ids[i])
		}
		if i < len(queryIDs) {
			match.QueryID = uint(queryIDs[i])
		}
		if i < len(titles) {
			match.Title = titles[i]
		}
		if i < len(snippets) {
			match.Snippet = snippets[i]
		}
		matches = append(matches, match)
	}

	return matches, nil
}

func (s *milvusVectorStore) DeleteSource(ctx context.Context, sourceID uint) error {
	expr := fmt.Sprintf("source_id == %d", sourceID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush after delete", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

func truncateVarChar(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return strings.ToValidUTF8(value[:limit], "")
}
