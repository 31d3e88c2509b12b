package graph

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// DatabaseVectorStore 基于PostgreSQL的退化向量存储
// 没有近似最近邻索引，全量扫描加内存余弦计算，仅适合小规模或本地部署
type DatabaseVectorStore struct {
	db *gorm.DB
}

func NewDatabaseVectorStore(db *gorm.DB) VectorStore {
	return &DatabaseVectorStore{db: db}
}

func (s *DatabaseVectorStore) InsertSource(ctx context.Context, vec SourceVector) error {
	if len(vec.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}

	embeddingJSON, err := EncodeEmbedding(vec.Embedding)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Table("sources").
		Where("source_id = ?", vec.SourceID).
		Update("embedding", embeddingJSON).Error
}

func (s *DatabaseVectorStore) SearchSimilar(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	query := s.db.WithContext(ctx).
		Table("sources").
		Select("source_id, query_id, title, snippet, embedding").
		Where("embedding IS NOT NULL AND embedding::text <> ''")
	if req.ExcludeQueryID != 0 {
		query = query.Where("query_id <> ?", req.ExcludeQueryID)
	}

	var rows []sourceEmbeddingRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	matches := make([]VectorMatch, 0, req.Limit)
	for _, row := range rows {
		embedding, err := DecodeEmbedding(row.EmbeddingJSON)
		if err != nil {
			continue
		}
		score := CosineSimilarity(req.QueryEmbedding, embedding)
		if score < req.Threshold {
			continue
		}
		matches = append(matches, VectorMatch{
			SourceID:   row.SourceID,
			QueryID:    row.QueryID,
			Title:      row.Title,
			Snippet:    row.Snippet,
			Similarity: score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity == matches[j].Similarity {
			return matches[i].SourceID < matches[j].SourceID
		}
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (s *DatabaseVectorStore) DeleteSource(ctx context.Context, sourceID uint) error {
	// 行本身由仓库层删除，这里只清空向量列
	return s.db.WithContext(ctx).Table("sources").
		Where("source_id = ?", sourceID).
		Update("embedding", "").Error
}

func (s *DatabaseVectorStore) Ready() bool {
	return s.db != nil
}

type sourceEmbeddingRecord struct {
	SourceID      uint
	QueryID       uint
	Title         string
	Snippet       string
	EmbeddingJSON string `gorm:"column:embedding"`
}
