package graph

import "context"

// SourceVector 来源向量记录
type SourceVector struct {
	SourceID  uint
	QueryID   uint
	Title     string
	Snippet   string
	Embedding []float32
}

// VectorSearchRequest 向量检索请求
type VectorSearchRequest struct {
	QueryEmbedding []float32
	Limit          int
	Threshold      float64 // 相似度阈值，仅返回 >= Threshold 的结果
	ExcludeQueryID uint    // 排除指定查询自身的来源，0表示不排除
}

// VectorMatch 向量检索命中
type VectorMatch struct {
	SourceID   uint
	QueryID    uint
	Title      string
	Snippet    string
	Similarity float64
}

// VectorStore 来源向量存储抽象，要求底层具备近似最近邻检索能力
type VectorStore interface {
	InsertSource(ctx context.Context, vec SourceVector) error
	SearchSimilar(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error)
	DeleteSource(ctx context.Context, sourceID uint) error
	Ready() bool
}
