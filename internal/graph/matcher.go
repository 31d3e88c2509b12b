package graph

import (
	"context"

	"go.uber.org/zap"
)

// QueryTextLookup 按ID批量取历史查询文本，用于呼应结果的上下文补充
type QueryTextLookup interface {
	TextsByIDs(ctx context.Context, queryIDs []uint) (map[uint]string, error)
}

// Echo 当前查询的某个来源与历史查询来源之间的语义呼应
type Echo struct {
	SourceIndex      int     `json:"source_index"`
	MatchedSourceID  uint    `json:"matched_source_id"`
	MatchedQueryID   uint    `json:"matched_query_id"`
	MatchedQueryText string  `json:"matched_query_text,omitempty"`
	Title            string  `json:"title"`
	URL              string  `json:"url,omitempty"`
	Snippet          string  `json:"snippet"`
	Similarity       float64 `json:"similarity"`
}

// CrossQueryMatcher 跨查询呼应匹配器
// 对当前查询的每个来源做一次近邻检索，命中其他查询的历史来源即为呼应
type CrossQueryMatcher struct {
	store     VectorStore
	queries   QueryTextLookup
	sources   SourceCatalog
	threshold float64
	topK      int
	logger    *zap.Logger
}

// NewCrossQueryMatcher 创建呼应匹配器，queries/sources可为nil（跳过对应的上下文补充）
func NewCrossQueryMatcher(store VectorStore, queries QueryTextLookup, sources SourceCatalog, threshold float64, topK int, log *zap.Logger) *CrossQueryMatcher {
	if topK <= 0 {
		topK = 5
	}
	return &CrossQueryMatcher{
		store:     store,
		queries:   queries,
		sources:   sources,
		threshold: threshold,
		topK:      topK,
		logger:    log,
	}
}

// FindEchoes 为当前查询的全部来源寻找历史呼应
// 单个来源的检索失败只丢该来源的呼应，不影响其余来源；永不返回当前查询自身的来源
func (m *CrossQueryMatcher) FindEchoes(ctx context.Context, currentQueryID uint, embeddings [][]float32) []Echo {
	var echoes []Echo
	for i, embedding := range embeddings {
		if len(embedding) == 0 {
			continue
		}
		matches, err := m.store.SearchSimilar(ctx, VectorSearchRequest{
			QueryEmbedding: embedding,
			Limit:          m.topK,
			Threshold:      m.threshold,
			ExcludeQueryID: currentQueryID,
		})
		if err != nil {
			m.logger.Warn("echo search failed for source, skipping",
				zap.Uint("query_id", currentQueryID),
				zap.Int("source_index", i),
				zap.Error(err))
			continue
		}
		for _, match := range matches {
			// 底层过滤表达式之外再兜一层，自身查询的来源绝不算呼应
			if match.QueryID == currentQueryID {
				continue
			}
			echoes = append(echoes, Echo{
				SourceIndex:     i,
				MatchedSourceID: match.SourceID,
				MatchedQueryID:  match.QueryID,
				Title:           match.Title,
				Snippet:         match.Snippet,
				Similarity:      match.Similarity,
			})
		}
	}

	m.enrichQueryTexts(ctx, echoes)
	m.enrichURLs(ctx, echoes)
	return echoes
}

// enrichURLs 回填命中来源的原文链接，向量副本不存URL
func (m *CrossQueryMatcher) enrichURLs(ctx context.Context, echoes []Echo) {
	if m.sources == nil || len(echoes) == 0 {
		return
	}

	urls := make(map[uint]string)
	for i := range echoes {
		id := echoes[i].MatchedSourceID
		url, ok := urls[id]
		if !ok {
			src, err := m.sources.Get(ctx, id)
			if err != nil {
				continue
			}
			url = src.URL
			urls[id] = url
		}
		echoes[i].URL = url
	}
}

// enrichQueryTexts 回填呼应命中的历史查询文本，失败只降级不报错
func (m *CrossQueryMatcher) enrichQueryTexts(ctx context.Context, echoes []Echo) {
	if m.queries == nil || len(echoes) == 0 {
		return
	}

	seen := make(map[uint]bool)
	var queryIDs []uint
	for _, echo := range echoes {
		if !seen[echo.MatchedQueryID] {
			seen[echo.MatchedQueryID] = true
			queryIDs = append(queryIDs, echo.MatchedQueryID)
		}
	}

	texts, err := m.queries.TextsByIDs(ctx, queryIDs)
	if err != nil {
		m.logger.Warn("echo query text lookup failed", zap.Error(err))
		return
	}
	for i := range echoes {
		echoes[i].MatchedQueryText = texts[echoes[i].MatchedQueryID]
	}
}
