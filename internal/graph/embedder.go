package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder 定义文本向量化接口
// 输出与输入顺序一一对应，向量为单位归一化的定长浮点数组
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewExternalError(apperrors.ErrCodeEmbeddingFailed, "embedding provider not configured", false)
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	retry      apperrors.RetryPolicy
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(apiKey, baseURL, model string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
		timeout:    30 * time.Second,
		retry:      apperrors.DefaultRetryPolicy(),
	}
}

// EmbedBatch 批量向量化，一次调用覆盖整批文本，保持输入顺序
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperrors.NewValidationError("texts is empty")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.NewValidationError(fmt.Sprintf("text at index %d is empty", i))
		}
	}
	if e.client == nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeEmbeddingFailed, "openai client not initialized", false)
	}

	var resp openai.EmbeddingResponse
	err := apperrors.Retry(ctx, e.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		var callErr error
		resp, callErr = e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts,
		})
		return callErr
	})
	if err != nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeEmbeddingFailed, "embedding request failed", apperrors.IsRetryable(err)).WithCause(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeEmbeddingFailed, "embedding response length mismatch", false)
	}

	results := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(results) {
			continue
		}
		embedding := make([]float32, len(item.Embedding))
		copy(embedding, item.Embedding)
		results[item.Index] = embedding
	}
	return results, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
