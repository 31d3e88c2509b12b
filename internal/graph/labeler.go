package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Labeler 话题标注协作方：生成话题短标签与桥接查询文本
type Labeler interface {
	LabelTopic(ctx context.Context, queryText string) (string, error)
	BridgeQuery(ctx context.Context, labelA, labelB string) (string, error)
}

const maxTopicLabelLength = 60

// FallbackLabel 标注失败时的确定性降级：截断查询文本作为标签
func FallbackLabel(queryText string) string {
	label := strings.TrimSpace(queryText)
	runes := []rune(label)
	if len(runes) > maxTopicLabelLength {
		label = string(runes[:maxTopicLabelLength])
	}
	if label == "" {
		label = "untitled topic"
	}
	return label
}

// OpenAILabeler 基于ChatCompletion的标注实现
type OpenAILabeler struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAILabeler 创建标注客户端，apiKey为空时返回nil（调用方降级）
func NewOpenAILabeler(apiKey, baseURL, model string) Labeler {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAILabeler{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: 15 * time.Second,
	}
}

// LabelTopic 从查询文本生成简短话题标签
func (l *OpenAILabeler) LabelTopic(ctx context.Context, queryText string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     l.model,
		MaxTokens: 32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Produce a short topic label (at most 6 words) for the research query. Respond with the label only."},
			{Role: openai.ChatMessageRoleUser, Content: queryText},
		},
	})
	if err != nil {
		return "", apperrors.NewExternalError(apperrors.ErrCodeExternalService, "topic labeling failed", apperrors.IsRetryable(err)).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewExternalError(apperrors.ErrCodeExternalService, "topic labeling response empty", false)
	}

	label := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`)
	if label == "" {
		return "", apperrors.NewExternalError(apperrors.ErrCodeExternalService, "topic labeling returned blank label", false)
	}
	runes := []rune(label)
	if len(runes) > maxTopicLabelLength {
		label = string(runes[:maxTopicLabelLength])
	}
	return label, nil
}

// BridgeQuery 为两个话题生成描述其概念交界的检索语句
func (l *OpenAILabeler) BridgeQuery(ctx context.Context, labelA, labelB string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     l.model,
		MaxTokens: 64,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Given two research topics, write one literature search query (a single sentence, no quotes) targeting the conceptual space that connects them."},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Topic A: %s\nTopic B: %s", labelA, labelB)},
		},
	})
	if err != nil {
		return "", apperrors.NewExternalError(apperrors.ErrCodeExternalService, "bridge query generation failed", apperrors.IsRetryable(err)).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewExternalError(apperrors.ErrCodeExternalService, "bridge query response empty", false)
	}

	query := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`)
	if query == "" {
		// 确定性降级：直接拼接两个标签
		query = fmt.Sprintf("%s and %s", labelA, labelB)
	}
	return query, nil
}
