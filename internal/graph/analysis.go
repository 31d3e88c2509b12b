package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// SourceSummary 提交给分析协作方的来源摘要
type SourceSummary struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// RelationshipResult 来源对之间的结构化关系
type RelationshipResult struct {
	SourceAIndex int     `json:"source_a_index"`
	SourceBIndex int     `json:"source_b_index"`
	Relationship string  `json:"relationship"`
	Explanation  string  `json:"explanation"`
	Strength     float64 `json:"strength"`
}

// AnalysisResult 一次分析调用的完整结构化输出
type AnalysisResult struct {
	Relationships     []RelationshipResult `json:"relationships"`
	Synthesis         string               `json:"synthesis"`
	Gaps              []string             `json:"gaps"`
	FollowUpQuestions []string             `json:"follow_up_questions"`
}

// AnalysisService 关系/综述生成协作方
type AnalysisService interface {
	Analyze(ctx context.Context, queryText string, sources []SourceSummary) (*AnalysisResult, error)
	Ready() bool
}

const analysisSystemPrompt = `You are a research analyst. Given a query and a numbered list of sources,
identify pairwise relationships between sources. Respond with strict JSON only:
{"relationships":[{"source_a_index":0,"source_b_index":1,"relationship":"agrees|contradicts|extends|gap","explanation":"...","strength":0.0}],
"synthesis":"...","gaps":["..."],"follow_up_questions":["..."]}`

// OpenAIAnalysisService 基于ChatCompletion的分析实现
type OpenAIAnalysisService struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	retry       apperrors.RetryPolicy
}

// NewOpenAIAnalysisService 创建分析服务客户端
func NewOpenAIAnalysisService(apiKey, baseURL, model string, maxTokens int, temperature float64) AnalysisService {
	if strings.TrimSpace(apiKey) == "" {
		return &noopAnalysisService{}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens == 0 {
		maxTokens = 2048
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIAnalysisService{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		timeout:     60 * time.Second,
		// 分析调用成本高，仅重试一次
		retry: apperrors.RetryPolicy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
}

// Analyze 生成来源关系与综述
// 上游偶尔会在JSON前后包裹说明文字，解析前先抽取首个配平的JSON对象
func (s *OpenAIAnalysisService) Analyze(ctx context.Context, queryText string, sources []SourceSummary) (*AnalysisResult, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, apperrors.NewValidationError("query text is empty")
	}
	if len(sources) == 0 {
		return nil, apperrors.NewValidationError("no sources to analyze")
	}

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}

	var resp openai.ChatCompletionResponse
	err = apperrors.Retry(ctx, s.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var callErr error
		resp, callErr = s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       s.model,
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Query: %s\nSources: %s", queryText, string(sourcesJSON))},
			},
		})
		return callErr
	})
	if err != nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeAnalysisFailed, "analysis request failed", apperrors.IsRetryable(err)).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeAnalysisFailed, "analysis response empty", false)
	}

	return ParseAnalysisResponse(resp.Choices[0].Message.Content)
}

func (s *OpenAIAnalysisService) Ready() bool {
	return s.client != nil
}

// ParseAnalysisResponse 解析分析响应
// 严格JSON反序列化，失败时尝试从包裹文本中抽取首个配平JSON对象再解析
func ParseAnalysisResponse(raw string) (*AnalysisResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperrors.NewMalformedAnalysisError("empty response")
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		extracted, ok := ExtractJSONObject(raw)
		if !ok {
			return nil, apperrors.NewMalformedAnalysisError("no JSON object found")
		}
		if err := json.Unmarshal([]byte(extracted), &result); err != nil {
			return nil, apperrors.NewMalformedAnalysisError(err.Error())
		}
	}

	// 丢弃非法关系项而不是整体失败
	valid := result.Relationships[:0]
	for _, rel := range result.Relationships {
		if rel.SourceAIndex == rel.SourceBIndex {
			continue
		}
		if rel.Relationship != "agrees" && rel.Relationship != "contradicts" && rel.Relationship != "extends" && rel.Relationship != "gap" {
			continue
		}
		if rel.Strength < 0 {
			rel.Strength = 0
		}
		if rel.Strength > 1 {
			rel.Strength = 1
		}
		valid = append(valid, rel)
	}
	result.Relationships = valid

	return &result, nil
}

// ExtractJSONObject 从文本中抽取首个括号配平的顶层JSON对象
// 正确处理字符串字面量与转义，避免把字符串内的大括号计入配平
func ExtractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

type noopAnalysisService struct{}

func (n *noopAnalysisService) Analyze(ctx context.Context, queryText string, sources []SourceSummary) (*AnalysisResult, error) {
	return nil, apperrors.NewExternalError(apperrors.ErrCodeAnalysisFailed, "analysis provider not configured", false)
}

func (n *noopAnalysisService) Ready() bool {
	return false
}
