package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/aihub/researchgraph/internal/errors"
)

// SearchResult 外部检索协作方返回的一条结果
type SearchResult struct {
	Origin     string `json:"origin"`
	ExternalID string `json:"external_id"`
	DOI        string `json:"doi"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Snippet    string `json:"snippet"`
}

// SearchProvider 实时检索协作方（采集端在本服务之外）
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// HTTPSearchProvider 调用外部检索网关的实现
type HTTPSearchProvider struct {
	endpoint string
	client   *http.Client
	retry    apperrors.RetryPolicy
}

// NewHTTPSearchProvider 创建检索客户端，endpoint为空时返回nil
func NewHTTPSearchProvider(endpoint string) SearchProvider {
	if endpoint == "" {
		return nil
	}
	return &HTTPSearchProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 20 * time.Second},
		retry:    apperrors.DefaultRetryPolicy(),
	}
}

// Search 执行实时检索，返回零条结果不视为错误
func (p *HTTPSearchProvider) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, apperrors.NewValidationError("search query is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	err := apperrors.Retry(ctx, p.retry, func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s?q=%s&limit=%d", p.endpoint, url.QueryEscape(query), limit)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return apperrors.NewExternalError(apperrors.ErrCodeExternalService,
				fmt.Sprintf("search gateway returned %d", resp.StatusCode), true)
		}
		if resp.StatusCode != http.StatusOK {
			return apperrors.NewExternalError(apperrors.ErrCodeExternalService,
				fmt.Sprintf("search gateway returned %d", resp.StatusCode), false)
		}

		results = results[:0]
		return json.NewDecoder(resp.Body).Decode(&results)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
