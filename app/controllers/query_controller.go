package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/services"
)

var validate = validator.New()

// SearchResultInput 客户端提交的一条检索结果
type SearchResultInput struct {
	Origin     string `json:"origin" validate:"required,oneof=arxiv openalex live_search"`
	ExternalID string `json:"external_id" validate:"omitempty,max=255"`
	DOI        string `json:"doi" validate:"omitempty,max=255"`
	Title      string `json:"title" validate:"required,max=500"`
	URL        string `json:"url" validate:"omitempty,max=1000"`
	Snippet    string `json:"snippet" validate:"omitempty,max=10000"`
}

// SubmitQueryRequest 查询摄取请求
// results为空时由服务端的检索协作方代为检索
type SubmitQueryRequest struct {
	QueryText string              `json:"query_text" validate:"required,min=3,max=2000"`
	Results   []SearchResultInput `json:"results" validate:"omitempty,max=50,dive"`
}

// QueryController 查询摄取控制器
type QueryController struct {
	BaseController
	research   *services.ResearchService
	graphSvc   *services.GraphService
	search     graph.SearchProvider
	maxResults int
}

// NewQueryController 创建查询控制器
func NewQueryController(research *services.ResearchService, graphSvc *services.GraphService, search graph.SearchProvider, maxResults int) *QueryController {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &QueryController{
		research:   research,
		graphSvc:   graphSvc,
		search:     search,
		maxResults: maxResults,
	}
}

// Submit 提交一次查询并执行完整摄取管线
func (c *QueryController) Submit() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	var req SubmitQueryRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return
	}

	results := make([]graph.SearchResult, len(req.Results))
	for i, r := range req.Results {
		results[i] = graph.SearchResult{
			Origin:     r.Origin,
			ExternalID: r.ExternalID,
			DOI:        r.DOI,
			Title:      r.Title,
			URL:        r.URL,
			Snippet:    r.Snippet,
		}
	}

	// 客户端未带结果时走服务端实时检索
	if len(results) == 0 {
		if c.search == nil {
			c.JSONError(http.StatusBadRequest, "no results provided and live search is not configured")
			return
		}
		fetched, err := c.search.Search(c.Ctx.Request.Context(), req.QueryText, c.maxResults)
		if err != nil {
			c.JSONAppError(err)
			return
		}
		results = fetched
	}

	result, err := c.research.ProcessQuery(c.Ctx.Request.Context(), userID, req.QueryText, results)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

// Connections 返回一次查询产出的全部来源关系
func (c *QueryController) Connections() {
	if _, ok := c.getAuthenticatedUserID(); !ok {
		return
	}
	queryID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	connections, err := c.graphSvc.QueryConnections(c.Ctx.Request.Context(), queryID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"query_id":    queryID,
		"connections": connections,
	})
}
