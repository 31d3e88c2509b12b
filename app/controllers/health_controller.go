package controllers

import (
	"net/http"

	"github.com/aihub/researchgraph/internal/database"
	"github.com/aihub/researchgraph/internal/graph"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{"message": "Research Graph API"})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
	checker  *database.HealthChecker
	store    graph.VectorStore
	embedder graph.Embedder
}

// NewHealthController 创建健康检查控制器
func NewHealthController(checker *database.HealthChecker, store graph.VectorStore, embedder graph.Embedder) *HealthController {
	return &HealthController{checker: checker, store: store, embedder: embedder}
}

// Health 存活检查
func (c *HealthController) Health() {
	c.JSONSuccess(map[string]string{"status": "healthy"})
}

// Ready 就绪检查：数据库必须可达，向量存储与嵌入服务报告降级状态
func (c *HealthController) Ready() {
	dbErr := c.checker.Check(c.Ctx.Request.Context())
	components := map[string]bool{
		"database":     dbErr == nil,
		"vector_store": c.store != nil && c.store.Ready(),
		"embedder":     c.embedder != nil && c.embedder.Ready(),
	}

	if dbErr != nil {
		c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"success":    false,
			"components": components,
			"database":   c.checker.Status(),
		})
		return
	}
	c.JSONSuccess(map[string]interface{}{"components": components})
}
