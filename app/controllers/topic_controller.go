package controllers

import (
	"strconv"

	"github.com/aihub/researchgraph/internal/services"
)

// TopicController 话题与图谱分析控制器
type TopicController struct {
	BaseController
	graphSvc *services.GraphService
}

// NewTopicController 创建话题控制器
func NewTopicController(graphSvc *services.GraphService) *TopicController {
	return &TopicController{graphSvc: graphSvc}
}

// List 获取用户全部话题
func (c *TopicController) List() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	topics, err := c.graphSvc.ListTopics(c.Ctx.Request.Context(), userID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"topics": topics,
		"total":  len(topics),
	})
}

// Gaps 获取知识缺口，按优先级降序
func (c *TopicController) Gaps() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.GetString("limit", "20"))

	gaps, err := c.graphSvc.TopicGaps(c.Ctx.Request.Context(), userID, limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"gaps":  gaps,
		"total": len(gaps),
	})
}

// Bridges 获取话题之间的语义桥
func (c *TopicController) Bridges() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.GetString("limit", "20"))

	bridges, err := c.graphSvc.SemanticBridges(c.Ctx.Request.Context(), userID, limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"bridges": bridges,
		"total":   len(bridges),
	})
}
